package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is a type-scoped entity identity. The zero ID means "no identity".
type ID int64

// String returns the decimal form used by search documents and the journal.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID is the default identity string conversion.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ID(n), nil
}

// Ref identifies a stored entity without retaining it.
type Ref struct {
	Type string
	ID   ID
}

// String returns the "Type#ID" key form.
func (r Ref) String() string {
	return r.Type + "#" + r.ID.String()
}

// SplitKey splits a "Type#ID" key into its type name and identity text.
func SplitKey(key string) (typ, id string, ok bool) {
	i := strings.LastIndexByte(key, '#')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// Object is embedded by every entity type. Its fields are owned by the
// engine and are not serialized with the entity body.
type Object struct {
	id         ID
	persistent bool
	created    time.Time
	modified   time.Time
}

// Entity is implemented by pointers to structs embedding Object.
type Entity interface {
	PrevalentObject() *Object
}

// PrevalentObject implements Entity.
func (o *Object) PrevalentObject() *Object { return o }

// ObjectID returns the identity, or zero for an entity that was never saved.
func (o *Object) ObjectID() ID { return o.id }

// IsPersistent reports whether the entity has been saved and not deleted.
func (o *Object) IsPersistent() bool { return o.persistent }

// CreatedAt returns the execution time of the first save.
func (o *Object) CreatedAt() time.Time { return o.created }

// ModifiedAt returns the execution time of the latest save.
func (o *Object) ModifiedAt() time.Time { return o.modified }

// SetObjectID supplies an identity before the first save.
// It has no effect on a persistent entity.
func (o *Object) SetObjectID(id ID) {
	if !o.persistent {
		o.id = id
	}
}

// Lifecycle is the engine-owned state of an entity.
type Lifecycle struct {
	ID         ID
	Persistent bool
	Created    time.Time
	Modified   time.Time
}

// LifecycleOf returns the lifecycle state of e.
func LifecycleOf(e Entity) Lifecycle {
	o := e.PrevalentObject()
	return Lifecycle{ID: o.id, Persistent: o.persistent, Created: o.created, Modified: o.modified}
}

// SetLifecycle overwrites the lifecycle state of e.
func SetLifecycle(e Entity, l Lifecycle) {
	o := e.PrevalentObject()
	o.id = l.ID
	o.persistent = l.Persistent
	o.created = l.Created
	o.modified = l.Modified
}

// Attach marks e persistent under id, created and modified at the given time.
func Attach(e Entity, id ID, at time.Time) {
	SetLifecycle(e, Lifecycle{ID: id, Persistent: true, Created: at, Modified: at})
}

// Touch sets the modification time of e.
func Touch(e Entity, at time.Time) {
	e.PrevalentObject().modified = at
}

// Detach clears identity and metadata, returning e to the transient state.
func Detach(e Entity) {
	*e.PrevalentObject() = Object{}
}
