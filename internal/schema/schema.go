package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// DeleteAction is applied to referencing entities when their target is deleted.
type DeleteAction int

const (
	// Reject aborts the delete while a referencing entity exists.
	Reject DeleteAction = iota
	// Cascade deletes every referencing entity.
	Cascade
	// NullOut clears the reference, or removes the target from a collection.
	NullOut
)

func (a DeleteAction) String() string {
	switch a {
	case Reject:
		return "reject"
	case Cascade:
		return "cascade"
	case NullOut:
		return "null-out"
	default:
		return fmt.Sprintf("DeleteAction(%d)", int(a))
	}
}

// ParseDeleteAction parses the String form of a DeleteAction.
func ParseDeleteAction(s string) (DeleteAction, error) {
	switch s {
	case "reject":
		return Reject, nil
	case "cascade":
		return Cascade, nil
	case "null-out":
		return NullOut, nil
	default:
		return 0, fmt.Errorf("unknown delete action %q", s)
	}
}

// ForeignKey marks a reference field as a relationship with a delete policy.
type ForeignKey struct {
	Action DeleteAction
	Unique bool
}

// IndexSpec is a single-field or composite index.
type IndexSpec struct {
	// Key is the field name, or CompositeKey(Fields...) for a composite.
	Key    string
	Fields []string
	Unique bool
}

// Composite reports whether the index spans several fields.
func (s IndexSpec) Composite() bool { return len(s.Fields) > 1 }

// SearchGroup is a named search field. A single searchable field is a group
// of one member named after the field.
type SearchGroup struct {
	Name   string
	Fields []string
}

// CompositeKey joins field names into the key of a composite index.
func CompositeKey(fields ...string) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f)
		b.WriteByte('#')
	}
	return b.String()
}

// Schema is the registered metadata of one entity type.
type Schema struct {
	name    string
	goType  reflect.Type
	newFn   func() Entity
	copyFn  func(Entity) Entity
	parseID func(string) (ID, error)

	fields  []*Field
	byName  map[string]*Field
	indexes []IndexSpec
	groups  []SearchGroup
}

// Name returns the type name used in keys, journals and snapshots.
func (s *Schema) Name() string { return s.name }

// GoType returns the pointer type of the entity.
func (s *Schema) GoType() reflect.Type { return s.goType }

// New returns a fresh transient entity.
func (s *Schema) New() Entity { return s.newFn() }

// Copy clones e with the per-type copy function, then re-assigns value
// fields so the clone shares no lists or optional values with e. Reference
// fields are left as the copy function produced them.
func (s *Schema) Copy(e Entity) Entity {
	c := s.copyFn(e)
	for _, f := range s.fields {
		if !f.kind.IsReference() {
			f.Assign(c, e)
		}
	}
	return c
}

// Flat returns a copy of e with every reference field cleared.
func (s *Schema) Flat(e Entity) Entity {
	c := s.Copy(e)
	for _, f := range s.fields {
		f.Clear(c)
	}
	return c
}

// ParseID converts the string form of an identity of this type.
func (s *Schema) ParseID(text string) (ID, error) {
	return s.parseID(text)
}

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []*Field { return s.fields }

// Field looks up a field by name.
func (s *Schema) Field(name string) (*Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Indexes returns single-field and composite indexes in declaration order.
func (s *Schema) Indexes() []IndexSpec { return s.indexes }

// Index looks up an index by key.
func (s *Schema) Index(key string) (IndexSpec, bool) {
	for _, spec := range s.indexes {
		if spec.Key == key {
			return spec, true
		}
	}
	return IndexSpec{}, false
}

// Composites returns the composite indexes.
func (s *Schema) Composites() []IndexSpec {
	var out []IndexSpec
	for _, spec := range s.indexes {
		if spec.Composite() {
			out = append(out, spec)
		}
	}
	return out
}

// ForeignKeys returns the reference fields declared as foreign keys.
func (s *Schema) ForeignKeys() []*Field {
	var out []*Field
	for _, f := range s.fields {
		if f.foreignKey != nil {
			out = append(out, f)
		}
	}
	return out
}

// SearchGroups returns the search fields, or nil if the type is not searchable.
func (s *Schema) SearchGroups() []SearchGroup { return s.groups }

// Searchable reports whether entities of this type are pushed to the search engine.
func (s *Schema) Searchable() bool { return len(s.groups) > 0 }
