// Package index implements the per-type secondary index store.
//
// A Store maps a field key to value buckets, and each bucket holds an
// insertion-ordered, deduplicated set of entity descriptors. Only
// (type, identity) descriptors are retained, never live entities.
//
// Field keys are single field names or composite keys built with
// schema.CompositeKey. Composite values are encoded with Tuple. A null value
// is stored under a reserved sentinel, so "field is null" is queryable
// like any other value.
package index

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/prevail/internal/schema"
)

type nullKey struct{}

// Null is the sentinel key for null values.
var Null any = nullKey{}

type tuple string

// Tuple encodes the values of a composite index into a single key.
func Tuple(values ...any) any {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			parts[i] = "<null>"
			continue
		}
		parts[i] = fmt.Sprintf("%T=%v", v, v)
	}
	return tuple(strings.Join(parts, "\x1f"))
}

// Normalize converts a value into a bucket key: nil becomes Null. It fails
// for values that cannot be used as map keys.
func Normalize(v any) (any, error) {
	if v == nil {
		return Null, nil
	}
	if !reflect.TypeOf(v).Comparable() {
		return nil, fmt.Errorf("value of type %T cannot be indexed", v)
	}
	return v, nil
}

func key(v any) any {
	if v == nil {
		return Null
	}
	return v
}

// Removed is an entry taken out of a bucket, with its former position.
type Removed struct {
	Field string
	Value any
	Pos   int
}

// Store is the index store of one entity type. It is not safe for
// concurrent mutation.
type Store struct {
	fields map[string]map[any][]schema.Ref
}

// New returns an empty store.
func New() *Store {
	return &Store{fields: make(map[string]map[any][]schema.Ref)}
}

// Add indexes r under value. It reports false if the entry already existed.
func (s *Store) Add(field string, value any, r schema.Ref) bool {
	k := key(value)
	buckets := s.fields[field]
	if buckets == nil {
		buckets = make(map[any][]schema.Ref)
		s.fields[field] = buckets
	}
	if slices.Contains(buckets[k], r) {
		return false
	}
	buckets[k] = append(buckets[k], r)
	return true
}

// InsertAt restores an entry at a former bucket position.
func (s *Store) InsertAt(field string, value any, r schema.Ref, pos int) {
	k := key(value)
	buckets := s.fields[field]
	if buckets == nil {
		buckets = make(map[any][]schema.Ref)
		s.fields[field] = buckets
	}
	refs := buckets[k]
	if slices.Contains(refs, r) {
		return
	}
	pos = min(max(pos, 0), len(refs))
	buckets[k] = slices.Insert(refs, pos, r)
}

// RemoveValue removes the single entry (value, r) and returns its position.
func (s *Store) RemoveValue(field string, value any, r schema.Ref) (int, bool) {
	k := key(value)
	buckets := s.fields[field]
	refs := buckets[k]
	pos := slices.Index(refs, r)
	if pos < 0 {
		return 0, false
	}
	refs = slices.Delete(refs, pos, pos+1)
	if len(refs) == 0 {
		delete(buckets, k)
	} else {
		buckets[k] = refs
	}
	return pos, true
}

// Remove removes every entry of r under field.
func (s *Store) Remove(field string, r schema.Ref) []Removed {
	var removed []Removed
	for k, refs := range s.fields[field] {
		if pos := slices.Index(refs, r); pos >= 0 {
			s.RemoveValue(field, k, r)
			removed = append(removed, Removed{Field: field, Value: k, Pos: pos})
		}
	}
	return removed
}

// RemoveRef removes every entry of r under every field.
func (s *Store) RemoveRef(r schema.Ref) []Removed {
	var removed []Removed
	for _, field := range s.Fields() {
		removed = append(removed, s.Remove(field, r)...)
	}
	return removed
}

// Get returns a copy of the bucket for value, in insertion order.
func (s *Store) Get(field string, value any) []schema.Ref {
	return slices.Clone(s.fields[field][key(value)])
}

// IsIndexed reports whether any entity is indexed under value.
func (s *Store) IsIndexed(field string, value any) bool {
	return len(s.fields[field][key(value)]) > 0
}

// IndexedByOther reports whether an entity other than self is indexed under value.
func (s *Store) IndexedByOther(field string, value any, self schema.Ref) bool {
	for _, r := range s.fields[field][key(value)] {
		if r != self {
			return true
		}
	}
	return false
}

// Fields returns the field keys with at least one bucket, sorted.
func (s *Store) Fields() []string {
	out := make([]string, 0, len(s.fields))
	for f, buckets := range s.fields {
		if len(buckets) > 0 {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return out
}

// Len returns the number of entries under field.
func (s *Store) Len(field string) int {
	n := 0
	for _, refs := range s.fields[field] {
		n += len(refs)
	}
	return n
}
