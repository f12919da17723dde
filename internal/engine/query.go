package engine

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/roach88/prevail/internal/index"
	"github.com/roach88/prevail/internal/schema"
	"github.com/roach88/prevail/internal/search"
)

// Fetch returns a composed copy of typ#id, or an error wrapping ErrNotFound.
func (e *Engine) Fetch(typ string, id schema.ID) (schema.Entity, error) {
	if _, err := e.schemaOf(typ); err != nil {
		return nil, err
	}
	ent, ok := e.newComposer().compose(schema.Ref{Type: typ, ID: id})
	if !ok {
		return nil, fmt.Errorf("fetch %s#%s: %w", typ, id, ErrNotFound)
	}
	return ent, nil
}

// FetchAs is Fetch for a statically known entity type.
func FetchAs[T schema.Entity](e *Engine, id schema.ID) (T, error) {
	var zero T
	s, err := e.reg.SchemaOf(zero)
	if err != nil {
		return zero, storeError("", id, err)
	}
	ent, err := e.Fetch(s.Name(), id)
	if err != nil {
		return zero, err
	}
	return ent.(T), nil
}

// FetchRange returns the entities at insertion positions [start, end).
func (e *Engine) FetchRange(typ string, start, end int) ([]schema.Entity, error) {
	if _, err := e.schemaOf(typ); err != nil {
		return nil, err
	}
	ids := e.tables.Primary(typ).Range(start, end)
	refs := make([]schema.Ref, len(ids))
	for i, id := range ids {
		refs[i] = schema.Ref{Type: typ, ID: id}
	}
	return e.composeAll(refs), nil
}

// FetchByIndex returns the entities indexed under value.
//
// field is an indexed field, a foreign key or a composite key. A foreign
// key takes the target entity or its identity; a composite takes a []any
// with one value per member. A nil value matches null entries.
func (e *Engine) FetchByIndex(typ, field string, value any) ([]schema.Entity, error) {
	refs, err := e.lookup(typ, field, value)
	if err != nil {
		return nil, err
	}
	return e.composeAll(refs), nil
}

// FetchUnion returns the entities matching any field/value pair. Pairs are
// evaluated in key order.
func (e *Engine) FetchUnion(typ string, params map[string]any) ([]schema.Entity, error) {
	var out []schema.Ref
	seen := make(map[schema.Ref]bool)
	for _, field := range sortedKeys(params) {
		refs, err := e.lookup(typ, field, params[field])
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return e.composeAll(out), nil
}

// FetchIntersection returns the entities matching every field/value pair,
// in the order of the first pair's matches.
func (e *Engine) FetchIntersection(typ string, params map[string]any) ([]schema.Entity, error) {
	var out []schema.Ref
	for i, field := range sortedKeys(params) {
		refs, err := e.lookup(typ, field, params[field])
		if err != nil {
			return nil, err
		}
		if i == 0 {
			out = refs
			continue
		}
		out = slices.DeleteFunc(out, func(r schema.Ref) bool { return !slices.Contains(refs, r) })
	}
	return e.composeAll(out), nil
}

// Search runs a full-text query and returns the matching entities in hit
// order. Hits whose entity no longer exists are dropped.
func (e *Engine) Search(q search.Query) ([]schema.Entity, error) {
	if e.search == nil {
		return nil, storeErrorf("", 0, "search is not configured")
	}
	hits, err := e.search.Search(q)
	if err != nil {
		return nil, storeError("", 0, fmt.Errorf("search: %w", err))
	}
	refs := make([]schema.Ref, 0, len(hits))
	for _, h := range hits {
		typ, text, ok := schema.SplitKey(h.Key)
		if !ok {
			continue
		}
		s, ok := e.reg.Lookup(typ)
		if !ok {
			continue
		}
		id, err := s.ParseID(text)
		if err != nil {
			e.logger.Warn("search hit with invalid identity", "key", h.Key, "error", err)
			continue
		}
		refs = append(refs, schema.Ref{Type: typ, ID: id})
	}
	return e.composeAll(refs), nil
}

func (e *Engine) composeAll(refs []schema.Ref) []schema.Entity {
	c := e.newComposer()
	out := make([]schema.Entity, 0, len(refs))
	for _, r := range refs {
		if ent, ok := c.compose(r); ok {
			out = append(out, ent)
		}
	}
	return out
}

func (e *Engine) lookup(typ, field string, value any) ([]schema.Ref, error) {
	s, err := e.schemaOf(typ)
	if err != nil {
		return nil, err
	}
	key, err := indexValue(s, field, value)
	if err != nil {
		return nil, &Error{Code: ErrCodeStoreError, Message: "invalid index query", Type: typ, Field: field, Err: err}
	}
	return e.tables.Index(typ).Get(field, key), nil
}

// indexValue converts a query value into the key stored by the index of field.
func indexValue(s *schema.Schema, field string, value any) (any, error) {
	if f, ok := s.Field(field); ok {
		if f.Kind().IsReference() {
			if _, isFK := f.ForeignKey(); !isFK {
				return nil, fmt.Errorf("reference field is not a foreign key")
			}
			return refValue(value)
		}
		if !f.Indexed() {
			return nil, fmt.Errorf("field is not indexed")
		}
		return index.Normalize(deref(value))
	}
	spec, ok := s.Index(field)
	if !ok || !spec.Composite() {
		return nil, fmt.Errorf("no such index")
	}
	values, ok := value.([]any)
	if !ok || len(values) != len(spec.Fields) {
		return nil, fmt.Errorf("composite index takes %d values", len(spec.Fields))
	}
	members := make([]any, len(values))
	for i, v := range values {
		members[i] = deref(v)
	}
	return index.Tuple(members...), nil
}

func refValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case schema.ID:
		return v, nil
	case int:
		return schema.ID(v), nil
	case int64:
		return schema.ID(v), nil
	case schema.Entity:
		if reflect.ValueOf(v).IsNil() {
			return nil, nil
		}
		return v.PrevalentObject().ObjectID(), nil
	default:
		return nil, fmt.Errorf("foreign key value of type %T", value)
	}
}

// deref returns the value behind a pointer, or nil for a nil pointer.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return v
	}
	if rv.IsNil() {
		return nil
	}
	return rv.Elem().Interface()
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
