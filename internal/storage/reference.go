package storage

import (
	"maps"
	"slices"

	"github.com/roach88/prevail/internal/schema"
)

// Link is the flattened value of a reference field: one identity for a
// single reference, an ordered set for a collection.
type Link struct {
	Many bool
	IDs  []schema.ID
}

// Single returns the identity of a single reference.
func (l Link) Single() (schema.ID, bool) {
	if l.Many || len(l.IDs) == 0 {
		return 0, false
	}
	return l.IDs[0], true
}

// Contains reports whether id is referenced.
func (l Link) Contains(id schema.ID) bool {
	return slices.Contains(l.IDs, id)
}

// Without returns a copy of l with id removed.
func (l Link) Without(id schema.ID) Link {
	out := Link{Many: l.Many, IDs: make([]schema.ID, 0, len(l.IDs))}
	for _, x := range l.IDs {
		if x != id {
			out.IDs = append(out.IDs, x)
		}
	}
	return out
}

// References maps each stored entity of one type to its reference fields.
type References struct {
	links map[schema.ID]map[string]Link
}

// NewReferences returns an empty reference store.
func NewReferences() *References {
	return &References{links: make(map[schema.ID]map[string]Link)}
}

// Set records the link of a field and returns the previous one.
func (r *References) Set(id schema.ID, field string, link Link) (Link, bool) {
	fields := r.links[id]
	if fields == nil {
		fields = make(map[string]Link)
		r.links[id] = fields
	}
	prev, ok := fields[field]
	fields[field] = Link{Many: link.Many, IDs: slices.Clone(link.IDs)}
	return prev, ok
}

// Get returns the link of a field.
func (r *References) Get(id schema.ID, field string) (Link, bool) {
	l, ok := r.links[id][field]
	return l, ok
}

// Delete removes the link of a field and returns it.
func (r *References) Delete(id schema.ID, field string) (Link, bool) {
	fields := r.links[id]
	prev, ok := fields[field]
	if !ok {
		return Link{}, false
	}
	delete(fields, field)
	if len(fields) == 0 {
		delete(r.links, id)
	}
	return prev, true
}

// Remove drops every link of id and returns them.
func (r *References) Remove(id schema.ID) map[string]Link {
	fields := r.links[id]
	delete(r.links, id)
	return fields
}

// Restore puts back links returned by Remove.
func (r *References) Restore(id schema.ID, fields map[string]Link) {
	if len(fields) == 0 {
		return
	}
	r.links[id] = maps.Clone(fields)
}

// Fields returns the field names with a link for id, sorted.
func (r *References) Fields(id schema.ID) []string {
	return slices.Sorted(maps.Keys(r.links[id]))
}

// IDs returns the identities holding at least one link, sorted.
func (r *References) IDs() []schema.ID {
	return slices.Sorted(maps.Keys(r.links))
}
