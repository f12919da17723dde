package storage

import (
	"slices"

	"github.com/roach88/prevail/internal/schema"
)

// Primary maps identities to the canonical flat copies of one type, in
// insertion order.
type Primary struct {
	ids      []schema.ID
	entities map[schema.ID]schema.Entity
}

// NewPrimary returns an empty primary store.
func NewPrimary() *Primary {
	return &Primary{entities: make(map[schema.ID]schema.Entity)}
}

// Put stores e under id. A new id is appended to the insertion order; an
// existing one keeps its position and the previous entity is returned.
func (p *Primary) Put(id schema.ID, e schema.Entity) (schema.Entity, bool) {
	prev, ok := p.entities[id]
	if !ok {
		p.ids = append(p.ids, id)
	}
	p.entities[id] = e
	return prev, ok
}

// InsertAt restores an entity removed from position pos.
func (p *Primary) InsertAt(id schema.ID, e schema.Entity, pos int) {
	if _, ok := p.entities[id]; ok {
		p.entities[id] = e
		return
	}
	pos = min(max(pos, 0), len(p.ids))
	p.ids = slices.Insert(p.ids, pos, id)
	p.entities[id] = e
}

// Get returns the stored entity.
func (p *Primary) Get(id schema.ID) (schema.Entity, bool) {
	e, ok := p.entities[id]
	return e, ok
}

// Has reports whether id is stored.
func (p *Primary) Has(id schema.ID) bool {
	_, ok := p.entities[id]
	return ok
}

// Remove deletes id and returns the entity and its insertion position.
func (p *Primary) Remove(id schema.ID) (schema.Entity, int, bool) {
	e, ok := p.entities[id]
	if !ok {
		return nil, 0, false
	}
	pos := slices.Index(p.ids, id)
	p.ids = slices.Delete(p.ids, pos, pos+1)
	delete(p.entities, id)
	return e, pos, true
}

// Range returns the identities at insertion positions [start, end),
// clamped to the stored range.
func (p *Primary) Range(start, end int) []schema.ID {
	start = max(start, 0)
	end = min(end, len(p.ids))
	if start >= end {
		return []schema.ID{}
	}
	return slices.Clone(p.ids[start:end])
}

// IDs returns every identity in insertion order.
func (p *Primary) IDs() []schema.ID {
	return slices.Clone(p.ids)
}

// Len returns the number of stored entities.
func (p *Primary) Len() int { return len(p.ids) }
