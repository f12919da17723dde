package storage

import (
	"maps"
	"slices"

	"github.com/roach88/prevail/internal/index"
	"github.com/roach88/prevail/internal/schema"
)

// Tables holds the four stores of every type, created lazily on first
// access, and the identity sequences.
type Tables struct {
	primary    map[string]*Primary
	indexes    map[string]*index.Store
	references map[string]*References
	relations  map[string]*Relations
	sequences  map[string]schema.ID
}

// NewTables returns empty tables.
func NewTables() *Tables {
	return &Tables{
		primary:    make(map[string]*Primary),
		indexes:    make(map[string]*index.Store),
		references: make(map[string]*References),
		relations:  make(map[string]*Relations),
		sequences:  make(map[string]schema.ID),
	}
}

// Prepare creates the stores of every type in types. Access to a prepared
// type never writes to the table maps, so concurrent readers are safe once
// every type they touch is prepared.
func (t *Tables) Prepare(types ...string) {
	for _, typ := range types {
		t.Primary(typ)
		t.Index(typ)
		t.References(typ)
		t.Relations(typ)
	}
}

// Primary returns the primary store of typ.
func (t *Tables) Primary(typ string) *Primary {
	p, ok := t.primary[typ]
	if !ok {
		p = NewPrimary()
		t.primary[typ] = p
	}
	return p
}

// Index returns the index store of typ.
func (t *Tables) Index(typ string) *index.Store {
	s, ok := t.indexes[typ]
	if !ok {
		s = index.New()
		t.indexes[typ] = s
	}
	return s
}

// References returns the reference store of typ.
func (t *Tables) References(typ string) *References {
	r, ok := t.references[typ]
	if !ok {
		r = NewReferences()
		t.references[typ] = r
	}
	return r
}

// Relations returns the relation store of owner type typ.
func (t *Tables) Relations(typ string) *Relations {
	r, ok := t.relations[typ]
	if !ok {
		r = NewRelations()
		t.relations[typ] = r
	}
	return r
}

// NextID advances and returns the identity sequence of typ.
func (t *Tables) NextID(typ string) schema.ID {
	t.sequences[typ]++
	return t.sequences[typ]
}

// Sequence returns the last identity issued for typ.
func (t *Tables) Sequence(typ string) schema.ID {
	return t.sequences[typ]
}

// SetSequence moves the sequence of typ.
func (t *Tables) SetSequence(typ string, id schema.ID) {
	t.sequences[typ] = id
}

// Sequences returns a copy of every sequence.
func (t *Tables) Sequences() map[string]schema.ID {
	return maps.Clone(t.sequences)
}

// Types returns the names of types with a primary store or sequence, sorted.
func (t *Tables) Types() []string {
	seen := make(map[string]struct{})
	for typ := range t.primary {
		seen[typ] = struct{}{}
	}
	for typ := range t.sequences {
		seen[typ] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}
