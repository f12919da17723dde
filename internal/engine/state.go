package engine

import (
	"fmt"
	"time"

	"github.com/roach88/prevail/internal/index"
	"github.com/roach88/prevail/internal/schema"
	"github.com/roach88/prevail/internal/storage"
)

// Marshaler encodes entity bodies in snapshots. Implemented by codec.Codec.
type Marshaler interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// State is the image of the engine written to snapshots: primary records,
// reference links, relation rules and sequences. Indexes are rebuilt on
// Restore.
type State struct {
	Sequences map[string]int64
	Types     []TypeState
}

// TypeState is the image of one type.
type TypeState struct {
	Name      string
	Records   []Record
	Links     []LinkRecord
	Relations []RelationRecord
}

// Record is one stored entity. Times are Unix nanoseconds, zero for unset.
type Record struct {
	ID       int64
	Created  int64
	Modified int64
	Body     []byte
}

// LinkRecord is the reference link of one field of one entity.
type LinkRecord struct {
	ID      int64
	Field   string
	Many    bool
	Targets []int64
}

// RelationRecord is one delete rule of an owner type, in registration order.
type RelationRecord struct {
	Referencing string
	Field       string
	Action      string
}

// Export returns the state of the engine, encoding bodies with m.
func (e *Engine) Export(m Marshaler) (*State, error) {
	st := &State{Sequences: make(map[string]int64)}
	for typ, seq := range e.tables.Sequences() {
		st.Sequences[typ] = int64(seq)
	}
	for _, typ := range e.tables.Types() {
		if _, ok := e.reg.Lookup(typ); !ok {
			continue
		}
		ts := TypeState{Name: typ}

		primary := e.tables.Primary(typ)
		for _, id := range primary.IDs() {
			ent, _ := primary.Get(id)
			body, err := m.Marshal(ent)
			if err != nil {
				return nil, storeError(typ, id, fmt.Errorf("encode body: %w", err))
			}
			l := schema.LifecycleOf(ent)
			ts.Records = append(ts.Records, Record{
				ID:       int64(id),
				Created:  unixNano(l.Created),
				Modified: unixNano(l.Modified),
				Body:     body,
			})
		}

		refs := e.tables.References(typ)
		for _, id := range refs.IDs() {
			for _, field := range refs.Fields(id) {
				link, _ := refs.Get(id, field)
				targets := make([]int64, len(link.IDs))
				for i, t := range link.IDs {
					targets[i] = int64(t)
				}
				ts.Links = append(ts.Links, LinkRecord{ID: int64(id), Field: field, Many: link.Many, Targets: targets})
			}
		}

		rel := e.tables.Relations(typ)
		for _, referencing := range rel.Referencing() {
			for _, rule := range rel.Rules(referencing) {
				ts.Relations = append(ts.Relations, RelationRecord{
					Referencing: referencing,
					Field:       rule.Field,
					Action:      rule.Action.String(),
				})
			}
		}
		st.Types = append(st.Types, ts)
	}
	return st, nil
}

// Restore replaces the content of the engine with st. The engine is left
// unchanged if st cannot be loaded.
func (e *Engine) Restore(st *State, m Marshaler) error {
	if st == nil {
		return storeErrorf("", 0, "restore: nil state")
	}
	tables := storage.NewTables()
	tables.Prepare(typeNames(e.reg)...)
	for typ, seq := range st.Sequences {
		tables.SetSequence(typ, schema.ID(seq))
	}

	for _, ts := range st.Types {
		s, err := e.schemaOf(ts.Name)
		if err != nil {
			return err
		}
		primary := tables.Primary(ts.Name)
		for _, rec := range ts.Records {
			ent := s.New()
			if err := m.Unmarshal(rec.Body, ent); err != nil {
				return storeError(ts.Name, schema.ID(rec.ID), fmt.Errorf("decode body: %w", err))
			}
			schema.SetLifecycle(ent, schema.Lifecycle{
				ID:         schema.ID(rec.ID),
				Persistent: true,
				Created:    fromUnixNano(rec.Created),
				Modified:   fromUnixNano(rec.Modified),
			})
			primary.Put(schema.ID(rec.ID), s.Flat(ent))
		}

		refs := tables.References(ts.Name)
		for _, l := range ts.Links {
			ids := make([]schema.ID, len(l.Targets))
			for i, t := range l.Targets {
				ids[i] = schema.ID(t)
			}
			refs.Set(schema.ID(l.ID), l.Field, storage.Link{Many: l.Many, IDs: ids})
		}

		rel := tables.Relations(ts.Name)
		for _, rr := range ts.Relations {
			action, err := schema.ParseDeleteAction(rr.Action)
			if err != nil {
				return storeError(ts.Name, 0, err)
			}
			rel.Add(rr.Referencing, rr.Field, action)
		}
	}

	for _, s := range e.reg.Schemas() {
		rebuildIndex(s, tables)
	}
	e.tables = tables
	e.logger.Info("engine state restored", "types", len(st.Types))
	return nil
}

// rebuildIndex indexes every stored entity of s from its primary record and
// reference links.
func rebuildIndex(s *schema.Schema, tables *storage.Tables) {
	typ := s.Name()
	idx := tables.Index(typ)
	primary := tables.Primary(typ)
	refs := tables.References(typ)
	for _, id := range primary.IDs() {
		r := schema.Ref{Type: typ, ID: id}
		ent, _ := primary.Get(id)
		for _, en := range valueEntries(s, ent) {
			idx.Add(en.key, en.value, r)
		}
		for _, f := range s.ForeignKeys() {
			addLinkEntries(idx, f, refs, r)
		}
	}
}

func addLinkEntries(idx *index.Store, f *schema.Field, refs *storage.References, r schema.Ref) {
	link, ok := refs.Get(r.ID, f.Name())
	if !ok {
		if f.Kind() == schema.KindRef {
			idx.Add(f.Name(), nil, r)
		}
		return
	}
	for _, id := range link.IDs {
		idx.Add(f.Name(), id, r)
	}
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
