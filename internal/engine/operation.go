package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/prevail/internal/schema"
	"github.com/roach88/prevail/internal/storage"
)

// operation is the context of one mutating call. It is never shared
// between calls.
type operation struct {
	e  *Engine
	at time.Time

	// writing is the active set of entities saved by this operation,
	// registered before their references are decomposed.
	writing map[schema.Ref]schema.Entity

	// deleting is the active set of entities removed by this operation.
	deleting map[schema.Ref]bool

	undo    []func()
	notices []notice
}

type notice struct {
	ref     schema.Ref
	removed bool
}

// run executes fn as one operation. A failed operation is rolled back;
// a successful one flushes its search notifications.
func (e *Engine) run(at time.Time, fn func(op *operation) error) error {
	op := &operation{
		e:        e,
		at:       at,
		writing:  make(map[schema.Ref]schema.Entity),
		deleting: make(map[schema.Ref]bool),
	}
	if err := fn(op); err != nil {
		op.rollback()
		e.logger.Debug("operation rolled back", "steps", len(op.undo), "error", err)
		return err
	}
	op.flush()
	return nil
}

func (op *operation) rollback() {
	for i := len(op.undo) - 1; i >= 0; i-- {
		op.undo[i]()
	}
	op.undo = nil
	op.notices = nil
}

func (op *operation) onUndo(fn func()) {
	op.undo = append(op.undo, fn)
}

func (op *operation) notify(s *schema.Schema, r schema.Ref, removed bool) {
	if op.e.search == nil || !s.Searchable() {
		return
	}
	op.notices = append(op.notices, notice{ref: r, removed: removed})
}

// flush sends the final state of every notified entity to the search
// engine. Failures are logged; the store mutation stands.
func (op *operation) flush() {
	if len(op.notices) == 0 {
		return
	}
	last := make(map[schema.Ref]int, len(op.notices))
	for i, n := range op.notices {
		last[n.ref] = i
	}
	for i, n := range op.notices {
		if last[n.ref] != i {
			continue
		}
		if n.removed {
			if err := op.e.search.Remove(n.ref.String()); err != nil {
				op.e.logger.Warn("search remove failed", "key", n.ref.String(), "error", err)
			}
			continue
		}
		s, ok := op.e.reg.Lookup(n.ref.Type)
		if ok {
			op.e.pushDocument(s, n.ref)
		}
	}
}

func (e *Engine) pushDocument(s *schema.Schema, r schema.Ref) {
	flat, ok := e.tables.Primary(r.Type).Get(r.ID)
	if !ok {
		return
	}
	doc := make(map[string]string, len(s.SearchGroups()))
	for _, g := range s.SearchGroups() {
		var parts []string
		for _, name := range g.Fields {
			f, _ := s.Field(name)
			parts = append(parts, fieldText(f, flat)...)
		}
		doc[g.Name] = strings.Join(parts, " ")
	}
	if err := e.search.Index(r.String(), doc); err != nil {
		e.logger.Warn("search index failed", "key", r.String(), "error", err)
	}
}

func fieldText(f *schema.Field, ent schema.Entity) []string {
	var values []any
	if f.Kind() == schema.KindScalarList {
		values = f.Values(ent)
	} else {
		values = []any{f.Value(ent)}
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != nil {
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

// The helpers below mutate the tables and record the inverse step.

func (op *operation) setLifecycle(ent schema.Entity, l schema.Lifecycle) {
	prev := schema.LifecycleOf(ent)
	schema.SetLifecycle(ent, l)
	op.onUndo(func() { schema.SetLifecycle(ent, prev) })
}

func (op *operation) nextID(typ string) schema.ID {
	prev := op.e.tables.Sequence(typ)
	id := op.e.tables.NextID(typ)
	op.onUndo(func() { op.e.tables.SetSequence(typ, prev) })
	return id
}

// bumpSequence moves the sequence of typ past a caller-supplied identity.
func (op *operation) bumpSequence(typ string, id schema.ID) {
	prev := op.e.tables.Sequence(typ)
	if id <= prev {
		return
	}
	op.e.tables.SetSequence(typ, id)
	op.onUndo(func() { op.e.tables.SetSequence(typ, prev) })
}

func (op *operation) put(r schema.Ref, ent schema.Entity) {
	p := op.e.tables.Primary(r.Type)
	prev, existed := p.Put(r.ID, ent)
	op.onUndo(func() {
		if existed {
			p.Put(r.ID, prev)
		} else {
			p.Remove(r.ID)
		}
	})
}

func (op *operation) remove(r schema.Ref) {
	p := op.e.tables.Primary(r.Type)
	ent, pos, ok := p.Remove(r.ID)
	if !ok {
		return
	}
	op.onUndo(func() { p.InsertAt(r.ID, ent, pos) })
}

func (op *operation) indexAdd(typ, field string, value any, r schema.Ref) {
	idx := op.e.tables.Index(typ)
	if idx.Add(field, value, r) {
		op.onUndo(func() { idx.RemoveValue(field, value, r) })
	}
}

func (op *operation) indexRemove(typ, field string, value any, r schema.Ref) {
	idx := op.e.tables.Index(typ)
	if pos, ok := idx.RemoveValue(field, value, r); ok {
		op.onUndo(func() { idx.InsertAt(field, value, r, pos) })
	}
}

// indexClear removes every entry of r under field.
func (op *operation) indexClear(typ, field string, r schema.Ref) {
	idx := op.e.tables.Index(typ)
	removed := idx.Remove(field, r)
	if len(removed) == 0 {
		return
	}
	op.onUndo(func() {
		for _, rm := range removed {
			idx.InsertAt(rm.Field, rm.Value, r, rm.Pos)
		}
	})
}

func (op *operation) indexRemoveRef(r schema.Ref) {
	idx := op.e.tables.Index(r.Type)
	removed := idx.RemoveRef(r)
	if len(removed) == 0 {
		return
	}
	op.onUndo(func() {
		for _, rm := range removed {
			idx.InsertAt(rm.Field, rm.Value, r, rm.Pos)
		}
	})
}

func (op *operation) link(r schema.Ref, field string, l storage.Link) {
	refs := op.e.tables.References(r.Type)
	prev, had := refs.Set(r.ID, field, l)
	op.onUndo(func() {
		if had {
			refs.Set(r.ID, field, prev)
		} else {
			refs.Delete(r.ID, field)
		}
	})
}

func (op *operation) unlink(r schema.Ref, field string) {
	refs := op.e.tables.References(r.Type)
	if prev, had := refs.Delete(r.ID, field); had {
		op.onUndo(func() { refs.Set(r.ID, field, prev) })
	}
}

func (op *operation) unlinkAll(r schema.Ref) {
	refs := op.e.tables.References(r.Type)
	removed := refs.Remove(r.ID)
	if len(removed) > 0 {
		op.onUndo(func() { refs.Restore(r.ID, removed) })
	}
}

// relate records that field of the referencing type points at owner.
func (op *operation) relate(owner, referencing, field string, action schema.DeleteAction) {
	rel := op.e.tables.Relations(owner)
	if rel.Add(referencing, field, action) {
		op.onUndo(func() { rel.Drop(referencing, field) })
	}
}
