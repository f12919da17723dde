package engine

import (
	"github.com/roach88/prevail/internal/index"
	"github.com/roach88/prevail/internal/schema"
)

// entry is one index entry of an entity: a field or composite key and the
// value stored under it.
type entry struct {
	key   string
	value any
}

// fieldEntries returns the index entries of a value field. A list yields
// one entry per element.
func fieldEntries(f *schema.Field, ent schema.Entity) []entry {
	if f.Kind() == schema.KindScalarList {
		values := f.Values(ent)
		out := make([]entry, len(values))
		for i, v := range values {
			out[i] = entry{key: f.Name(), value: v}
		}
		return out
	}
	return []entry{{key: f.Name(), value: f.Value(ent)}}
}

// compositeValue returns the tuple of a composite index and whether any
// member is null.
func compositeValue(s *schema.Schema, spec schema.IndexSpec, ent schema.Entity) (any, bool) {
	values := make([]any, len(spec.Fields))
	null := false
	for i, name := range spec.Fields {
		f, _ := s.Field(name)
		values[i] = f.Value(ent)
		null = null || values[i] == nil
	}
	return index.Tuple(values...), null
}

// valueEntries returns every index entry of the value fields of ent.
func valueEntries(s *schema.Schema, ent schema.Entity) []entry {
	var out []entry
	for _, f := range s.Fields() {
		if f.Indexed() && !f.Kind().IsReference() {
			out = append(out, fieldEntries(f, ent)...)
		}
	}
	for _, spec := range s.Composites() {
		v, _ := compositeValue(s, spec, ent)
		out = append(out, entry{key: spec.Key, value: v})
	}
	return out
}

// checkValues validates the unique and not-null constraints of the value
// fields of ent. self is excluded from uniqueness checks. Null values never
// violate uniqueness.
func (op *operation) checkValues(s *schema.Schema, ent schema.Entity, self schema.Ref) error {
	idx := op.e.tables.Index(s.Name())
	for _, f := range s.Fields() {
		if !f.Unique() || f.Kind().IsReference() {
			continue
		}
		for _, en := range fieldEntries(f, ent) {
			if en.value != nil && idx.IndexedByOther(en.key, en.value, self) {
				return uniqueViolation(s.Name(), f.Name(), en.value)
			}
		}
	}
	for _, spec := range s.Composites() {
		if !spec.Unique {
			continue
		}
		v, null := compositeValue(s, spec, ent)
		if !null && idx.IndexedByOther(spec.Key, v, self) {
			return uniqueViolation(s.Name(), spec.Key, v)
		}
	}
	for _, f := range s.Fields() {
		if f.NotNull() && f.IsNull(ent) {
			return notNullViolation(s.Name(), f.Name())
		}
	}
	return nil
}

// checkRefs validates unique foreign keys whose targets are already
// persistent. Targets added by reachability are checked as they are linked.
func (op *operation) checkRefs(s *schema.Schema, ent schema.Entity, self schema.Ref) error {
	for _, f := range s.ForeignKeys() {
		if fk, _ := f.ForeignKey(); !fk.Unique {
			continue
		}
		for _, t := range targets(f, ent) {
			o := t.PrevalentObject()
			if !o.IsPersistent() {
				continue
			}
			if err := op.checkUniqueRef(s, f, o.ObjectID(), self); err != nil {
				return err
			}
		}
	}
	return nil
}

func (op *operation) checkUniqueRef(s *schema.Schema, f *schema.Field, target schema.ID, self schema.Ref) error {
	fk, ok := f.ForeignKey()
	if !ok || !fk.Unique {
		return nil
	}
	if op.e.tables.Index(s.Name()).IndexedByOther(f.Name(), target, self) {
		return uniqueViolation(s.Name(), f.Name(), target)
	}
	return nil
}

// targets returns the non-nil entities held by a reference field.
func targets(f *schema.Field, ent schema.Entity) []schema.Entity {
	if f.Kind() == schema.KindRefList {
		return f.Refs(ent)
	}
	if t := f.Ref(ent); t != nil {
		return []schema.Entity{t}
	}
	return nil
}

// deletePlan is the closure of a delete: the owner and everything its
// cascade rules reach, in visiting order.
type deletePlan struct {
	order    []schema.Ref
	included map[schema.Ref]bool
	rejects  []rejection
}

type rejection struct {
	owner schema.Ref
	rule  string
}

// planDelete walks the cascade closure of r without mutating anything and
// fails with a delete conflict if any entity in it owns a reject rule. A
// registered reject rule aborts whether or not a referencing entity exists.
func (op *operation) planDelete(r schema.Ref) (*deletePlan, error) {
	p := &deletePlan{included: make(map[schema.Ref]bool)}
	op.collect(p, r)
	if len(p.rejects) > 0 {
		rj := p.rejects[0]
		return nil, deleteConflict(rj.owner, rj.rule)
	}
	return p, nil
}

func (op *operation) collect(p *deletePlan, r schema.Ref) {
	if p.included[r] {
		return
	}
	p.included[r] = true
	p.order = append(p.order, r)

	rel := op.e.tables.Relations(r.Type)
	for _, holderType := range rel.Referencing() {
		idx := op.e.tables.Index(holderType)
		for _, rule := range rel.Rules(holderType) {
			holders := idx.Get(rule.Field, r.ID)
			switch rule.Action {
			case schema.Cascade:
				for _, h := range holders {
					op.collect(p, h)
				}
			case schema.Reject:
				p.rejects = append(p.rejects, rejection{owner: r, rule: holderType + "." + rule.Field})
			}
		}
	}
}
