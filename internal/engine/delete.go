package engine

import (
	"github.com/roach88/prevail/internal/schema"
)

// delete removes r and applies the delete rules of its referencing types
// in the order they were registered. Reject rules are checked for the whole
// cascade before anything is mutated.
func (op *operation) delete(r schema.Ref) error {
	plan, err := op.planDelete(r)
	if err != nil {
		return err
	}
	if err := op.deleteOne(r, plan); err != nil {
		return err
	}
	op.e.logger.Debug("entity deleted", "type", r.Type, "id", r.ID, "cascaded", len(plan.order)-1)
	return nil
}

func (op *operation) deleteOne(r schema.Ref, plan *deletePlan) error {
	if op.deleting[r] {
		return nil
	}
	op.deleting[r] = true

	s, err := op.e.schemaOf(r.Type)
	if err != nil {
		return err
	}

	rel := op.e.tables.Relations(r.Type)
	for _, holderType := range rel.Referencing() {
		hs, err := op.e.schemaOf(holderType)
		if err != nil {
			return err
		}
		idx := op.e.tables.Index(holderType)
		for _, rule := range rel.Rules(holderType) {
			if rule.Action == schema.Reject {
				return deleteConflict(r, holderType+"."+rule.Field)
			}
			holders := idx.Get(rule.Field, r.ID)
			switch rule.Action {
			case schema.Cascade:
				for _, h := range holders {
					if err := op.deleteOne(h, plan); err != nil {
						return err
					}
				}
			case schema.NullOut:
				for _, h := range holders {
					if !plan.included[h] {
						op.nullOut(hs, h, rule.Field, r.ID)
					}
				}
			}
		}
	}

	if !op.e.tables.Primary(r.Type).Has(r.ID) {
		return nil
	}
	op.remove(r)
	op.indexRemoveRef(r)
	op.unlinkAll(r)
	op.notify(s, r, true)
	return nil
}

// nullOut clears the reference of holder h to owner, or drops owner from a
// reference list, and touches the stored holder.
func (op *operation) nullOut(hs *schema.Schema, h schema.Ref, field string, owner schema.ID) {
	f, ok := hs.Field(field)
	if !ok {
		return
	}
	refs := op.e.tables.References(h.Type)
	link, linked := refs.Get(h.ID, field)
	if !linked || !link.Contains(owner) {
		return
	}

	op.indexRemove(h.Type, field, owner, h)
	if f.Kind() == schema.KindRefList {
		if rest := link.Without(owner); len(rest.IDs) > 0 {
			op.link(h, field, rest)
		} else {
			op.unlink(h, field)
		}
	} else {
		op.unlink(h, field)
		op.indexAdd(h.Type, field, nil, h)
	}

	if stored, ok := op.e.tables.Primary(h.Type).Get(h.ID); ok {
		c := hs.Copy(stored)
		schema.Touch(c, op.at)
		op.put(h, c)
	}
}
