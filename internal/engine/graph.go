package engine

import (
	"slices"

	"github.com/roach88/prevail/internal/schema"
	"github.com/roach88/prevail/internal/storage"
)

// save adds ent if it is not stored yet, and updates it otherwise.
func (op *operation) save(ent schema.Entity) (schema.ID, error) {
	s, err := op.e.reg.SchemaOf(ent)
	if err != nil {
		return 0, storeError("", 0, err)
	}
	o := ent.PrevalentObject()
	if o.IsPersistent() && op.e.tables.Primary(s.Name()).Has(o.ObjectID()) {
		return op.update(s, ent)
	}
	return op.add(s, ent)
}

// attach returns the identity of a referenced entity, adding it first if it
// is not stored. With deep set, a stored target is saved again so edits made
// through the graph reach it. An entity already in the active set is not
// processed again.
func (op *operation) attach(target schema.Entity, deep bool) (schema.ID, error) {
	s, err := op.e.reg.SchemaOf(target)
	if err != nil {
		return 0, storeError("", 0, err)
	}
	o := target.PrevalentObject()
	r := schema.Ref{Type: s.Name(), ID: o.ObjectID()}
	if o.IsPersistent() {
		if _, busy := op.writing[r]; busy {
			return r.ID, nil
		}
		if op.e.tables.Primary(r.Type).Has(r.ID) {
			if deep {
				return op.update(s, target)
			}
			return r.ID, nil
		}
	}
	return op.add(s, target)
}

func (op *operation) add(s *schema.Schema, ent schema.Entity) (schema.ID, error) {
	typ := s.Name()
	supplied := ent.PrevalentObject().ObjectID()
	r := schema.Ref{Type: typ, ID: supplied}

	if supplied != 0 {
		_, busy := op.writing[r]
		if busy || op.e.tables.Primary(typ).Has(supplied) {
			return 0, duplicateIdentity(r)
		}
	}
	if err := op.checkValues(s, ent, r); err != nil {
		return 0, err
	}
	if err := op.checkRefs(s, ent, r); err != nil {
		return 0, err
	}

	if supplied == 0 {
		r.ID = op.nextID(typ)
	} else {
		op.bumpSequence(typ, supplied)
	}
	op.setLifecycle(ent, schema.Lifecycle{ID: r.ID, Persistent: true, Created: op.at, Modified: op.at})
	op.writing[r] = ent

	// Own values are indexed before references are followed, so entities
	// added by reachability are checked against them.
	for _, en := range valueEntries(s, ent) {
		op.indexAdd(typ, en.key, en.value, r)
	}

	for _, f := range s.Fields() {
		var err error
		switch f.Kind() {
		case schema.KindRef:
			err = op.addRef(s, f, ent, r)
		case schema.KindRefList:
			err = op.addRefList(s, f, ent, r)
		}
		if err != nil {
			return 0, err
		}
	}

	op.put(r, s.Flat(ent))
	op.notify(s, r, false)
	op.e.logger.Debug("entity added", "type", typ, "id", r.ID)
	return r.ID, nil
}

func (op *operation) addRef(s *schema.Schema, f *schema.Field, ent schema.Entity, r schema.Ref) error {
	fk, isFK := f.ForeignKey()
	target := f.Ref(ent)
	if target == nil {
		if isFK {
			op.indexAdd(s.Name(), f.Name(), nil, r)
		}
		return nil
	}
	id, err := op.attach(target, false)
	if err != nil {
		return err
	}
	if isFK {
		if err := op.checkUniqueRef(s, f, id, r); err != nil {
			return err
		}
		op.indexAdd(s.Name(), f.Name(), id, r)
		op.relateField(s, f, fk)
	}
	op.link(r, f.Name(), storage.Link{IDs: []schema.ID{id}})
	return nil
}

func (op *operation) addRefList(s *schema.Schema, f *schema.Field, ent schema.Entity, r schema.Ref) error {
	ids, err := op.attachAll(f, ent, false)
	if err != nil || len(ids) == 0 {
		return err
	}
	if fk, isFK := f.ForeignKey(); isFK {
		for _, id := range ids {
			if err := op.checkUniqueRef(s, f, id, r); err != nil {
				return err
			}
			op.indexAdd(s.Name(), f.Name(), id, r)
		}
		op.relateField(s, f, fk)
	}
	op.link(r, f.Name(), storage.Link{Many: true, IDs: ids})
	return nil
}

// attachAll attaches the members of a reference list and returns their
// identities in list order, without repeats.
func (op *operation) attachAll(f *schema.Field, ent schema.Entity, deep bool) ([]schema.ID, error) {
	var ids []schema.ID
	for _, t := range f.Refs(ent) {
		id, err := op.attach(t, deep)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (op *operation) relateField(s *schema.Schema, f *schema.Field, fk schema.ForeignKey) {
	target, err := op.e.reg.Target(f)
	if err != nil {
		return
	}
	op.relate(target.Name(), s.Name(), f.Name(), fk.Action)
}

func (op *operation) update(s *schema.Schema, ent schema.Entity) (schema.ID, error) {
	typ := s.Name()
	r := schema.Ref{Type: typ, ID: ent.PrevalentObject().ObjectID()}
	if _, busy := op.writing[r]; busy {
		return r.ID, nil
	}
	stored, ok := op.e.tables.Primary(typ).Get(r.ID)
	if !ok {
		return 0, storeError(typ, r.ID, ErrNotFound)
	}
	if err := op.checkValues(s, ent, r); err != nil {
		return 0, err
	}
	op.writing[r] = ent

	for _, f := range s.Fields() {
		if !f.Indexed() || f.Kind().IsReference() || f.Equal(ent, stored) {
			continue
		}
		op.indexClear(typ, f.Name(), r)
		for _, en := range fieldEntries(f, ent) {
			op.indexAdd(typ, en.key, en.value, r)
		}
	}
	for _, spec := range s.Composites() {
		if !compositeChanged(s, spec, ent, stored) {
			continue
		}
		op.indexClear(typ, spec.Key, r)
		v, _ := compositeValue(s, spec, ent)
		op.indexAdd(typ, spec.Key, v, r)
	}

	for _, f := range s.Fields() {
		var err error
		switch f.Kind() {
		case schema.KindRef:
			err = op.updateRef(s, f, ent, r)
		case schema.KindRefList:
			err = op.updateRefList(s, f, ent, r)
		}
		if err != nil {
			return 0, err
		}
	}

	created := stored.PrevalentObject().CreatedAt()
	op.setLifecycle(ent, schema.Lifecycle{ID: r.ID, Persistent: true, Created: created, Modified: op.at})
	op.put(r, s.Flat(ent))
	op.notify(s, r, false)
	op.e.logger.Debug("entity updated", "type", typ, "id", r.ID)
	return r.ID, nil
}

func compositeChanged(s *schema.Schema, spec schema.IndexSpec, a, b schema.Entity) bool {
	for _, name := range spec.Fields {
		if f, _ := s.Field(name); !f.Equal(a, b) {
			return true
		}
	}
	return false
}

// updateRef re-points a single reference: the new target is attached, and
// the index and reference entries move from the old target to the new one.
// A cleared foreign key is indexed under null.
func (op *operation) updateRef(s *schema.Schema, f *schema.Field, ent schema.Entity, r schema.Ref) error {
	fk, isFK := f.ForeignKey()
	old, hadOld := op.e.tables.References(r.Type).Get(r.ID, f.Name())
	oldID, _ := old.Single()

	target := f.Ref(ent)
	if target == nil {
		if !hadOld {
			return nil
		}
		op.unlink(r, f.Name())
		if isFK {
			op.indexClear(r.Type, f.Name(), r)
			op.indexAdd(r.Type, f.Name(), nil, r)
		}
		return nil
	}

	id, err := op.attach(target, true)
	if err != nil {
		return err
	}
	if hadOld && oldID == id {
		return nil
	}
	if isFK {
		if err := op.checkUniqueRef(s, f, id, r); err != nil {
			return err
		}
		op.indexClear(r.Type, f.Name(), r)
		op.indexAdd(r.Type, f.Name(), id, r)
		op.relateField(s, f, fk)
	}
	op.link(r, f.Name(), storage.Link{IDs: []schema.ID{id}})
	return nil
}

// updateRefList applies the new members of a reference list as a diff
// against the stored link: removed members are de-indexed, added members
// are attached, checked and indexed, and the link takes the new order.
func (op *operation) updateRefList(s *schema.Schema, f *schema.Field, ent schema.Entity, r schema.Ref) error {
	old, _ := op.e.tables.References(r.Type).Get(r.ID, f.Name())
	ids, err := op.attachAll(f, ent, true)
	if err != nil {
		return err
	}
	if slices.Equal(old.IDs, ids) {
		return nil
	}

	if fk, isFK := f.ForeignKey(); isFK {
		for _, id := range old.IDs {
			if !slices.Contains(ids, id) {
				op.indexRemove(r.Type, f.Name(), id, r)
			}
		}
		for _, id := range ids {
			if old.Contains(id) {
				continue
			}
			if err := op.checkUniqueRef(s, f, id, r); err != nil {
				return err
			}
			op.indexAdd(r.Type, f.Name(), id, r)
		}
		if len(ids) > 0 {
			op.relateField(s, f, fk)
		}
	}

	if len(ids) == 0 {
		op.unlink(r, f.Name())
		return nil
	}
	op.link(r, f.Name(), storage.Link{Many: true, IDs: ids})
	return nil
}

// composer rebuilds live graphs from the tables. Its active set maps every
// entity composed so far to its instance, so each identity is composed once
// per fetch and cycles close on the same instance.
type composer struct {
	e      *Engine
	active map[schema.Ref]schema.Entity
}

func (e *Engine) newComposer() *composer {
	return &composer{e: e, active: make(map[schema.Ref]schema.Entity)}
}

func (c *composer) compose(r schema.Ref) (schema.Entity, bool) {
	if ent, ok := c.active[r]; ok {
		return ent, true
	}
	s, ok := c.e.reg.Lookup(r.Type)
	if !ok {
		return nil, false
	}
	flat, ok := c.e.tables.Primary(r.Type).Get(r.ID)
	if !ok {
		return nil, false
	}
	ent := s.Copy(flat)
	c.active[r] = ent

	refs := c.e.tables.References(r.Type)
	for _, f := range s.Fields() {
		if !f.Kind().IsReference() {
			continue
		}
		link, ok := refs.Get(r.ID, f.Name())
		if !ok {
			continue
		}
		target, err := c.e.reg.Target(f)
		if err != nil {
			continue
		}
		switch f.Kind() {
		case schema.KindRef:
			id, _ := link.Single()
			if t, ok := c.compose(schema.Ref{Type: target.Name(), ID: id}); ok {
				f.SetRef(ent, t)
			}
		case schema.KindRefList:
			list := make([]schema.Entity, 0, len(link.IDs))
			for _, id := range link.IDs {
				if t, ok := c.compose(schema.Ref{Type: target.Name(), ID: id}); ok {
					list = append(list, t)
				}
			}
			f.SetRefs(ent, list)
		}
	}
	return ent, true
}
