package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/prevail/internal/schema"
	"github.com/roach88/prevail/internal/search"
	"github.com/roach88/prevail/internal/storage"
)

// SearchIndex is the full-text engine notified of searchable entities.
// Implemented by search.Service.
type SearchIndex interface {
	Index(key string, fields map[string]string) error
	Remove(key string) error
	Search(q search.Query) ([]search.Hit, error)
}

// Engine is the in-memory object store.
//
// Engine is not safe for concurrent mutation: callers serialize Save and
// Delete, and must not run reads concurrently with them.
type Engine struct {
	reg    *schema.Registry
	tables *storage.Tables
	search SearchIndex
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSearch sets the search engine notified of searchable entities.
func WithSearch(idx SearchIndex) Option {
	return func(e *Engine) {
		e.search = idx
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an empty engine over the types of reg. Every reference field
// must target a registered type.
func New(reg *schema.Registry, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("new engine: nil registry")
	}
	if err := reg.Verify(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	e := &Engine{
		reg:    reg,
		tables: storage.NewTables(),
		logger: slog.Default(),
	}
	e.tables.Prepare(typeNames(reg)...)
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func typeNames(reg *schema.Registry) []string {
	schemas := reg.Schemas()
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name()
	}
	return names
}

// Registry returns the schemas the engine was built with.
func (e *Engine) Registry() *schema.Registry {
	return e.reg
}

// Save adds a transient entity, or updates a persistent one, at the given
// execution time. Unsaved entities reachable through reference fields are
// added too. It returns the identity of ent.
//
// On error nothing is changed, including the lifecycle of caller entities.
func (e *Engine) Save(ent schema.Entity, at time.Time) (schema.ID, error) {
	var id schema.ID
	err := e.run(at, func(op *operation) error {
		var err error
		id, err = op.save(ent)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Delete removes a persistent entity and applies the delete policy of every
// foreign key pointing at it. On success ent is detached: its identity and
// lifecycle metadata are cleared.
func (e *Engine) Delete(ent schema.Entity, at time.Time) error {
	s, err := e.reg.SchemaOf(ent)
	if err != nil {
		return storeError("", 0, err)
	}
	o := ent.PrevalentObject()
	if !o.IsPersistent() {
		return storeErrorf(s.Name(), 0, "delete of a transient entity")
	}
	if err := e.DeleteByID(s.Name(), o.ObjectID(), at); err != nil {
		return err
	}
	schema.Detach(ent)
	return nil
}

// DeleteByID removes the entity typ#id. See Delete.
func (e *Engine) DeleteByID(typ string, id schema.ID, at time.Time) error {
	if _, ok := e.reg.Lookup(typ); !ok {
		return storeErrorf(typ, id, "type is not registered")
	}
	if !e.tables.Primary(typ).Has(id) {
		return storeError(typ, id, ErrNotFound)
	}
	return e.run(at, func(op *operation) error {
		return op.delete(schema.Ref{Type: typ, ID: id})
	})
}

// Count returns the number of stored entities of typ, zero for an unknown type.
func (e *Engine) Count(typ string) int {
	if _, ok := e.reg.Lookup(typ); !ok {
		return 0
	}
	return e.tables.Primary(typ).Len()
}

// Stats returns the number of stored entities per registered type.
func (e *Engine) Stats() map[string]int {
	out := make(map[string]int)
	for _, s := range e.reg.Schemas() {
		out[s.Name()] = e.Count(s.Name())
	}
	return out
}

// Reindex pushes every searchable entity to the search engine and returns
// the number of documents sent.
func (e *Engine) Reindex() int {
	if e.search == nil {
		return 0
	}
	n := 0
	for _, s := range e.reg.Schemas() {
		if !s.Searchable() {
			continue
		}
		for _, id := range e.tables.Primary(s.Name()).IDs() {
			e.pushDocument(s, schema.Ref{Type: s.Name(), ID: id})
			n++
		}
	}
	return n
}

func (e *Engine) schemaOf(typ string) (*schema.Schema, error) {
	s, ok := e.reg.Lookup(typ)
	if !ok {
		return nil, storeErrorf(typ, 0, "type is not registered")
	}
	return s, nil
}
