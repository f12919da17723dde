package prevalence

import (
	"context"

	"github.com/roach88/prevail/internal/engine"
	"github.com/roach88/prevail/internal/journal"
	"github.com/roach88/prevail/internal/schema"
	"github.com/roach88/prevail/internal/search"
)

// Queries run under the read lock and return composed copies, which stay
// valid after the lock is released.

// Fetch returns the entity typ#id with its reachable graph.
func (s *System) Fetch(typ string, id schema.ID) (schema.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.engine.Fetch(typ, id)
}

// FetchAs is Fetch typed by the entity type.
func FetchAs[T schema.Entity](s *System, id schema.ID) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		var zero T
		return zero, ErrClosed
	}
	return engine.FetchAs[T](s.engine, id)
}

// FetchRange returns stored entities by insertion position in [start, end).
func (s *System) FetchRange(typ string, start, end int) ([]schema.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.engine.FetchRange(typ, start, end)
}

// FetchByIndex returns the entities indexed under value.
func (s *System) FetchByIndex(typ, field string, value any) ([]schema.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.engine.FetchByIndex(typ, field, value)
}

// FetchUnion returns the entities matching any of the field values.
func (s *System) FetchUnion(typ string, params map[string]any) ([]schema.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.engine.FetchUnion(typ, params)
}

// FetchIntersection returns the entities matching all of the field values.
func (s *System) FetchIntersection(typ string, params map[string]any) ([]schema.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.engine.FetchIntersection(typ, params)
}

// Search runs a full-text query and resolves the hits.
func (s *System) Search(q search.Query) ([]schema.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.engine.Search(q)
}

// Count returns the number of stored entities of typ.
func (s *System) Count(typ string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Count(typ)
}

// Stats describes an opened System.
type Stats struct {
	Session         string
	Seq             int64
	Entities        map[string]int
	SearchDocuments int
	Journal         journal.Stats
}

// Stats returns entity counts and journal statistics.
func (s *System) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrClosed
	}
	js, err := s.journal.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Session:  s.session,
		Seq:      s.seq.Current(),
		Entities: s.engine.Stats(),
		Journal:  js,
	}
	if s.search != nil {
		st.SearchDocuments = s.search.Count()
	}
	return st, nil
}
