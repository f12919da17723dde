package search

import (
	"fmt"
	"log/slog"
	"sync"
)

// DefaultBatchSize is the number of writes between index commits.
const DefaultBatchSize = 20

// Service is the search engine used by the store. It commits the index to
// disk every batchSize writes and on Close. An empty path keeps the index
// in memory only.
type Service struct {
	index     *FulltextIndex
	path      string
	batchSize int
	logger    *slog.Logger

	mu      sync.Mutex
	pending int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService returns an empty in-memory service.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{index: NewFulltextIndex(), batchSize: DefaultBatchSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenService loads the index stored at path, if any.
func OpenService(path string, batchSize int, opts ...ServiceOption) (*Service, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	s := NewService(opts...)
	s.path = path
	s.batchSize = batchSize
	if path != "" {
		if err := s.index.Load(path); err != nil {
			return nil, fmt.Errorf("load search index: %w", err)
		}
	}
	return s, nil
}

// Index adds or replaces the document of an entity.
func (s *Service) Index(key string, fields map[string]string) error {
	s.index.Index(key, fields)
	return s.written()
}

// Remove drops the document of an entity.
func (s *Service) Remove(key string) error {
	s.index.Remove(key)
	return s.written()
}

// Search runs a query.
func (s *Service) Search(q Query) ([]Hit, error) {
	return s.index.Search(q), nil
}

// Count returns the number of indexed documents.
func (s *Service) Count() int {
	return s.index.Count()
}

// Clear drops every document.
func (s *Service) Clear() {
	s.index.Clear()
}

// Commit persists the index if it changed since the last commit.
func (s *Service) Commit() error {
	s.mu.Lock()
	s.pending = 0
	s.mu.Unlock()

	if s.path == "" || !s.index.IsDirty() {
		return nil
	}
	if err := s.index.Save(s.path); err != nil {
		return fmt.Errorf("commit search index: %w", err)
	}
	s.logger.Debug("search index committed", "path", s.path, "documents", s.index.Count())
	return nil
}

// Close commits pending writes.
func (s *Service) Close() error {
	return s.Commit()
}

func (s *Service) written() error {
	s.mu.Lock()
	s.pending++
	due := s.pending >= s.batchSize
	s.mu.Unlock()
	if !due {
		return nil
	}
	return s.Commit()
}
