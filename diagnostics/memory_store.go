package diagnostics

import (
	"context"
	"sync"
)

// MemoryStore keeps traces in process memory. Intended for tests and
// single-shot CLI runs.
type MemoryStore struct {
	mu     sync.RWMutex
	traces map[string]*Trace
	order  []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{traces: make(map[string]*Trace)}
}

// Name implements Store.
func (s *MemoryStore) Name() string { return string(StoreTypeMemory) }

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, trace *Trace) error {
	if err := ValidateRunID(trace.RunID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.traces[trace.RunID]; !exists {
		s.order = append(s.order, trace.RunID)
	}
	s.traces[trace.RunID] = trace.Clone()
	return nil
}

// Load implements Loader.
func (s *MemoryStore) Load(ctx context.Context, runID string) (*Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.traces[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// List implements Lister.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.order[i])
	}
	return out, nil
}

// Len returns the number of stored traces.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.traces)
}
