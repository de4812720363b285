package dedup

import (
	"context"
	"sync"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store. It is
// primarily intended for local development and testing; it does not survive
// restarts.
type InMemoryStore struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewInMemoryStore creates a new in-memory dedup store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{ids: make(map[string]struct{})}
}

// Seen reports whether the identifier has been marked.
func (s *InMemoryStore) Seen(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok, nil
}

// Mark records the identifier.
func (s *InMemoryStore) Mark(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
	return nil
}

// Close is a no-op for the in-memory implementation.
func (s *InMemoryStore) Close() error {
	return nil
}
