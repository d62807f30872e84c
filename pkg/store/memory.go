package store

import (
	"context"
	"sync"
)

// MemoryStore implements Store with an in-process map. It provides no
// crash durability and exists for tests, examples, and dry runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get retrieves the value for a key.
// Returns ErrNotFound if the key doesn't exist.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	storeOperationsTotal.WithLabelValues("memory", "get").Inc()

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	// Copy so callers can't mutate stored bytes.
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores the value, replacing any previous value.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	storeOperationsTotal.WithLabelValues("memory", "set").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

// Remove deletes the key.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	storeOperationsTotal.WithLabelValues("memory", "remove").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}
