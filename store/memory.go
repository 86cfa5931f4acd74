package store

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// InMemoryStore is a process-local key/value store.
//
// Concurrency: protected by RWMutex. Values are copied on the way in and out,
// so callers may reuse their buffers.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ core.Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string][]byte)}
}

// Get implements core.Store.
func (s *InMemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), v...), true, nil
}

// Set implements core.Store.
func (s *InMemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), value...)

	return nil
}

// Keys returns every stored key in sorted order.
func (s *InMemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
