package kvstore

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. It backs guest-only sessions
// and tests; nothing survives a restart unless the same instance is reused.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, storageError("get", key, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	return value, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return storageError("set", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return storageError("remove", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Apply commits the batch under a single lock.
func (m *MemoryStore) Apply(ctx context.Context, batch Batch) error {
	if err := ctx.Err(); err != nil {
		return storageError("apply", "", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range batch.Sets {
		m.data[key] = value
	}
	for _, key := range batch.Removes {
		delete(m.data, key)
	}
	return nil
}

// Keys returns a snapshot of the stored keys.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	return keys
}
