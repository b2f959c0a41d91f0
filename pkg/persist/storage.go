// Package persist backs signals with a key-value store. A persisted signal
// loads its initial value from the store and writes every change back.
package persist

import (
	"context"
	"errors"
	"sync"
)

var ErrInvalidKey = errors.New("persist: invalid key")

// Storage is the get/set/remove contract persisted signals rely on.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Get returns the payload stored under key. A missing key is not an
	// error: it reports ok == false.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte) error
	// Remove deletes key. Removing a missing key succeeds.
	Remove(ctx context.Context, key string) error
}

// MemoryStorage keeps payloads in a map.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items: make(map[string][]byte),
	}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}

	m.mu.Lock()
	m.items[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len is the number of stored keys.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
