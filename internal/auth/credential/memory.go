package credential

import (
	"context"
	"sync"
)

// MemoryStorage implements the Store interface using in-memory storage
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Store = (*MemoryStorage)(nil)

// NewMemoryStorage creates a new memory storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values: make(map[string]string),
	}
}

// Get retrieves a value by key
func (s *MemoryStorage) Get(ctx context.Context, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

// Set stores a value
func (s *MemoryStorage) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Clear deletes a value; clearing an absent key is not an error
func (s *MemoryStorage) Clear(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
