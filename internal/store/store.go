// Package store defines the blob storage that cache entries are kept in
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrNotFound is returned by Get when no entry exists for a key
var ErrNotFound = errors.New("cache entry not found")

// Store is key-addressed blob storage.
// Implementations must allow concurrent calls for different keys.
type Store interface {
	// Get opens the entry for key, or returns ErrNotFound
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Put stores size bytes from r under key. A negative size means unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}

// Memory is an in-process Store
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read entry: %w", err)
	}

	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("entry size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	m.entries[key] = data
	m.mu.Unlock()

	return nil
}

// Len returns the number of stored entries
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// Delete removes an entry
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}
