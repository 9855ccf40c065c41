package storage

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a process-local Store, used by tests and ephemeral sessions.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	saves int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Load implements Store.
func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %q: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
