package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-memory Store used in tests and as a throwaway backend.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]json.RawMessage)}
}

// ReadAll returns a copy of the collection.
func (m *Memory) ReadAll(_ context.Context, collection string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(m.data[collection]))
	for k, v := range m.data[collection] {
		out[k] = v
	}
	return out, nil
}

// Update applies the batch; nil values delete.
func (m *Memory) Update(_ context.Context, collection string, entries map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.data[collection]
	if col == nil {
		col = make(map[string]json.RawMessage)
		m.data[collection] = col
	}

	for key, value := range entries {
		if value == nil {
			delete(col, key)
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshaling %s/%s: %w", collection, key, err)
		}
		col[key] = raw
	}
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
