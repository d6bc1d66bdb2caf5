// Package prefs is the key/value preference store the label builder reads
// from. The store is the single source of truth for user labels; nothing
// above it caches values across calls.
package prefs

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Store is a string key/value persistence service.
type Store interface {
	// Get returns the stored value and whether the key was ever set.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key. An empty value is a valid value.
	Set(ctx context.Context, key, value string) error
}

// Pair is one key/value row.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

// List returns all pairs whose key starts with prefix, sorted by key.
func (m *Memory) List(_ context.Context, prefix string) ([]Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Pair
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Pair{Key: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
