package store

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-memory KV with the same semantics as PGStore. It backs
// tests and keeps the store abstraction honest.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(ctx context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	cp := e
	cp.Value = append([]byte(nil), e.Value...)
	return &cp, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	m.entries[key] = Entry{Key: key, Value: append([]byte(nil), value...), Version: e.Version + 1}
	return nil
}

func (m *Memory) SetCAS(ctx context.Context, key string, value []byte, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.Version != version {
		return ErrVersionConflict
	}
	m.entries[key] = Entry{Key: key, Value: append([]byte(nil), value...), Version: version + 1}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	delete(m.entries, key)
	return e.Value, nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []Entry
	for key, e := range m.entries {
		if strings.HasPrefix(key, prefix) {
			cp := e
			cp.Value = append([]byte(nil), e.Value...)
			entries = append(entries, cp)
		}
	}
	return entries, nil
}
