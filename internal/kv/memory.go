package kv

import (
	"context"
	"sync"
)

// Memory is a process-local backend. Tabs opened on the same Memory see
// each other's writes.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
	hub   *hub
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]string),
		hub:   newHub(),
	}
}

// Open returns a new tab on m.
func (m *Memory) Open() *Tab {
	return newTab(m)
}

// Close is a no-op; it exists so every backend can be closed the same way.
func (m *Memory) Close() error {
	return nil
}

func (m *Memory) get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) set(_ context.Context, key, value, origin string) error {
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()

	m.hub.publish(Event{Key: key, Origin: origin})
	return nil
}

func (m *Memory) remove(_ context.Context, key, origin string) error {
	m.mu.Lock()
	_, existed := m.items[key]
	delete(m.items, key)
	m.mu.Unlock()

	if existed {
		m.hub.publish(Event{Key: key, Origin: origin})
	}
	return nil
}

func (m *Memory) watchers() *hub {
	return m.hub
}
