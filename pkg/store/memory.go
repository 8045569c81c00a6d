package store

import (
	"context"
	"sync"

	"github.com/Sternrassler/steam-monitor/pkg/tracker"
)

// Memory is a process-local store.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]tracker.Entity
}

var _ tracker.Store = (*Memory)(nil)

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{entities: make(map[string]tracker.Entity)}
}

func (m *Memory) Load(ctx context.Context) (map[string]tracker.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	observe("memory", "load", nil)

	out := make(map[string]tracker.Entity, len(m.entities))
	for id, e := range m.entities {
		out[id] = e
	}
	return out, nil
}

func (m *Memory) Save(ctx context.Context, e tracker.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	observe("memory", "save", nil)
	m.entities[e.ID] = e
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	observe("memory", "delete", nil)
	delete(m.entities, id)
	return nil
}
