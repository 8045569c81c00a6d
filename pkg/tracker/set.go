package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrTransient marks a creation failure that may succeed if tried again.
var ErrTransient = errors.New("temporary failure, try again")

// Store persists entities. Implementations live in pkg/store.
type Store interface {
	Load(ctx context.Context) (map[string]Entity, error)
	Save(ctx context.Context, e Entity) error
	Delete(ctx context.Context, id string) error
}

// Set is the owned tracking set. All mutations go through it and are
// written through to the store.
type Set struct {
	mu       sync.RWMutex
	entities map[string]Entity
	store    Store
}

// NewSet creates an empty set backed by store. A nil store keeps the set
// in memory only.
func NewSet(store Store) *Set {
	return &Set{
		entities: make(map[string]Entity),
		store:    store,
	}
}

// Load replaces the set's contents with what the store holds.
func (s *Set) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	loaded, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load tracking set: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = make(map[string]Entity, len(loaded))
	for id, e := range loaded {
		e.ID = id
		s.entities[id] = e
	}
	return nil
}

// Get returns the entity with the given id.
func (s *Set) Get(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// Contains reports whether id is tracked.
func (s *Set) Contains(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Len returns the number of tracked entities.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// IDs returns all tracked ids, sorted.
func (s *Set) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// List returns a snapshot of all entities, sorted by id.
func (s *Set) List() []Entity {
	s.mu.RLock()
	list := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		list = append(list, e)
	}
	s.mu.RUnlock()

	slices.SortFunc(list, func(a, b Entity) int {
		return strings.Compare(a.ID, b.ID)
	})
	return list
}

// Insert adds e if its id is not tracked yet. It reports whether e was added.
func (s *Set) Insert(ctx context.Context, e Entity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[e.ID]; exists {
		return false, nil
	}
	s.entities[e.ID] = e
	return true, s.save(ctx, e)
}

// Update replaces an already tracked entity. An id that has been removed
// in the meantime is not resurrected; Update then reports false.
func (s *Set) Update(ctx context.Context, e Entity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[e.ID]; !exists {
		return false, nil
	}
	s.entities[e.ID] = e
	return true, s.save(ctx, e)
}

// Remove deletes id from the set and the store. It reports whether id was tracked.
func (s *Set) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[id]; !exists {
		return false, nil
	}
	delete(s.entities, id)

	if s.store == nil {
		return true, nil
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return true, fmt.Errorf("delete %s from store: %w", id, err)
	}
	return true, nil
}

func (s *Set) save(ctx context.Context, e Entity) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, e); err != nil {
		return fmt.Errorf("save %s to store: %w", e.ID, err)
	}
	return nil
}
