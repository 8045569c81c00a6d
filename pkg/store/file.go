package store

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/goccy/go-json"

	"github.com/Sternrassler/steam-monitor/pkg/tracker"
)

// File keeps the tracking set as a JSON array in a single file.
type File struct {
	path string

	mu       sync.Mutex
	entities map[string]tracker.Entity
	loaded   bool
}

var _ tracker.Store = (*File)(nil)

// NewFile creates a file store at path. The file is created on first write.
func NewFile(path string) *File {
	return &File{
		path:     path,
		entities: make(map[string]tracker.Entity),
	}
}

// Path returns the backing file.
func (f *File) Path() string {
	return f.path
}

// Load reads the file. A missing file is an empty set.
func (f *File) Load(ctx context.Context) (map[string]tracker.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.read()
	observe("file", "load", err)
	if err != nil {
		return nil, err
	}

	out := make(map[string]tracker.Entity, len(f.entities))
	for id, e := range f.entities {
		out[id] = e
	}
	StoreEntities.WithLabelValues("file").Set(float64(len(out)))
	return out, nil
}

// Save writes e and rewrites the file.
func (f *File) Save(ctx context.Context, e tracker.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.ensureLoaded()
	if err == nil {
		f.entities[e.ID] = e
		err = f.write()
	}
	observe("file", "save", err)
	return err
}

// Delete removes id and rewrites the file.
func (f *File) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.ensureLoaded()
	if err == nil {
		if _, ok := f.entities[id]; !ok {
			observe("file", "delete", nil)
			return nil
		}
		delete(f.entities, id)
		err = f.write()
	}
	observe("file", "delete", err)
	return err
}

func (f *File) ensureLoaded() error {
	if f.loaded {
		return nil
	}
	return f.read()
}

func (f *File) read() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		f.entities = make(map[string]tracker.Entity)
		f.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", f.path, err)
	}

	var list []tracker.Entity
	if len(data) > 0 {
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("%w in %s: %v", ErrInvalidEntry, f.path, err)
		}
	}

	f.entities = make(map[string]tracker.Entity, len(list))
	for _, e := range list {
		if e.ID == "" {
			continue
		}
		f.entities[e.ID] = e
	}
	f.loaded = true
	return nil
}

// write replaces the file through a temp file in the same directory.
func (f *File) write() error {
	list := make([]tracker.Entity, 0, len(f.entities))
	for _, e := range f.entities {
		list = append(list, e)
	}
	slices.SortFunc(list, func(a, b tracker.Entity) int {
		return cmp.Compare(a.ID, b.ID)
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracking set: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
