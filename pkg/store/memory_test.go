package store

import (
	"context"
	"testing"

	"github.com/Sternrassler/steam-monitor/pkg/tracker"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if err := s.Save(ctx, tracker.Entity{ID: "570", Name: "Dota 2"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, _ := s.Load(ctx)
	if loaded["570"].Name != "Dota 2" {
		t.Errorf("Load() = %+v", loaded)
	}

	// Load returns a copy.
	delete(loaded, "570")
	again, _ := s.Load(ctx)
	if len(again) != 1 {
		t.Error("Mutating the loaded map must not affect the store")
	}

	if err := s.Delete(ctx, "570"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	again, _ = s.Load(ctx)
	if len(again) != 0 {
		t.Errorf("Load() after Delete = %+v", again)
	}
}
