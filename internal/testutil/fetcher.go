package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/steam-monitor/pkg/steamapi"
)

// ScriptedFetcher is an in-process upstream for refresh tests. Attribute
// lookups never fail; Details fails with the queued errors first and then
// succeeds for known apps or reports ErrInvalidIdentifier for unknown ones.
type ScriptedFetcher struct {
	mu sync.Mutex

	apps         map[string]MockApp
	detailErrors map[string][]error

	// Delay is applied to every call.
	Delay time.Duration

	activityCalls map[string]int
	liveCalls     map[string]int
	detailCalls   map[string]int
}

// NewScriptedFetcher creates an empty fetcher.
func NewScriptedFetcher() *ScriptedFetcher {
	return &ScriptedFetcher{
		apps:          make(map[string]MockApp),
		detailErrors:  make(map[string][]error),
		activityCalls: make(map[string]int),
		liveCalls:     make(map[string]int),
		detailCalls:   make(map[string]int),
	}
}

// SetApp registers or replaces an app.
func (f *ScriptedFetcher) SetApp(app MockApp) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps[app.ID] = app
}

// SetNewsDate changes an app's activity timestamp.
func (f *ScriptedFetcher) SetNewsDate(id string, date int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app := f.apps[id]
	app.ID = id
	app.NewsDate = date
	f.apps[id] = app
}

// FailDetails queues errors returned by the next Details calls for id.
func (f *ScriptedFetcher) FailDetails(id string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailErrors[id] = append(f.detailErrors[id], errs...)
}

// DetailCalls returns how often Details was called for id.
func (f *ScriptedFetcher) DetailCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[id]
}

// ActivityCalls returns how often LatestActivity was called for id.
func (f *ScriptedFetcher) ActivityCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activityCalls[id]
}

func (f *ScriptedFetcher) wait(ctx context.Context) {
	if f.Delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(f.Delay):
	}
}

// LatestActivity implements tracker.Fetcher.
func (f *ScriptedFetcher) LatestActivity(ctx context.Context, id string) int64 {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activityCalls[id]++
	return f.apps[id].NewsDate
}

// LiveCount implements tracker.Fetcher.
func (f *ScriptedFetcher) LiveCount(ctx context.Context, id string) int {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liveCalls[id]++
	return f.apps[id].Players
}

// Details implements tracker.Fetcher.
func (f *ScriptedFetcher) Details(ctx context.Context, id string) (steamapi.Details, error) {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls[id]++

	if queue := f.detailErrors[id]; len(queue) > 0 {
		f.detailErrors[id] = queue[1:]
		return steamapi.Details{}, queue[0]
	}

	app, ok := f.apps[id]
	if !ok {
		return steamapi.Details{}, fmt.Errorf("app %s: %w", id, steamapi.ErrInvalidIdentifier)
	}
	return steamapi.Details{Name: app.Name, ImageURL: app.ImageURL}, nil
}

// ErrRelaysDown is a ready-made transient Details failure.
var ErrRelaysDown = &steamapi.LookupError{ID: "?", Err: errors.New("all relays exhausted")}
