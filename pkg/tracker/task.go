package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/steam-monitor/pkg/steamapi"
)

// Fetcher is the upstream the refresh task reads from.
// *steamapi.Client implements it.
type Fetcher interface {
	LatestActivity(ctx context.Context, id string) int64
	LiveCount(ctx context.Context, id string) int
	Details(ctx context.Context, id string) (steamapi.Details, error)
}

var _ Fetcher = (*steamapi.Client)(nil)

// Task refreshes or creates a single entity.
type Task struct {
	fetcher Fetcher
	now     func() time.Time
}

// NewTask creates a task over fetcher.
func NewTask(fetcher Fetcher) *Task {
	return &Task{fetcher: fetcher, now: time.Now}
}

// Refresh fetches the volatile attributes of prev concurrently and merges
// them. The attribute fetchers never fail, so the outcome is always a
// success unless ctx ends first.
func (t *Task) Refresh(ctx context.Context, prev Entity) Outcome {
	if err := ctx.Err(); err != nil {
		return interrupted(prev.ID, err)
	}

	var (
		wg       sync.WaitGroup
		activity int64
		live     int
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		activity = t.fetcher.LatestActivity(ctx, prev.ID)
	}()
	go func() {
		defer wg.Done()
		live = t.fetcher.LiveCount(ctx, prev.ID)
	}()
	wg.Wait()

	// Values fetched under a cancelled context are degraded; don't stamp them.
	if err := ctx.Err(); err != nil {
		return interrupted(prev.ID, err)
	}

	next := Merge(prev, Observation{
		ActivityAt: activity,
		LiveCount:  live,
		CheckedAt:  t.now(),
	})
	return Success(next, HasNewActivity(prev, activity))
}

// Create looks up a new entity. Details, activity and live count are fetched
// concurrently. An id the upstream rejects is fatal, any other details
// failure is transient. A new entity never reports new activity.
func (t *Task) Create(ctx context.Context, id string) Outcome {
	if err := ctx.Err(); err != nil {
		return interrupted(id, err)
	}

	var (
		wg         sync.WaitGroup
		details    steamapi.Details
		detailsErr error
		activity   int64
		live       int
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		details, detailsErr = t.fetcher.Details(ctx, id)
	}()
	go func() {
		defer wg.Done()
		activity = t.fetcher.LatestActivity(ctx, id)
	}()
	go func() {
		defer wg.Done()
		live = t.fetcher.LiveCount(ctx, id)
	}()
	wg.Wait()

	if detailsErr != nil {
		if steamapi.IsFatal(detailsErr) {
			return Fatal(id, detailsErr)
		}
		return Transient(id, fmt.Errorf("%w: %w", ErrTransient, detailsErr))
	}
	if err := ctx.Err(); err != nil {
		return interrupted(id, err)
	}

	return Success(Entity{
		ID:             id,
		Name:           details.Name,
		ImageURL:       details.ImageURL,
		LastCheckedAt:  t.now(),
		LastActivityAt: activity,
		LiveCount:      live,
	}, false)
}

// interrupted is the outcome of a lookup cut short by ctx.
func interrupted(id string, err error) Outcome {
	return Transient(id, fmt.Errorf("%w: %w", ErrTransient, err))
}
