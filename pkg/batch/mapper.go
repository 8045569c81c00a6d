package batch

import (
	"context"
	"sync"
)

// Worker produces the result for one item.
type Worker[T, R any] func(ctx context.Context, item T) R

// ProgressFunc is called after each item completes with the number of items
// completed so far in this call and the item that just finished.
type ProgressFunc[T any] func(completed int, item T)

// job is one queued item with its input position.
type job[T any] struct {
	index int
	item  T
}

// result is one worker output with its input position.
type result[T, R any] struct {
	index int
	item  T
	value R
}

// Map runs worker over items with at most maxInFlight calls outstanding and
// returns the results in input order. maxInFlight below 1 is treated as 1.
// onDone may be nil.
func Map[T, R any](ctx context.Context, items []T, worker Worker[T, R], maxInFlight int, onDone ProgressFunc[T]) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}

	workers := workerCount(maxInFlight, len(items))

	jobs := make(chan job[T], len(items))
	for i, item := range items {
		jobs <- job[T]{index: i, item: item}
	}
	close(jobs)

	done := make(chan result[T, R])

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				done <- result[T, R]{index: j.index, item: j.item, value: worker(ctx, j.item)}
			}
		}()
	}

	// Close done channel when all workers finished
	go func() {
		wg.Wait()
		close(done)
	}()

	// Collect results; onDone runs on this goroutine only
	completed := 0
	for r := range done {
		results[r.index] = r.value
		completed++
		if onDone != nil {
			onDone(completed, r.item)
		}
	}

	return results
}

// workerCount clamps the pool size to [1, items].
func workerCount(maxInFlight, items int) int {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	if maxInFlight > items {
		return items
	}
	return maxInFlight
}
