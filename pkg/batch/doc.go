// Package batch runs a worker over a list of items with a bounded number of
// calls in flight.
//
// Example usage:
//
//	outcomes := batch.Map(ctx, ids, func(ctx context.Context, id string) tracker.Outcome {
//		return task.Refresh(ctx, prev[id])
//	}, 8, func(completed int, id string) {
//		log.Debug().Int("completed", completed).Str("app_id", id).Msg("Progress")
//	})
//
// Map:
//   - Starts at most maxInFlight workers
//   - Admits the next item as soon as any worker finishes
//   - Calls onDone in completion order, one call at a time
//   - Returns results in input order after every worker has returned
//
// Map does not interpret results or the context. Workers that want to stop
// early must check ctx themselves and return a value saying so.
package batch
