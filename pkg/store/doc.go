// Package store persists the tracking set.
//
// Three backends implement tracker.Store:
//
//   - Redis keeps every app as one field of a Redis hash, so several
//     monitor processes can share a set.
//   - File keeps the set as a JSON array on disk, rewritten atomically on
//     every change. The format is the same as the export of GET /api/games.
//   - Memory keeps nothing beyond the process lifetime and is used by the
//     one-shot CLI commands and in tests.
//
// Example usage:
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	set := tracker.NewSet(store.NewRedis(redisClient))
//	if err := set.Load(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
