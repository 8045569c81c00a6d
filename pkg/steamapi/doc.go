// Package steamapi reads the three upstream lookups a tracked app needs:
// its latest news timestamp, its current player count and its store details.
//
// The first two are best effort. Any failure, including an unexpected
// payload, degrades to 0 and is logged at Warn:
//
//	ts := client.LatestActivity(ctx, "570")  // 0 when unknown
//	n := client.LiveCount(ctx, "570")        // 0 when unknown
//
// Details is strict. It returns ErrInvalidIdentifier when the store reports
// the app id as unknown, and a *LookupError for everything else:
//
//	d, err := client.Details(ctx, "570")
//	switch {
//	case errors.Is(err, steamapi.ErrInvalidIdentifier):
//		// permanent
//	case err != nil:
//		// transient, try again later
//	}
package steamapi
