// Package tracker holds the tracked app records, the rules for merging
// freshly fetched attributes into them, and the single-app refresh task.
package tracker

import (
	"time"
)

// Entity is one tracked app.
type Entity struct {
	// ID is the app id. Unique within a Set and never changed by a refresh.
	ID string `json:"id"`

	Name     string `json:"name"`
	ImageURL string `json:"image_url"`

	// LastCheckedAt is when the last successful refresh completed.
	LastCheckedAt time.Time `json:"last_checked_at"`

	// LastActivityAt is the unix timestamp of the newest news item, 0 if unknown.
	LastActivityAt int64 `json:"last_activity_at"`

	// LiveCount is the last known positive player count.
	LiveCount int `json:"live_count"`
}

// Observation is one round of fetched attribute values for an app.
// Zero values mean the fetch failed or found nothing.
type Observation struct {
	ActivityAt int64
	LiveCount  int
	CheckedAt  time.Time
}

// Merge applies an observation to prev. A zero value never overwrites a
// known one. A non-zero activity timestamp is adopted even if older than
// the stored one.
func Merge(prev Entity, obs Observation) Entity {
	next := prev
	next.LastCheckedAt = obs.CheckedAt
	if obs.ActivityAt > 0 {
		next.LastActivityAt = obs.ActivityAt
	}
	if obs.LiveCount > 0 {
		next.LiveCount = obs.LiveCount
	}
	return next
}

// HasNewActivity reports whether fetched is strictly newer than prev's activity.
func HasNewActivity(prev Entity, fetched int64) bool {
	return fetched > prev.LastActivityAt
}
