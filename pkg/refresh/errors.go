package refresh

import "errors"

var (
	// ErrBusy is returned when a session is already running.
	ErrBusy = errors.New("a refresh session is already running")

	// ErrAlreadyTracked is returned by Add for an id already in the set.
	ErrAlreadyTracked = errors.New("app is already tracked")

	// ErrNotTracked is returned for an id that is not in the set.
	ErrNotTracked = errors.New("app is not tracked")

	// ErrRoundLimit is returned when Config.MaxRounds ran out with ids still pending.
	ErrRoundLimit = errors.New("round limit reached with apps still pending")
)
