package steamapi

import (
	"errors"
	"fmt"
)

// ErrInvalidIdentifier is returned when the store explicitly reports an app id
// as unknown. Retrying will not help.
var ErrInvalidIdentifier = errors.New("invalid app id")

// LookupError is a transient Details failure: the relays were unreachable or
// the payload had an unexpected shape.
type LookupError struct {
	ID  string
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup app %s: %v", e.ID, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err means the app id will never resolve.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidIdentifier)
}
