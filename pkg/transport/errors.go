package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a relay (or the whole resolve call) failed.
type Kind string

const (
	// KindRateLimited represents a 429 answer from a relay.
	KindRateLimited Kind = "rate_limited"

	// KindForbidden represents a 403 answer from a relay.
	KindForbidden Kind = "forbidden"

	// KindMalformedPayload represents a body that is not a JSON object.
	KindMalformedPayload Kind = "malformed_payload"

	// KindNetwork represents connection errors, timeouts and other non-2xx statuses.
	KindNetwork Kind = "network"

	// KindExhausted is returned by Resolve when every relay failed.
	KindExhausted Kind = "all_transports_exhausted"
)

var (
	// ErrNoRelays is returned by New when the adapter list is empty.
	ErrNoRelays = errors.New("at least one relay is required")

	// ErrRelayOpen is wrapped when a relay's circuit breaker rejects the call.
	ErrRelayOpen = errors.New("relay circuit open")

	// ErrCoolingDown is wrapped when a relay is skipped because it recently rate limited us.
	ErrCoolingDown = errors.New("relay cooling down")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// Error is a classified relay failure.
type Error struct {
	Kind       Kind
	Relay      string
	StatusCode int
	Err        error

	// Upstream is set when the relay worked but forwarded a 4xx JSON answer
	// from the upstream API. It says nothing about the relay's health.
	Upstream bool

	// Last holds the most recent specific failure when Kind is KindExhausted.
	Last *Error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind == KindExhausted {
		if e.Last != nil {
			return fmt.Sprintf("all relays exhausted: %v", e.Last)
		}
		return "all relays exhausted"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay %s: %s (status %d): %v", e.Relay, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("relay %s: %s: %v", e.Relay, e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	if e.Kind == KindExhausted && e.Last != nil {
		return e.Last
	}
	return e.Err
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return ""
}

// Reason returns the most specific failure kind: for an exhausted error this
// is the kind of the last relay failure.
func Reason(err error) Kind {
	var terr *Error
	if !errors.As(err, &terr) {
		return ""
	}
	if terr.Kind == KindExhausted && terr.Last != nil {
		return terr.Last.Kind
	}
	return terr.Kind
}

// classifyStatus maps a non-2xx HTTP status to a failure kind.
func classifyStatus(status int) Kind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusForbidden:
		return KindForbidden
	default:
		return KindNetwork
	}
}

// shouldRetry reports whether a failure kind may succeed on the same relay.
func shouldRetry(kind Kind) bool {
	switch kind {
	case KindNetwork:
		return true
	case KindRateLimited, KindForbidden, KindMalformedPayload:
		// Known futile on the same relay; move to the next one.
		return false
	default:
		return false
	}
}

// retryable reports whether err may be retried on the same relay.
func retryable(err error) bool {
	if errors.Is(err, ErrRelayOpen) || errors.Is(err, ErrCoolingDown) {
		return false
	}
	var terr *Error
	if errors.As(err, &terr) {
		return !terr.Upstream && shouldRetry(terr.Kind)
	}
	return true
}

// relayHealthy reports whether err leaves the relay's breaker untouched:
// no error, an upstream answer passed through, or a caller cancellation.
func relayHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var terr *Error
	return errors.As(err, &terr) && terr.Upstream
}
