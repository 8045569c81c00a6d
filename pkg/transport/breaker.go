package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// relay pairs an adapter with its optional circuit breaker.
type relay struct {
	adapter Adapter
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// newRelay wraps an adapter with a breaker that opens after the configured
// number of consecutive relay failures. Upstream 4xx answers passed through
// the relay do not count. A threshold of 0 disables the breaker.
func newRelay(a Adapter, failures uint32, timeout time.Duration, logger zerolog.Logger) *relay {
	r := &relay{adapter: a}
	if failures == 0 {
		return r
	}

	relayBreakerState.WithLabelValues(a.Name).Set(0)

	r.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:         a.Name,
		MaxRequests:  1,
		Timeout:      timeout,
		IsSuccessful: relayHealthy,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info().
				Str("relay", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Relay circuit breaker state transition")
			relayBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
	return r
}

// execute runs fn through the breaker when one is configured.
func (r *relay) execute(fn func() ([]byte, error)) ([]byte, error) {
	if r.cb == nil {
		return fn()
	}

	payload, err := r.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &Error{
			Kind:  KindNetwork,
			Relay: r.adapter.Name,
			Err:   fmt.Errorf("%w: %v", ErrRelayOpen, err),
		}
	}
	return payload, err
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
