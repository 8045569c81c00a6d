package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig holds the per-relay retry policy.
type RetryConfig struct {
	// MaxAttempts is the number of attempts per relay (including the first).
	// 1 disables retrying: every failure moves on to the next relay.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay after each attempt. 1.0 keeps it fixed.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the fail-fast policy: one attempt per relay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       1,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 1.0,
	}
}

// PersistentRetryConfig retries network failures on the same relay a few
// times with a short fixed delay before advancing.
func PersistentRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 1.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 1
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

// retryWithBackoff executes fn until it succeeds, returns a non-retryable
// error, or the attempts are used up. The last error is returned unchanged so
// callers can still inspect its Kind.
func retryWithBackoff(ctx context.Context, relay string, config RetryConfig, fn func() error) error {
	config = config.normalized()

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Debug().
					Str("relay", relay).
					Int("attempt", attempt).
					Msg("Relay succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !retryable(err) {
			return lastErr
		}

		if attempt >= config.MaxAttempts {
			break
		}

		kind := KindOf(err)
		relayRetriesTotal.WithLabelValues(string(kind)).Inc()

		log.Debug().
			Str("relay", relay).
			Str("kind", string(kind)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying relay after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	if config.MaxAttempts > 1 {
		log.Debug().
			Str("relay", relay).
			Int("max_attempts", config.MaxAttempts).
			Msg("Relay retry attempts exhausted")
	}

	return lastErr
}
