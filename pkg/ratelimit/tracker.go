package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for relay cooldown tracking.
var (
	relayCooldownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_cooldowns_total",
		Help: "Total number of cooldowns started after a relay answered 403/429",
	}, []string{"relay"})

	relayCooldownSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_cooldown_seconds",
		Help: "Length of the most recent cooldown per relay",
	}, []string{"relay"})
)

// Config controls cooldown lengths.
type Config struct {
	// DefaultCooldown is multiplied by the strike count when no Retry-After is sent.
	DefaultCooldown time.Duration

	// MaxCooldown caps every cooldown.
	MaxCooldown time.Duration

	// StrikeWindow is how long strikes are remembered.
	StrikeWindow time.Duration
}

// DefaultConfig returns the package defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCooldown: DefaultCooldown,
		MaxCooldown:     MaxCooldown,
		StrikeWindow:    StrikeWindow,
	}
}

// Tracker records relay rate limiting in Redis and answers whether a relay
// is cooling down. It satisfies transport.CooldownTracker.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	config Config
	now    func() time.Time
}

// NewTracker creates a new cooldown tracker with DefaultConfig.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		config: DefaultConfig(),
		now:    time.Now,
	}
}

// WithConfig replaces the cooldown configuration. Zero fields keep their defaults.
func (t *Tracker) WithConfig(cfg Config) *Tracker {
	if cfg.DefaultCooldown > 0 {
		t.config.DefaultCooldown = cfg.DefaultCooldown
	}
	if cfg.MaxCooldown > 0 {
		t.config.MaxCooldown = cfg.MaxCooldown
	}
	if cfg.StrikeWindow > 0 {
		t.config.StrikeWindow = cfg.StrikeWindow
	}
	return t
}

// GetState retrieves the cooldown state of a relay from Redis.
// A relay with no recorded state is returned with zero strikes.
func (t *Tracker) GetState(ctx context.Context, relay string) (*CooldownState, error) {
	state := &CooldownState{Relay: relay}

	strikes, err := t.redis.Get(ctx, strikesKey(relay)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get strikes: %w", err)
	}
	state.Strikes = strikes

	until, err := t.redis.Get(ctx, cooldownKey(relay)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	if until > 0 {
		state.CoolingUntil = time.UnixMilli(until)
	}

	last, err := t.redis.Get(ctx, lastLimitedKey(relay)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last limited: %w", err)
	}
	if last > 0 {
		state.LastLimited = time.UnixMilli(last)
	}

	return state, nil
}

// CoolingDown reports whether relay is inside a cooldown window.
func (t *Tracker) CoolingDown(ctx context.Context, relay string) (bool, error) {
	until, err := t.redis.Get(ctx, cooldownKey(relay)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get cooldown: %w", err)
	}
	return t.now().Before(time.UnixMilli(until)), nil
}

// RecordRateLimited adds a strike for relay and starts its cooldown. The
// cooldown honours a Retry-After header, else grows with the strike count.
func (t *Tracker) RecordRateLimited(ctx context.Context, relay string, headers http.Header) error {
	now := t.now()

	// Count the strike first so the cooldown can escalate
	pipe := t.redis.TxPipeline()
	incr := pipe.Incr(ctx, strikesKey(relay))
	pipe.Expire(ctx, strikesKey(relay), t.config.StrikeWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record strike in redis: %w", err)
	}
	strikes := int(incr.Val())

	cooldown := t.cooldownFor(strikes, headers, now)
	until := now.Add(cooldown)

	pipe = t.redis.Pipeline()
	pipe.Set(ctx, cooldownKey(relay), until.UnixMilli(), cooldown)
	pipe.Set(ctx, lastLimitedKey(relay), now.UnixMilli(), t.config.StrikeWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store cooldown in redis: %w", err)
	}

	relayCooldownsTotal.WithLabelValues(relay).Inc()
	relayCooldownSeconds.WithLabelValues(relay).Set(cooldown.Seconds())

	t.logger.Warn().
		Str("relay", relay).
		Int("strikes", strikes).
		Dur("cooldown", cooldown).
		Time("cooling_until", until).
		Msg("Relay rate limited, cooling down")

	return nil
}

// Reset clears all cooldown state for relay.
func (t *Tracker) Reset(ctx context.Context, relay string) error {
	if err := t.redis.Del(ctx, cooldownKey(relay), strikesKey(relay), lastLimitedKey(relay)).Err(); err != nil {
		return fmt.Errorf("reset relay cooldown: %w", err)
	}
	relayCooldownSeconds.WithLabelValues(relay).Set(0)
	return nil
}

// cooldownFor picks the cooldown for the given strike count.
func (t *Tracker) cooldownFor(strikes int, headers http.Header, now time.Time) time.Duration {
	if d, ok := ParseRetryAfter(headers, now); ok {
		return min(d, t.config.MaxCooldown)
	}
	if strikes < 1 {
		strikes = 1
	}
	return min(t.config.DefaultCooldown*time.Duration(strikes), t.config.MaxCooldown)
}

// ParseRetryAfter reads the Retry-After header in either of its forms:
// delay seconds or an HTTP date. It returns false when the header is
// missing, unparsable or not in the future.
func ParseRetryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	value := strings.TrimSpace(headers.Get("Retry-After"))
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := at.Sub(now)
	if d <= 0 {
		return 0, false
	}
	return d, true
}
