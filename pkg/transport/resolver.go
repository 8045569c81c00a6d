package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// maxPayloadBytes bounds how much of a relay response is read.
const maxPayloadBytes = 4 << 20

// CooldownTracker remembers relays that recently rate limited us.
type CooldownTracker interface {
	// CoolingDown reports whether the relay should be skipped right now.
	CoolingDown(ctx context.Context, relay string) (bool, error)

	// RecordRateLimited records a 403/429 answer and its response headers.
	RecordRateLimited(ctx context.Context, relay string, headers http.Header) error
}

// Config holds the resolver configuration.
type Config struct {
	// Timeout bounds a single relay request.
	Timeout time.Duration

	// Retry is the per-relay retry policy.
	Retry RetryConfig

	// RequestsPerSecond paces outgoing requests across all relays (0 = unlimited).
	RequestsPerSecond float64
	Burst             int

	// BreakerFailures opens a relay's circuit after this many consecutive
	// failures (0 disables the breaker). BreakerTimeout is the open period.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultConfig returns a fail-fast configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:         8 * time.Second,
		Retry:           DefaultRetryConfig(),
		Burst:           1,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		UserAgent:       "steam-monitor/1.0",
	}
}

// Resolver tries relays in order until one returns a JSON object.
type Resolver struct {
	relays     []*relay
	httpClient *http.Client
	limiter    *rate.Limiter
	cooldowns  CooldownTracker
	config     Config
	logger     zerolog.Logger
}

// New creates a resolver over the given relays, tried in order.
func New(adapters []Adapter, cfg Config) (*Resolver, error) {
	if len(adapters) == 0 {
		return nil, ErrNoRelays
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	logger := log.With().Str("component", "transport").Logger()

	seen := make(map[string]struct{}, len(adapters))
	relays := make([]*relay, 0, len(adapters))
	for _, a := range adapters {
		if a.Name == "" || a.Rewrite == nil {
			return nil, fmt.Errorf("relay %q: name and rewrite func are required", a.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return nil, fmt.Errorf("relay %q configured twice", a.Name)
		}
		seen[a.Name] = struct{}{}
		relays = append(relays, newRelay(a, cfg.BreakerFailures, cfg.BreakerTimeout, logger))
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Resolver{
		relays:     relays,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, burst),
		config:     cfg,
		logger:     logger,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (r *Resolver) SetHTTPClient(client *http.Client) {
	r.httpClient = client
}

// SetCooldownTracker enables skipping relays that recently rate limited us.
func (r *Resolver) SetCooldownTracker(t CooldownTracker) {
	r.cooldowns = t
}

// Relays returns the relay names in priority order.
func (r *Resolver) Relays() []string {
	names := make([]string, len(r.relays))
	for i, rl := range r.relays {
		names[i] = rl.adapter.Name
	}
	return names
}

// Resolve fetches target through the first relay that yields a JSON object.
// The returned bytes are the raw payload.
func (r *Resolver) Resolve(ctx context.Context, target string) ([]byte, error) {
	var last *Error

	for _, rl := range r.relays {
		name := rl.adapter.Name

		if r.cooldowns != nil {
			cooling, err := r.cooldowns.CoolingDown(ctx, name)
			if err != nil {
				r.logger.Warn().Err(err).Str("relay", name).Msg("Cooldown lookup failed")
			} else if cooling {
				relayCooldownSkipsTotal.WithLabelValues(name).Inc()
				last = &Error{Kind: KindRateLimited, Relay: name, Err: ErrCoolingDown}
				continue
			}
		}

		payload, err := r.tryRelay(ctx, rl, target)
		if err == nil {
			return payload, nil
		}

		var terr *Error
		if !errors.As(err, &terr) {
			terr = &Error{Kind: KindNetwork, Relay: name, Err: err}
		}
		last = terr

		r.logger.Debug().
			Str("relay", name).
			Str("kind", string(terr.Kind)).
			Int("status", terr.StatusCode).
			Err(terr.Err).
			Msg("Relay failed, trying next")

		if ctx.Err() != nil {
			break
		}
	}

	relayExhaustedTotal.Inc()
	return nil, &Error{Kind: KindExhausted, Last: last}
}

// tryRelay runs one relay under the retry policy.
func (r *Resolver) tryRelay(ctx context.Context, rl *relay, target string) ([]byte, error) {
	var payload []byte
	err := retryWithBackoff(ctx, rl.adapter.Name, r.config.Retry, func() error {
		var err error
		payload, err = rl.execute(func() ([]byte, error) {
			return r.fetch(ctx, rl.adapter, target)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// fetch issues a single request through one relay and validates the payload.
func (r *Resolver) fetch(ctx context.Context, a Adapter, target string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, r.fail(a.Name, KindNetwork, 0, fmt.Errorf("rate limiter: %w", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, a.Rewrite(target), nil)
	if err != nil {
		return nil, r.fail(a.Name, KindNetwork, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if r.config.UserAgent != "" {
		req.Header.Set("User-Agent", r.config.UserAgent)
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	relayRequestDuration.WithLabelValues(a.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, r.fail(a.Name, KindNetwork, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := classifyStatus(resp.StatusCode)
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

		if (kind == KindRateLimited || kind == KindForbidden) && r.cooldowns != nil {
			if err := r.cooldowns.RecordRateLimited(ctx, a.Name, resp.Header); err != nil {
				r.logger.Warn().Err(err).Str("relay", a.Name).Msg("Failed to record relay cooldown")
			}
		}
		terr := r.fail(a.Name, kind, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
		terr.Upstream = kind == KindNetwork && resp.StatusCode < 500 && validatePayload(errBody) == nil
		return nil, terr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, r.fail(a.Name, KindNetwork, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if err := validatePayload(body); err != nil {
		return nil, r.fail(a.Name, KindMalformedPayload, resp.StatusCode, err)
	}

	relayRequestsTotal.WithLabelValues(a.Name, "ok").Inc()
	return body, nil
}

// fail records metrics for a relay failure and builds the classified error.
func (r *Resolver) fail(relay string, kind Kind, status int, err error) *Error {
	relayRequestsTotal.WithLabelValues(relay, string(kind)).Inc()
	relayFailuresTotal.WithLabelValues(string(kind)).Inc()
	return &Error{Kind: kind, Relay: relay, StatusCode: status, Err: err}
}

// validatePayload accepts only a JSON object.
func validatePayload(body []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if obj == nil {
		return fmt.Errorf("payload is not a JSON object")
	}
	return nil
}

// Source is anything that resolves a target URL to a JSON object payload.
// *Resolver implements it.
type Source interface {
	Resolve(ctx context.Context, target string) ([]byte, error)
}

var _ Source = (*Resolver)(nil)

// DecodeInto resolves target and unmarshals the payload into v.
func DecodeInto(ctx context.Context, r Source, target string, v any) error {
	payload, err := r.Resolve(ctx, target)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &Error{Kind: KindMalformedPayload, Err: fmt.Errorf("decode %T: %w", v, err)}
	}
	return nil
}
