package steamapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/steam-monitor/pkg/transport"
)

var (
	fetchDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steam_fetch_degraded_total",
		Help: "Total number of attribute fetches that degraded to 0",
	}, []string{"attribute"})

	detailsLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steam_details_lookups_total",
		Help: "Total number of app detail lookups by result",
	}, []string{"result"}) // "ok", "invalid", "transient"
)

// Config holds the upstream base URLs.
type Config struct {
	StoreBaseURL string
	APIBaseURL   string

	// Language is passed to the store as the l= parameter.
	Language string
}

// DefaultConfig returns the public Steam endpoints.
func DefaultConfig() Config {
	return Config{
		StoreBaseURL: "https://store.steampowered.com",
		APIBaseURL:   "https://api.steampowered.com",
		Language:     "english",
	}
}

// Details is the identity of an app as reported by the store.
type Details struct {
	Name     string
	ImageURL string
}

// Client fetches app data through a transport.Source.
type Client struct {
	source transport.Source
	config Config
	logger zerolog.Logger
}

// New creates a client. Empty base URLs fall back to DefaultConfig.
func New(source transport.Source, cfg Config) *Client {
	def := DefaultConfig()
	if cfg.StoreBaseURL == "" {
		cfg.StoreBaseURL = def.StoreBaseURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = def.APIBaseURL
	}
	return &Client{
		source: source,
		config: cfg,
		logger: log.With().Str("component", "steamapi").Logger(),
	}
}

// LatestActivity returns the date of the newest news item as a unix
// timestamp, or 0 if it cannot be determined.
func (c *Client) LatestActivity(ctx context.Context, id string) int64 {
	var resp newsResponse
	if err := transport.DecodeInto(ctx, c.source, c.newsURL(id), &resp); err != nil {
		c.degraded("activity", id, err)
		return 0
	}
	if resp.AppNews == nil || len(resp.AppNews.NewsItems) == 0 {
		return 0
	}
	return resp.AppNews.NewsItems[0].Date
}

// LiveCount returns the current player count, or 0 if it cannot be determined.
func (c *Client) LiveCount(ctx context.Context, id string) int {
	var resp playersResponse
	if err := transport.DecodeInto(ctx, c.source, c.playersURL(id), &resp); err != nil {
		c.degraded("live_count", id, err)
		return 0
	}
	if resp.Response == nil || resp.Response.Result != 1 || resp.Response.PlayerCount < 0 {
		return 0
	}
	return resp.Response.PlayerCount
}

func (c *Client) degraded(attribute, id string, err error) {
	fetchDegradedTotal.WithLabelValues(attribute).Inc()
	c.logger.Warn().
		Err(err).
		Str("app_id", id).
		Str("attribute", attribute).
		Str("kind", string(transport.Reason(err))).
		Msg("Attribute fetch failed, using 0")
}

// Details looks up the app's name and header image.
func (c *Client) Details(ctx context.Context, id string) (Details, error) {
	var resp map[string]appDetailsEntry
	if err := transport.DecodeInto(ctx, c.source, c.detailsURL(id), &resp); err != nil {
		detailsLookupsTotal.WithLabelValues("transient").Inc()
		return Details{}, &LookupError{ID: id, Err: err}
	}

	entry, ok := resp[id]
	if !ok {
		detailsLookupsTotal.WithLabelValues("transient").Inc()
		return Details{}, &LookupError{ID: id, Err: errors.New("app missing from response")}
	}

	if entry.Success != nil && !*entry.Success {
		detailsLookupsTotal.WithLabelValues("invalid").Inc()
		return Details{}, fmt.Errorf("app %s: %w", id, ErrInvalidIdentifier)
	}

	if entry.Data == nil || entry.Data.Name == "" {
		detailsLookupsTotal.WithLabelValues("transient").Inc()
		return Details{}, &LookupError{ID: id, Err: errors.New("response has no app data")}
	}

	detailsLookupsTotal.WithLabelValues("ok").Inc()
	return Details{
		Name:     entry.Data.Name,
		ImageURL: entry.Data.HeaderImage,
	}, nil
}
