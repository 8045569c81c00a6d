package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultAutoInterval is the time between automatic refresh sessions.
const DefaultAutoInterval = 15 * time.Minute

// AutoRefresher runs a ModeAuto session on a fixed interval.
type AutoRefresher struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       zerolog.Logger
}

// NewAutoRefresher creates an auto refresher. interval <= 0 uses DefaultAutoInterval.
func NewAutoRefresher(o *Orchestrator, interval time.Duration) *AutoRefresher {
	if interval <= 0 {
		interval = DefaultAutoInterval
	}
	return &AutoRefresher{
		orchestrator: o,
		interval:     interval,
		logger:       log.With().Str("component", "auto-refresh").Logger(),
	}
}

// Run refreshes on every tick until ctx ends. A tick that finds a session
// already running is skipped.
func (a *AutoRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info().Dur("interval", a.interval).Msg("Auto refresh started")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Auto refresh stopped")
			return ctx.Err()
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *AutoRefresher) tick(ctx context.Context) {
	_, err := a.orchestrator.RefreshAll(ctx, ModeAuto)
	switch {
	case errors.Is(err, ErrBusy):
		a.logger.Debug().Msg("Session already running, skipping tick")
	case err != nil && ctx.Err() == nil:
		a.logger.Warn().Err(err).Msg("Auto refresh ended early")
	}
}
