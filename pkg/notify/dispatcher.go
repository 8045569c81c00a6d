package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Dispatcher sends notifications in the background.
type Dispatcher struct {
	notifier Notifier
	deduper  Deduper
	timeout  time.Duration
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil deduper uses a MemoryDeduper;
// timeout <= 0 means 5s per delivery.
func NewDispatcher(notifier Notifier, deduper Deduper, timeout time.Duration) *Dispatcher {
	if deduper == nil {
		deduper = NewMemoryDeduper()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		deduper:  deduper,
		timeout:  timeout,
		logger:   log.With().Str("component", "notify").Logger(),
	}
}

// Dispatch delivers n in the background and returns immediately.
func (d *Dispatcher) Dispatch(n Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(n)
	}()
}

// Wait blocks until all dispatched notifications have settled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	logger := d.logger.With().Str("tag", n.Tag).Logger()

	if n.Tag != "" {
		fresh, err := d.deduper.Claim(ctx, n.Tag)
		if err != nil {
			logger.Warn().Err(err).Msg("Dedupe check failed, sending anyway")
		} else if !fresh {
			notificationsTotal.WithLabelValues("duplicate").Inc()
			logger.Debug().Msg("Notification already sent, skipping")
			return
		}
	}

	if err := d.notifier.Notify(ctx, n); err != nil {
		notificationsTotal.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Str("title", n.Title).Msg("Notification delivery failed")

		if n.Tag != "" {
			if err := d.deduper.Release(ctx, n.Tag); err != nil {
				logger.Warn().Err(err).Msg("Failed to release notification tag")
			}
		}
		return
	}

	notificationsTotal.WithLabelValues("sent").Inc()
	logger.Info().Str("title", n.Title).Msg("Notification sent")
}
