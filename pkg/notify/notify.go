// Package notify delivers update notifications. Delivery is best effort and
// asynchronous: Dispatch never blocks the caller and never reports failure,
// and a tag that was already delivered is not delivered again.
package notify

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notifications_total",
	Help: "Total number of notifications by result",
}, []string{"result"}) // "sent", "failed", "duplicate"

// Notification is one message for the user.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`

	// Tag identifies the event; a tag is delivered at most once.
	Tag string `json:"tag"`
}

// Notifier delivers a notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
