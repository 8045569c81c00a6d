package testutil

import (
	"context"
	"sync"

	"github.com/Sternrassler/steam-monitor/pkg/notify"
)

// RecordingNotifier keeps every notification it receives.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

// Notify implements notify.Notifier.
func (r *RecordingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the received notifications.
func (r *RecordingNotifier) Sent() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}
