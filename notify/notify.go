/*
Package notify delivers settlement notifications.

PURPOSE:
  Implements settlement.Notifier. The default LogNotifier writes each
  notification to structured logs and bumps a Prometheus counter; a real
  deployment would swap in a push or email delivery behind the same
  interface. The Recorder double captures notifications for tests.

SEE ALSO:
  - settlement/store.go: Notifier interface
  - settlement/engine.go: post-commit flush that calls Notify
*/
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/finshare/settle-engine/settlement"
)

var notificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "settlement_notifications_total",
		Help: "Notifications delivered, by event type.",
	},
	[]string{"event"},
)

// LogNotifier logs every notification and counts deliveries.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier returns a notifier writing through log. A nil log uses the
// default slog logger.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, note settlement.Notification) {
	notificationsTotal.WithLabelValues(string(note.Event)).Inc()
	n.log.InfoContext(ctx, "notification",
		"user", note.UserID,
		"event", note.Event,
		"title", note.Title,
		"message", note.Message,
	)
}

// Recorder captures notifications for assertions in tests.
type Recorder struct {
	mu    sync.Mutex
	notes []settlement.Notification
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, note settlement.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
}

// Notes returns a copy of everything delivered so far.
func (r *Recorder) Notes() []settlement.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]settlement.Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

// ByEvent filters delivered notifications by event type.
func (r *Recorder) ByEvent(event settlement.NotificationEvent) []settlement.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []settlement.Notification
	for _, n := range r.notes {
		if n.Event == event {
			out = append(out, n)
		}
	}
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
}
