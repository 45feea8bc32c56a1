package notify

import (
	"context"
	"log/slog"
	"time"
)

// Dispatcher decouples producers from the sink. Enqueue never blocks; the
// worker drains the inbox and retries failed deliveries with backoff.
// At-least-once: a delivery that fails after the sink partially processed it
// may be repeated.
type Dispatcher struct {
	sink    Notifier
	inbox   chan Notification
	logger  *slog.Logger
	retries int
}

// NewDispatcher builds a dispatcher with a buffered inbox.
func NewDispatcher(sink Notifier, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		sink:    sink,
		inbox:   make(chan Notification, buffer),
		logger:  logger,
		retries: 3,
	}
}

// Enqueue hands a notification to the worker. A full inbox drops the
// notification with a log line; host notifications are best-effort.
func (d *Dispatcher) Enqueue(ctx context.Context, n Notification) {
	select {
	case d.inbox <- n:
	default:
		d.logger.WarnContext(ctx, "notification inbox full, dropping",
			"kind", n.Kind,
			"visit_id", n.VisitID,
		)
	}
}

// Run consumes the inbox until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-d.inbox:
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	var err error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		if err = d.sink.Notify(ctx, n); err == nil {
			return
		}
	}
	d.logger.ErrorContext(ctx, "notification delivery failed, dropping",
		"error", err,
		"kind", n.Kind,
		"visit_id", n.VisitID,
	)
}
