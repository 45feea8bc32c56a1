package audit

import (
	"context"
	"log/slog"
	"time"
)

// maxBatch caps how many queued events one write cycle drains.
const maxBatch = 64

// BatchAppender is implemented by stores that can commit several events in
// one transaction.
type BatchAppender interface {
	AppendBatch(ctx context.Context, events []Event) error
}

// Worker consumes audit events from a channel and persists them. A burst of
// queued events is drained and written as one batch; append failures are
// logged and retried once, then the event is dropped so one bad row cannot
// wedge the queue.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			w.persist(ctx, w.drain(event))
		}
	}
}

func (w *Worker) drain(first Event) []Event {
	batch := []Event{first}
	for len(batch) < maxBatch {
		select {
		case event := <-w.inbox:
			batch = append(batch, event)
		default:
			return batch
		}
	}
	return batch
}

func (w *Worker) persist(ctx context.Context, batch []Event) {
	if appender, ok := w.store.(BatchAppender); ok && len(batch) > 1 {
		err := appender.AppendBatch(ctx, batch)
		if err == nil {
			return
		}
		w.logger.WarnContext(ctx, "audit batch append failed, falling back to per-event writes",
			"error", err,
			"batch", len(batch),
		)
	}
	for _, event := range batch {
		w.append(ctx, event)
	}
}

func (w *Worker) append(ctx context.Context, event Event) {
	err := w.store.Append(ctx, event)
	if err == nil {
		return
	}
	w.logger.WarnContext(ctx, "audit append failed, retrying",
		"error", err,
		"action", event.Action,
	)

	select {
	case <-ctx.Done():
		return
	case <-time.After(100 * time.Millisecond):
	}
	if err := w.store.Append(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "audit append failed, dropping event",
			"error", err,
			"action", event.Action,
		)
	}
}
