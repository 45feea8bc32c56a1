package audit

import (
	"context"
	"log/slog"

	"passage/pkg/requestcontext"
)

// Publisher captures structured audit events. Emit enriches the event from
// the request context and enqueues it; the Worker persists. A full inbox
// drops the event with a log line rather than block a committed scan.
type Publisher struct {
	inbox  chan<- Event
	logger *slog.Logger
}

func NewPublisher(inbox chan<- Event, logger *slog.Logger) *Publisher {
	return &Publisher{inbox: inbox, logger: logger}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.ActorID(ctx)
	}
	if event.Gate == "" {
		event.Gate = requestcontext.Gate(ctx)
	}
	if event.Device == "" {
		event.Device = requestcontext.Device(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	p.logger.InfoContext(ctx, event.Action,
		"log_type", "audit",
		"category", event.Category,
		"actor_id", event.ActorID,
		"gate", event.Gate,
		"request_id", event.RequestID,
	)

	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit inbox full, dropping event",
			"action", event.Action,
			"request_id", event.RequestID,
		)
	}
}
