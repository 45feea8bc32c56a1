// Package notify delivers visit lifecycle notifications to hosts. Delivery
// is at-least-once and decoupled from scan transactions: a committed scan
// never waits on, or rolls back for, a notification.
package notify

import (
	"context"
	"time"

	id "passage/pkg/domain"
)

// Kind labels what happened.
type Kind string

const (
	KindVisitCreated   Kind = "visit_created"
	KindVisitCancelled Kind = "visit_cancelled"
	KindVisitExpired   Kind = "visit_expired"
	KindEntryRecorded  Kind = "entry_recorded"
	KindExitRecorded   Kind = "exit_recorded"
	KindScanDenied     Kind = "scan_denied"
)

// Notification is the payload handed to the sink. Consumers key host
// notifications off HostID; analytics consume the rest.
type Notification struct {
	Kind       Kind          `json:"kind"`
	VisitID    id.VisitID    `json:"visit_id"`
	HostID     id.HostID     `json:"host_id"`
	BuildingID id.BuildingID `json:"building_id"`
	Gate       string        `json:"gate,omitempty"`
	Message    string        `json:"message"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Notifier is the delivery sink. Implementations may deliver more than once;
// consumers must tolerate duplicates.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
