package models

import (
	"time"

	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
)

// AttachmentStatus tracks a single visitor's progress through a visit.
// It mirrors the visit-level entry/exit flags but per individual, which is
// what makes multi-visitor invitations auditable.
type AttachmentStatus string

const (
	AttachmentStatusExpected AttachmentStatus = "expected"
	// The party is admitted as one group on a single gate scan, so
	// MarkEntered jumps expected visitors straight to entered while
	// stamping ArrivedAt. A lobby check-in surface that records arrival
	// ahead of the gate would set arrived itself.
	AttachmentStatusArrived AttachmentStatus = "arrived"
	AttachmentStatusEntered AttachmentStatus = "entered"
	AttachmentStatusExited  AttachmentStatus = "exited"
)

// VisitorAttachment links a visitor profile to a visit. Unique per
// (visit, visitor). Phone is denormalized from the profile because ban
// screening at scan time must not require a second lookup.
type VisitorAttachment struct {
	VisitID    id.VisitID       `json:"visit_id"`
	VisitorID  id.VisitorID     `json:"visitor_id"`
	Name       string           `json:"name"`
	Phone      string           `json:"phone"`
	Status     AttachmentStatus `json:"status"`
	ArrivedAt  *time.Time       `json:"arrived_at,omitempty"`
	DepartedAt *time.Time       `json:"departed_at,omitempty"`
}

// NewAttachment constructs an expected attachment.
func NewAttachment(visitID id.VisitID, visitorID id.VisitorID, name, phone string) (*VisitorAttachment, error) {
	if phone == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "visitor attachment requires a phone")
	}
	return &VisitorAttachment{
		VisitID:   visitID,
		VisitorID: visitorID,
		Name:      name,
		Phone:     phone,
		Status:    AttachmentStatusExpected,
	}, nil
}

// MarkEntered advances the attachment when the visit's entry scan commits.
func (a *VisitorAttachment) MarkEntered(now time.Time) {
	if a.Status == AttachmentStatusEntered || a.Status == AttachmentStatusExited {
		return
	}
	a.Status = AttachmentStatusEntered
	if a.ArrivedAt == nil {
		arrived := now
		a.ArrivedAt = &arrived
	}
}

// MarkExited advances the attachment when the visit's exit scan commits.
func (a *VisitorAttachment) MarkExited(now time.Time) {
	if a.Status != AttachmentStatusEntered {
		return
	}
	a.Status = AttachmentStatusExited
	if a.DepartedAt == nil {
		departed := now
		a.DepartedAt = &departed
	}
}

// VisitorProfile is a reusable identity scoped to a building and owned by
// the host who created it. Repeat invitations update LastInvitedAt and
// InviteCount; profiles survive visit completion for history purposes.
type VisitorProfile struct {
	ID            id.VisitorID  `json:"id"`
	BuildingID    id.BuildingID `json:"building_id"`
	OwnerHostID   id.HostID     `json:"owner_host_id"`
	Name          string        `json:"name"`
	Phone         string        `json:"phone"`
	Email         string        `json:"email,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	LastInvitedAt time.Time     `json:"last_invited_at"`
	InviteCount   int           `json:"invite_count"`
}
