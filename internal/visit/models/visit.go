package models

import (
	"time"

	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
)

// VisitStatus is the lifecycle state of a visit authorization.
type VisitStatus string

const (
	VisitStatusPending   VisitStatus = "pending"
	VisitStatusConfirmed VisitStatus = "confirmed"
	VisitStatusActive    VisitStatus = "active"
	VisitStatusCompleted VisitStatus = "completed"
	VisitStatusCancelled VisitStatus = "cancelled"
	VisitStatusExpired   VisitStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s VisitStatus) Terminal() bool {
	switch s {
	case VisitStatusCompleted, VisitStatusCancelled, VisitStatusExpired:
		return true
	}
	return false
}

// Visit is the aggregate root for a host-issued entry authorization.
//
// Invariants:
//   - Exit == true implies Entry == true
//   - VisitorCount <= MaxVisitors
//   - QRCode is unique and non-guessable; at most one valid code at a time
//   - a terminal Status never changes again
//   - ActualEnd is only set after ActualStart
//
// State transitions flow pending → (confirmed) → active → completed, with
// cancelled and expired reachable from any non-terminal state. Mutation goes
// through Can*/Apply* pairs so the store's Execute callback can hold its
// lock across validation and mutation.
type Visit struct {
	ID            id.VisitID    `json:"id"`
	HostID        id.HostID     `json:"host_id"`
	BuildingID    id.BuildingID `json:"building_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	ExpectedStart time.Time     `json:"expected_start"`
	ExpectedEnd   *time.Time    `json:"expected_end,omitempty"`
	ActualStart   *time.Time    `json:"actual_start,omitempty"`
	ActualEnd     *time.Time    `json:"actual_end,omitempty"`
	Status        VisitStatus   `json:"status"`
	QRCode        string        `json:"-"`
	QRExpiresAt   time.Time     `json:"qr_expires_at"`
	Entry         bool          `json:"entry"`
	Exit          bool          `json:"exit"`
	MaxVisitors   int           `json:"max_visitors"`
	VisitorCount  int           `json:"visitor_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewVisit constructs a pending visit, enforcing construction invariants.
// QR stamping happens afterwards via SetCode.
func NewVisit(visitID id.VisitID, hostID id.HostID, buildingID id.BuildingID, title string, expectedStart time.Time, expectedEnd *time.Time, maxVisitors int, now time.Time) (*Visit, error) {
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "visit title cannot be empty")
	}
	if len(title) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "visit title must be 256 characters or less")
	}
	if hostID.IsZero() || buildingID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "visit requires a host and a building")
	}
	if maxVisitors < 1 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "visit must admit at least one visitor")
	}
	if expectedEnd != nil && !expectedEnd.After(expectedStart) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expected_end must be after expected_start")
	}
	return &Visit{
		ID:            visitID,
		HostID:        hostID,
		BuildingID:    buildingID,
		Title:         title,
		ExpectedStart: expectedStart,
		ExpectedEnd:   expectedEnd,
		Status:        VisitStatusPending,
		MaxVisitors:   maxVisitors,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SetCode stamps (or re-stamps) the QR code. Re-issuing replaces the token
// wholesale, so the previous code can no longer resolve to this visit.
func (v *Visit) SetCode(token string, expiresAt time.Time, now time.Time) {
	v.QRCode = token
	v.QRExpiresAt = expiresAt
	v.UpdatedAt = now
}

// CodeExpired reports whether the QR code is no longer presentable.
// The boundary is inclusive: a scan at exactly QRExpiresAt is rejected.
func (v *Visit) CodeExpired(now time.Time) bool {
	return !now.Before(v.QRExpiresAt)
}

// CanRecordEntry checks the entry-scan transition.
func (v *Visit) CanRecordEntry() error {
	if v.Status.Terminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "visit is "+string(v.Status))
	}
	if v.Entry {
		return dErrors.New(dErrors.CodeConflict, "entry already recorded")
	}
	return nil
}

// ApplyEntry records the entry scan. Call CanRecordEntry first; the pair is
// meant to run inside a store Execute callback.
func (v *Visit) ApplyEntry(now time.Time) {
	v.Entry = true
	v.Status = VisitStatusActive
	if v.ActualStart == nil {
		start := now
		v.ActualStart = &start
	}
	v.UpdatedAt = now
}

// CanRecordExit checks the exit-scan transition. Exit strictly requires a
// prior entry; the permissive variant that admitted exit-first scans was a
// source of corrupt occupancy counts.
func (v *Visit) CanRecordExit() error {
	if v.Status.Terminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "visit is "+string(v.Status))
	}
	if !v.Entry {
		return dErrors.New(dErrors.CodeInvalidInput, "exit requires a recorded entry")
	}
	if v.Exit {
		return dErrors.New(dErrors.CodeConflict, "exit already recorded")
	}
	return nil
}

// ApplyExit records the exit scan and completes the visit.
func (v *Visit) ApplyExit(now time.Time) {
	v.Exit = true
	v.Status = VisitStatusCompleted
	if v.ActualEnd == nil {
		end := now
		v.ActualEnd = &end
	}
	v.UpdatedAt = now
}

// CanCancel checks host/admin-initiated cancellation.
func (v *Visit) CanCancel() error {
	if v.Status.Terminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "visit is already "+string(v.Status))
	}
	return nil
}

// ApplyCancel transitions the visit to cancelled. No scan is accepted
// afterwards.
func (v *Visit) ApplyCancel(now time.Time) {
	v.Status = VisitStatusCancelled
	v.UpdatedAt = now
}

// CanExpire checks the background sweep's precondition: never entered and
// expected_start passed by more than the grace window.
func (v *Visit) CanExpire(now time.Time, grace time.Duration) error {
	if v.Status != VisitStatusPending && v.Status != VisitStatusConfirmed {
		return dErrors.New(dErrors.CodeInvariantViolation, "only pending or confirmed visits expire")
	}
	if v.Entry {
		return dErrors.New(dErrors.CodeInvariantViolation, "entered visits do not expire")
	}
	if !now.After(v.ExpectedStart.Add(grace)) {
		return dErrors.New(dErrors.CodeInvariantViolation, "visit is still within its grace window")
	}
	return nil
}

// ApplyExpire transitions the visit to expired.
func (v *Visit) ApplyExpire(now time.Time) {
	v.Status = VisitStatusExpired
	v.UpdatedAt = now
}

// CanAttachVisitor checks the occupancy cap before adding an attachment.
func (v *Visit) CanAttachVisitor() error {
	if v.Status.Terminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "visit is "+string(v.Status))
	}
	if v.VisitorCount >= v.MaxVisitors {
		return dErrors.New(dErrors.CodeConflict, "visit is at its visitor limit")
	}
	return nil
}

// Clone returns a deep-enough copy for snapshots handed across the store
// boundary; time pointers are duplicated so callers cannot mutate the
// stored record.
func (v *Visit) Clone() *Visit {
	clone := *v
	clone.ExpectedEnd = cloneTime(v.ExpectedEnd)
	clone.ActualStart = cloneTime(v.ActualStart)
	clone.ActualEnd = cloneTime(v.ActualEnd)
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
