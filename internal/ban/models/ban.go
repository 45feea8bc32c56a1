// Package models defines the phone-keyed denylist entry.
package models

import (
	"strings"
	"time"

	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
)

// Scope distinguishes a host's personal list from the building-wide one.
type Scope string

const (
	ScopePersonal Scope = "personal"
	ScopeSystem   Scope = "system"
)

// Severity grades a ban for display and triage. It does not affect
// enforcement; any active ban blocks admission.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Ban blocks a phone from being admitted. HostID is nil for building-wide
// (system) bans.
type Ban struct {
	ID         id.BanID    `json:"id"`
	BuildingID id.BuildingID `json:"building_id"`
	HostID     *id.HostID  `json:"host_id,omitempty"`
	Phone      string      `json:"phone"`
	Severity   Severity    `json:"severity"`
	Reason     string      `json:"reason"`
	CreatedBy  string      `json:"created_by"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
	Lifted     bool        `json:"lifted"`
	LiftedAt   *time.Time  `json:"lifted_at,omitempty"`
	LiftedBy   string      `json:"lifted_by,omitempty"`
}

// NewBan validates and constructs a ban. A nil expiry means permanent; a set
// expiry must be strictly after creation.
func NewBan(banID id.BanID, buildingID id.BuildingID, hostID *id.HostID, phone string, severity Severity, reason, createdBy string, now time.Time, expiresAt *time.Time) (*Ban, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "ban phone is required")
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "ban expiry must be after creation")
	}
	switch severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
	case "":
		severity = SeverityMedium
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unknown ban severity")
	}

	return &Ban{
		ID:         banID,
		BuildingID: buildingID,
		HostID:     hostID,
		Phone:      phone,
		Severity:   severity,
		Reason:     strings.TrimSpace(reason),
		CreatedBy:  createdBy,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}, nil
}

// Scope reports whether the ban is personal or building-wide.
func (b *Ban) Scope() Scope {
	if b.HostID == nil {
		return ScopeSystem
	}
	return ScopePersonal
}

// ActiveAt applies the live expiry rule: lifted bans never match, and a set
// expiry at or before now deactivates the ban regardless of any sweep.
func (b *Ban) ActiveAt(now time.Time) bool {
	if b.Lifted {
		return false
	}
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// CanLift rejects lifting a ban twice.
func (b *Ban) CanLift() error {
	if b.Lifted {
		return dErrors.New(dErrors.CodeInvariantViolation, "ban is already lifted")
	}
	return nil
}

// ApplyLift marks the ban lifted. Call only after CanLift.
func (b *Ban) ApplyLift(now time.Time, liftedBy string) {
	b.Lifted = true
	b.LiftedAt = &now
	b.LiftedBy = liftedBy
}

// Clone returns a deep copy.
func (b *Ban) Clone() *Ban {
	c := *b
	if b.HostID != nil {
		h := *b.HostID
		c.HostID = &h
	}
	c.ExpiresAt = cloneTime(b.ExpiresAt)
	c.LiftedAt = cloneTime(b.LiftedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
