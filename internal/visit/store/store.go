// Package store persists visits, their visitor attachments, and reusable
// visitor profiles.
package store

import (
	"context"
	"time"

	"passage/internal/visit/models"
	id "passage/pkg/domain"
	"passage/pkg/platform/sentinel"
)

// Store re-exported sentinels keep call sites consistent across memory and
// Postgres implementations.
var (
	ErrNotFound               = sentinel.ErrNotFound
	ErrCodeTaken              = sentinel.ErrAlreadyUsed
	ErrConcurrentModification = sentinel.ErrConcurrentModification
)

// ValidateFn inspects the locked visit and its attachments; returning an
// error aborts the mutation and releases the lock with nothing written.
type ValidateFn func(visit *models.Visit, attachments []*models.VisitorAttachment) error

// MutateFn applies the transition. It runs under the same lock as its
// ValidateFn, which is what makes entry/exit scans race-free.
type MutateFn func(visit *models.Visit, attachments []*models.VisitorAttachment)

// Store is the durable record of visits. Implementations must guarantee:
//   - qr_code uniqueness (Create and Execute reject duplicates with
//     ErrCodeTaken)
//   - Execute serializes per visit: validation and mutation run atomically
//     under a row lock (Postgres) or mutex (memory), so no two concurrent
//     callers can both observe entry == false and both commit entry == true
type Store interface {
	// Create persists a new visit with its attachments in one atomic unit.
	Create(ctx context.Context, visit *models.Visit, attachments []*models.VisitorAttachment) error

	// FindByID returns a snapshot of the visit.
	FindByID(ctx context.Context, visitID id.VisitID) (*models.Visit, error)

	// FindByCode resolves a scanned QR token. Only the current token
	// resolves; re-issued visits drop their previous token.
	FindByCode(ctx context.Context, code string) (*models.Visit, error)

	// Attachments returns snapshots of the visit's attachments.
	Attachments(ctx context.Context, visitID id.VisitID) ([]*models.VisitorAttachment, error)

	// ListByHost returns the host's visits, newest first.
	ListByHost(ctx context.Context, hostID id.HostID) ([]*models.Visit, error)

	// Execute runs validate-then-mutate atomically against the visit and
	// its attachments, returning a snapshot of the committed state.
	Execute(ctx context.Context, visitID id.VisitID, validate ValidateFn, mutate MutateFn) (*models.Visit, error)

	// ListExpirable returns ids of pending/confirmed, never-entered visits
	// whose expected_start precedes the cutoff. Used by the expiry sweep;
	// the sweep re-validates each candidate under Execute, so a stale
	// listing is harmless.
	ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]id.VisitID, error)
}

// ProfileStore persists reusable visitor profiles. Profiles are keyed by
// (building, owner host, phone); repeat invitations update the same row.
type ProfileStore interface {
	// Upsert creates the profile or refreshes name/email, LastInvitedAt,
	// and InviteCount on the existing one. Returns the stored profile.
	Upsert(ctx context.Context, profile *models.VisitorProfile) (*models.VisitorProfile, error)

	// FindByPhone looks a profile up within the owner's building scope.
	FindByPhone(ctx context.Context, buildingID id.BuildingID, hostID id.HostID, phone string) (*models.VisitorProfile, error)
}
