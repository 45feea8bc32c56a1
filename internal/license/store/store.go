// Package store persists building license state and the active user sets it
// is derived from.
package store

import (
	"context"

	"passage/internal/license/models"
	id "passage/pkg/domain"
	"passage/pkg/platform/sentinel"
)

var (
	ErrNotFound    = sentinel.ErrNotFound
	ErrNoLicense   = sentinel.ErrConflict
	ErrAlreadyUsed = sentinel.ErrAlreadyUsed
)

// Store owns BuildingLicenseState. Implementations must recompute
// used_licenses from the active user set inside the same transaction as the
// user mutation, and serialize mutations per building.
type Store interface {
	// EnsureBuilding creates the license row if absent and sets the cap.
	EnsureBuilding(ctx context.Context, state *models.BuildingLicenseState) error

	// GetState returns the current license counters for a building.
	GetState(ctx context.Context, buildingID id.BuildingID) (*models.BuildingLicenseState, error)

	// OnboardUser activates a license-consuming user and recomputes the
	// count. Returns ErrNoLicense when the recomputed count would exceed
	// the cap, ErrAlreadyUsed when the user is already active.
	OnboardUser(ctx context.Context, user *models.LicenseUser) error

	// DeactivateUser releases the user's license and recomputes the count.
	DeactivateUser(ctx context.Context, buildingID id.BuildingID, userID id.UserID) error
}
