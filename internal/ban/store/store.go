// Package store persists bans.
package store

import (
	"context"
	"time"

	"passage/internal/ban/models"
	id "passage/pkg/domain"
	"passage/pkg/platform/sentinel"
)

var (
	ErrNotFound               = sentinel.ErrNotFound
	ErrConcurrentModification = sentinel.ErrConcurrentModification
)

// ValidateFn inspects the locked ban before mutation.
type ValidateFn func(ban *models.Ban) error

// MutateFn applies the change under the same lock.
type MutateFn func(ban *models.Ban)

// Store is the durable record of bans. FindMatching returns every non-lifted
// ban for the given phones that is either building-wide or owned by the
// host; callers apply the live expiry rule via Ban.ActiveAt.
type Store interface {
	Create(ctx context.Context, ban *models.Ban) error

	FindByID(ctx context.Context, banID id.BanID) (*models.Ban, error)

	// FindMatching batches the lookup for all of a visit's phones in one
	// round trip. Lifted bans are excluded; expired-but-unswept ones are not.
	FindMatching(ctx context.Context, buildingID id.BuildingID, hostID id.HostID, phones []string) ([]*models.Ban, error)

	// ListByBuilding returns the building's bans, newest first, for display.
	ListByBuilding(ctx context.Context, buildingID id.BuildingID) ([]*models.Ban, error)

	// Execute runs validate-then-mutate atomically against one ban.
	Execute(ctx context.Context, banID id.BanID, validate ValidateFn, mutate MutateFn) (*models.Ban, error)

	// ListDue returns ids of non-lifted bans whose expiry has passed. The
	// sweep is display hygiene only; readers never depend on it.
	ListDue(ctx context.Context, now time.Time, limit int) ([]id.BanID, error)
}
