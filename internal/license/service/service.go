// Package service implements the license accountant. Licenses are consumed
// by active building users (residents, admins, security staff); visitors
// never count against the cap.
package service

import (
	"context"
	"errors"
	"log/slog"

	"passage/internal/audit"
	"passage/internal/license/models"
	"passage/internal/license/store"
	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
	"passage/pkg/requestcontext"
)

// AuditEmitter records onboarding activity.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service orchestrates license accounting.
type Service struct {
	licenses store.Store
	logger   *slog.Logger
	auditor  AuditEmitter
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditEmitter(auditor AuditEmitter) Option {
	return func(s *Service) { s.auditor = auditor }
}

// New constructs a Service.
func New(licenses store.Store, opts ...Option) *Service {
	s := &Service{licenses: licenses, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBuildingCap creates or updates a building's license cap.
func (s *Service) SetBuildingCap(ctx context.Context, buildingID id.BuildingID, total int) (*models.BuildingLicenseState, error) {
	state, err := models.NewState(buildingID, total, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.licenses.EnsureBuilding(ctx, state); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to set building license cap")
	}
	return s.GetState(ctx, buildingID)
}

// GetState returns a building's license counters.
func (s *Service) GetState(ctx context.Context, buildingID id.BuildingID) (*models.BuildingLicenseState, error) {
	state, err := s.licenses.GetState(ctx, buildingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "building has no license record")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load license state")
	}
	return state, nil
}

// HasAvailableLicense reports whether one more license-consuming user fits.
// Advisory for UX; OnboardUser re-checks under the building lock.
func (s *Service) HasAvailableLicense(ctx context.Context, buildingID id.BuildingID) (bool, error) {
	state, err := s.GetState(ctx, buildingID)
	if err != nil {
		return false, err
	}
	return state.Available(), nil
}

// OnboardUser activates a license-consuming user. The store recomputes the
// used count atomically with the activation, so concurrent onboardings can
// never commit past the cap.
func (s *Service) OnboardUser(ctx context.Context, buildingID id.BuildingID, userID id.UserID) error {
	user := &models.LicenseUser{
		BuildingID:  buildingID,
		UserID:      userID,
		Active:      true,
		OnboardedAt: requestcontext.Now(ctx),
	}
	if err := s.licenses.OnboardUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, store.ErrNoLicense):
			return dErrors.New(dErrors.CodeConflict, "no licenses available for this building")
		case errors.Is(err, store.ErrAlreadyUsed):
			return dErrors.New(dErrors.CodeConflict, "user already holds a license")
		case errors.Is(err, store.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "building has no license record")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to onboard user")
	}

	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			Category:   audit.CategoryAdmin,
			Action:     audit.ActionUserOnboarded,
			BuildingID: &buildingID,
			Detail:     map[string]string{"user_id": userID.String()},
		})
	}
	return nil
}

// DeactivateUser releases a user's license.
func (s *Service) DeactivateUser(ctx context.Context, buildingID id.BuildingID, userID id.UserID) error {
	if err := s.licenses.DeactivateUser(ctx, buildingID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no active license for this user")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate user")
	}

	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			Category:   audit.CategoryAdmin,
			Action:     audit.ActionUserOffboarded,
			BuildingID: &buildingID,
			Detail:     map[string]string{"user_id": userID.String()},
		})
	}
	return nil
}
