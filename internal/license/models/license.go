// Package models defines the per-building license aggregate.
package models

import (
	"time"

	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
)

// BuildingLicenseState tracks a building's license cap against its active,
// license-consuming users. UsedLicenses is always recomputed from the user
// set at commit time, never incremented in place, so partial failures cannot
// leave it drifted.
type BuildingLicenseState struct {
	BuildingID    id.BuildingID `json:"building_id"`
	TotalLicenses int           `json:"total_licenses"`
	UsedLicenses  int           `json:"used_licenses"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewState validates and constructs a license state.
func NewState(buildingID id.BuildingID, total int, now time.Time) (*BuildingLicenseState, error) {
	if total < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "total licenses must not be negative")
	}
	return &BuildingLicenseState{
		BuildingID:    buildingID,
		TotalLicenses: total,
		UpdatedAt:     now,
	}, nil
}

// Available reports whether one more license-consuming user fits.
func (s *BuildingLicenseState) Available() bool {
	return s.UsedLicenses < s.TotalLicenses
}

// LicenseUser is one license-consuming account in a building. Visitors are
// never represented here; they do not consume licenses.
type LicenseUser struct {
	BuildingID    id.BuildingID `json:"building_id"`
	UserID        id.UserID     `json:"user_id"`
	Active        bool          `json:"active"`
	OnboardedAt   time.Time     `json:"onboarded_at"`
	DeactivatedAt *time.Time    `json:"deactivated_at,omitempty"`
}
