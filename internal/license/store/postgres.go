package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"passage/internal/license/models"
	id "passage/pkg/domain"
)

// Postgres implements Store on PostgreSQL. Every user mutation locks the
// building's license row, applies the change, and recomputes used_licenses
// from the active user set before committing.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed license store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) EnsureBuilding(ctx context.Context, state *models.BuildingLicenseState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO building_licenses (building_id, total_licenses, used_licenses, updated_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (building_id) DO UPDATE SET
			total_licenses = EXCLUDED.total_licenses,
			updated_at = EXCLUDED.updated_at
	`, state.BuildingID.String(), state.TotalLicenses, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ensure building license row: %w", err)
	}
	return nil
}

func (s *Postgres) GetState(ctx context.Context, buildingID id.BuildingID) (*models.BuildingLicenseState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT total_licenses, used_licenses, updated_at
		FROM building_licenses WHERE building_id = $1
	`, buildingID.String())

	state := models.BuildingLicenseState{BuildingID: buildingID}
	err := row.Scan(&state.TotalLicenses, &state.UsedLicenses, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get license state: %w", err)
	}
	return &state, nil
}

func (s *Postgres) OnboardUser(ctx context.Context, user *models.LicenseUser) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin onboard: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int
	err = tx.QueryRowContext(ctx, `
		SELECT total_licenses FROM building_licenses WHERE building_id = $1 FOR UPDATE
	`, user.BuildingID.String()).Scan(&total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock license row: %w", err)
	}

	var active bool
	err = tx.QueryRowContext(ctx, `
		SELECT active FROM license_users WHERE building_id = $1 AND user_id = $2
	`, user.BuildingID.String(), user.UserID.String()).Scan(&active)
	switch {
	case err == nil && active:
		return ErrAlreadyUsed
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE license_users SET active = TRUE, onboarded_at = $3, deactivated_at = NULL
			WHERE building_id = $1 AND user_id = $2
		`, user.BuildingID.String(), user.UserID.String(), user.OnboardedAt)
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO license_users (building_id, user_id, active, onboarded_at)
			VALUES ($1, $2, TRUE, $3)
		`, user.BuildingID.String(), user.UserID.String(), user.OnboardedAt)
	}
	if err != nil {
		return fmt.Errorf("activate license user: %w", err)
	}

	used, err := s.recompute(ctx, tx, user.BuildingID, user.OnboardedAt)
	if err != nil {
		return err
	}
	if used > total {
		// Rollback releases the just-inserted row; the count never commits
		// above the cap.
		return ErrNoLicense
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit onboard: %w", err)
	}
	return nil
}

func (s *Postgres) DeactivateUser(ctx context.Context, buildingID id.BuildingID, userID id.UserID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin deactivate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int
	err = tx.QueryRowContext(ctx, `
		SELECT total_licenses FROM building_licenses WHERE building_id = $1 FOR UPDATE
	`, buildingID.String()).Scan(&total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock license row: %w", err)
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE license_users SET active = FALSE, deactivated_at = $3
		WHERE building_id = $1 AND user_id = $2 AND active = TRUE
	`, buildingID.String(), userID.String(), now)
	if err != nil {
		return fmt.Errorf("deactivate license user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate license user: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := s.recompute(ctx, tx, buildingID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deactivate: %w", err)
	}
	return nil
}

// recompute derives used_licenses from the active user set. Runs inside the
// caller's transaction while the license row lock is held.
func (s *Postgres) recompute(ctx context.Context, tx *sql.Tx, buildingID id.BuildingID, now time.Time) (int, error) {
	var used int
	err := tx.QueryRowContext(ctx, `
		UPDATE building_licenses SET
			used_licenses = (SELECT COUNT(*) FROM license_users WHERE building_id = $1 AND active = TRUE),
			updated_at = $2
		WHERE building_id = $1
		RETURNING used_licenses
	`, buildingID.String(), now).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("recompute used licenses: %w", err)
	}
	return used, nil
}
