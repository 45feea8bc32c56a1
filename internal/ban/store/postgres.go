package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"passage/internal/ban/models"
	id "passage/pkg/domain"
)

// Postgres implements Store on PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ban store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const banColumns = `id, building_id, host_id, phone, severity, reason,
	created_by, created_at, expires_at, lifted, lifted_at, lifted_by`

func (s *Postgres) Create(ctx context.Context, ban *models.Ban) error {
	var hostID any
	if ban.HostID != nil {
		hostID = ban.HostID.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bans (`+banColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		ban.ID.String(), ban.BuildingID.String(), hostID,
		ban.Phone, string(ban.Severity), ban.Reason,
		ban.CreatedBy, ban.CreatedAt, ban.ExpiresAt,
		ban.Lifted, ban.LiftedAt, ban.LiftedBy,
	)
	if err != nil {
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, banID id.BanID) (*models.Ban, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+banColumns+` FROM bans WHERE id = $1`, banID.String())
	return scanBan(row)
}

func (s *Postgres) FindMatching(ctx context.Context, buildingID id.BuildingID, hostID id.HostID, phones []string) ([]*models.Ban, error) {
	if len(phones) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+banColumns+` FROM bans
		WHERE building_id = $1
		  AND phone = ANY($2)
		  AND lifted = FALSE
		  AND (host_id IS NULL OR host_id = $3)
	`, buildingID.String(), pq.Array(phones), hostID.String())
	if err != nil {
		return nil, fmt.Errorf("find matching bans: %w", err)
	}
	defer rows.Close()
	return scanBans(rows)
}

func (s *Postgres) ListByBuilding(ctx context.Context, buildingID id.BuildingID) ([]*models.Ban, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+banColumns+` FROM bans WHERE building_id = $1 ORDER BY created_at DESC
	`, buildingID.String())
	if err != nil {
		return nil, fmt.Errorf("list bans by building: %w", err)
	}
	defer rows.Close()
	return scanBans(rows)
}

func (s *Postgres) Execute(ctx context.Context, banID id.BanID, validate ValidateFn, mutate MutateFn) (*models.Ban, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ban execute: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+banColumns+` FROM bans WHERE id = $1 FOR UPDATE`, banID.String())
	ban, err := scanBan(row)
	if err != nil {
		return nil, err
	}

	if err := validate(ban); err != nil {
		return nil, err
	}
	mutate(ban)

	_, err = tx.ExecContext(ctx, `
		UPDATE bans SET expires_at = $2, lifted = $3, lifted_at = $4, lifted_by = $5
		WHERE id = $1
	`, ban.ID.String(), ban.ExpiresAt, ban.Lifted, ban.LiftedAt, ban.LiftedBy)
	if err != nil {
		return nil, fmt.Errorf("update ban: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ban execute: %w", err)
	}
	return ban, nil
}

func (s *Postgres) ListDue(ctx context.Context, now time.Time, limit int) ([]id.BanID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM bans
		WHERE lifted = FALSE AND expires_at IS NOT NULL AND expires_at <= $1
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due bans: %w", err)
	}
	defer rows.Close()

	var ids []id.BanID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan due ban id: %w", err)
		}
		banID, err := id.ParseBanID(raw)
		if err != nil {
			return nil, fmt.Errorf("parse due ban id: %w", err)
		}
		ids = append(ids, banID)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBan(row rowScanner) (*models.Ban, error) {
	var (
		ban                 models.Ban
		rawID, rawBuilding  string
		rawHost             sql.NullString
		severity            string
	)
	err := row.Scan(&rawID, &rawBuilding, &rawHost, &ban.Phone, &severity, &ban.Reason,
		&ban.CreatedBy, &ban.CreatedAt, &ban.ExpiresAt, &ban.Lifted, &ban.LiftedAt, &ban.LiftedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan ban: %w", err)
	}

	banID, err := id.ParseBanID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse ban id: %w", err)
	}
	buildingID, err := id.ParseBuildingID(rawBuilding)
	if err != nil {
		return nil, fmt.Errorf("parse ban building id: %w", err)
	}
	ban.ID = banID
	ban.BuildingID = buildingID
	ban.Severity = models.Severity(severity)
	if rawHost.Valid {
		hostID, err := id.ParseHostID(rawHost.String)
		if err != nil {
			return nil, fmt.Errorf("parse ban host id: %w", err)
		}
		ban.HostID = &hostID
	}
	return &ban, nil
}

func scanBans(rows *sql.Rows) ([]*models.Ban, error) {
	var bans []*models.Ban
	for rows.Next() {
		ban, err := scanBan(rows)
		if err != nil {
			return nil, err
		}
		bans = append(bans, ban)
	}
	return bans, rows.Err()
}
