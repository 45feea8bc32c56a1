package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"passage/internal/visit/models"
	id "passage/pkg/domain"
)

// Postgres implements Store and ProfileStore on PostgreSQL. Execute takes a
// row lock (SELECT ... FOR UPDATE) for the duration of the transaction; a
// concurrent scanner blocks until the winner commits, then re-validates
// against the committed state.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed visit store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const visitColumns = `id, host_id, building_id, title, description,
	expected_start, expected_end, actual_start, actual_end, status,
	qr_code, qr_expires_at, entry, exit, max_visitors, visitor_count,
	created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, visit *models.Visit, attachments []*models.VisitorAttachment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create visit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO visits (`+visitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		visit.ID.String(), visit.HostID.String(), visit.BuildingID.String(),
		visit.Title, visit.Description,
		visit.ExpectedStart, visit.ExpectedEnd, visit.ActualStart, visit.ActualEnd,
		string(visit.Status), visit.QRCode, visit.QRExpiresAt,
		visit.Entry, visit.Exit, visit.MaxVisitors, visit.VisitorCount,
		visit.CreatedAt, visit.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeTaken
		}
		return fmt.Errorf("insert visit: %w", err)
	}

	for _, a := range attachments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO visit_visitors (visit_id, visitor_id, name, phone, status, arrived_at, departed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, a.VisitID.String(), a.VisitorID.String(), a.Name, a.Phone, string(a.Status), a.ArrivedAt, a.DepartedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrCodeTaken
			}
			return fmt.Errorf("insert visit visitor: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create visit: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, visitID id.VisitID) (*models.Visit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+visitColumns+` FROM visits WHERE id = $1`, visitID.String())
	return scanVisit(row)
}

func (s *Postgres) FindByCode(ctx context.Context, code string) (*models.Visit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+visitColumns+` FROM visits WHERE qr_code = $1`, code)
	return scanVisit(row)
}

func (s *Postgres) Attachments(ctx context.Context, visitID id.VisitID) ([]*models.VisitorAttachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT visit_id, visitor_id, name, phone, status, arrived_at, departed_at
		FROM visit_visitors WHERE visit_id = $1
	`, visitID.String())
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()
	return scanAttachments(rows)
}

func (s *Postgres) ListByHost(ctx context.Context, hostID id.HostID) ([]*models.Visit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+visitColumns+` FROM visits WHERE host_id = $1 ORDER BY created_at DESC
	`, hostID.String())
	if err != nil {
		return nil, fmt.Errorf("list visits by host: %w", err)
	}
	defer rows.Close()

	var visits []*models.Visit
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, visit)
	}
	return visits, rows.Err()
}

func (s *Postgres) Execute(ctx context.Context, visitID id.VisitID, validate ValidateFn, mutate MutateFn) (*models.Visit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin execute: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+visitColumns+` FROM visits WHERE id = $1 FOR UPDATE`, visitID.String())
	visit, err := scanVisit(row)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT visit_id, visitor_id, name, phone, status, arrived_at, departed_at
		FROM visit_visitors WHERE visit_id = $1 FOR UPDATE
	`, visitID.String())
	if err != nil {
		return nil, fmt.Errorf("lock attachments: %w", err)
	}
	attachments, err := scanAttachments(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := validate(visit, attachments); err != nil {
		return nil, err
	}
	mutate(visit, attachments)

	_, err = tx.ExecContext(ctx, `
		UPDATE visits SET
			title = $2, description = $3, expected_start = $4, expected_end = $5,
			actual_start = $6, actual_end = $7, status = $8, qr_code = $9,
			qr_expires_at = $10, entry = $11, exit = $12, max_visitors = $13,
			visitor_count = $14, updated_at = $15
		WHERE id = $1
	`,
		visit.ID.String(), visit.Title, visit.Description,
		visit.ExpectedStart, visit.ExpectedEnd, visit.ActualStart, visit.ActualEnd,
		string(visit.Status), visit.QRCode, visit.QRExpiresAt,
		visit.Entry, visit.Exit, visit.MaxVisitors, visit.VisitorCount, visit.UpdatedAt,
	)
	if err != nil {
		if isSerializationFailure(err) {
			return nil, ErrConcurrentModification
		}
		if isUniqueViolation(err) {
			return nil, ErrCodeTaken
		}
		return nil, fmt.Errorf("update visit: %w", err)
	}

	for _, a := range attachments {
		_, err = tx.ExecContext(ctx, `
			UPDATE visit_visitors SET status = $3, arrived_at = $4, departed_at = $5
			WHERE visit_id = $1 AND visitor_id = $2
		`, a.VisitID.String(), a.VisitorID.String(), string(a.Status), a.ArrivedAt, a.DepartedAt)
		if err != nil {
			return nil, fmt.Errorf("update attachment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return nil, ErrConcurrentModification
		}
		return nil, fmt.Errorf("commit execute: %w", err)
	}
	return visit, nil
}

func (s *Postgres) ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]id.VisitID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM visits
		WHERE status IN ('pending', 'confirmed') AND entry = false AND expected_start < $1
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expirable visits: %w", err)
	}
	defer rows.Close()

	var ids []id.VisitID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan expirable visit id: %w", err)
		}
		visitID, err := id.ParseVisitID(raw)
		if err != nil {
			return nil, fmt.Errorf("parse expirable visit id: %w", err)
		}
		ids = append(ids, visitID)
	}
	return ids, rows.Err()
}

func (s *Postgres) Upsert(ctx context.Context, profile *models.VisitorProfile) (*models.VisitorProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO visitor_profiles (id, building_id, owner_host_id, name, phone, email, created_at, last_invited_at, invite_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		ON CONFLICT (building_id, owner_host_id, phone) DO UPDATE SET
			name = EXCLUDED.name,
			email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE visitor_profiles.email END,
			last_invited_at = EXCLUDED.last_invited_at,
			invite_count = visitor_profiles.invite_count + 1
		RETURNING id, building_id, owner_host_id, name, phone, email, created_at, last_invited_at, invite_count
	`,
		profile.ID.String(), profile.BuildingID.String(), profile.OwnerHostID.String(),
		profile.Name, profile.Phone, profile.Email,
		profile.CreatedAt, profile.LastInvitedAt,
	)
	return scanProfile(row)
}

func (s *Postgres) FindByPhone(ctx context.Context, buildingID id.BuildingID, hostID id.HostID, phone string) (*models.VisitorProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, building_id, owner_host_id, name, phone, email, created_at, last_invited_at, invite_count
		FROM visitor_profiles
		WHERE building_id = $1 AND owner_host_id = $2 AND phone = $3
	`, buildingID.String(), hostID.String(), phone)
	return scanProfile(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVisit(row rowScanner) (*models.Visit, error) {
	var (
		visit                       models.Visit
		rawID, rawHost, rawBuilding string
		status                      string
	)
	err := row.Scan(
		&rawID, &rawHost, &rawBuilding, &visit.Title, &visit.Description,
		&visit.ExpectedStart, &visit.ExpectedEnd, &visit.ActualStart, &visit.ActualEnd,
		&status, &visit.QRCode, &visit.QRExpiresAt,
		&visit.Entry, &visit.Exit, &visit.MaxVisitors, &visit.VisitorCount,
		&visit.CreatedAt, &visit.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan visit: %w", err)
	}

	visitID, err := id.ParseVisitID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse visit id: %w", err)
	}
	hostID, err := id.ParseHostID(rawHost)
	if err != nil {
		return nil, fmt.Errorf("parse host id: %w", err)
	}
	buildingID, err := id.ParseBuildingID(rawBuilding)
	if err != nil {
		return nil, fmt.Errorf("parse building id: %w", err)
	}
	visit.ID = visitID
	visit.HostID = hostID
	visit.BuildingID = buildingID
	visit.Status = models.VisitStatus(status)
	return &visit, nil
}

func scanAttachments(rows *sql.Rows) ([]*models.VisitorAttachment, error) {
	var attachments []*models.VisitorAttachment
	for rows.Next() {
		var (
			a                   models.VisitorAttachment
			rawVisit, rawVisitor string
			status              string
		)
		if err := rows.Scan(&rawVisit, &rawVisitor, &a.Name, &a.Phone, &status, &a.ArrivedAt, &a.DepartedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		visitID, err := id.ParseVisitID(rawVisit)
		if err != nil {
			return nil, fmt.Errorf("parse attachment visit id: %w", err)
		}
		visitorID, err := id.ParseVisitorID(rawVisitor)
		if err != nil {
			return nil, fmt.Errorf("parse attachment visitor id: %w", err)
		}
		a.VisitID = visitID
		a.VisitorID = visitorID
		a.Status = models.AttachmentStatus(status)
		attachments = append(attachments, &a)
	}
	return attachments, rows.Err()
}

func scanProfile(row rowScanner) (*models.VisitorProfile, error) {
	var (
		p                           models.VisitorProfile
		rawID, rawBuilding, rawHost string
	)
	err := row.Scan(&rawID, &rawBuilding, &rawHost, &p.Name, &p.Phone, &p.Email, &p.CreatedAt, &p.LastInvitedAt, &p.InviteCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan visitor profile: %w", err)
	}
	visitorID, err := id.ParseVisitorID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse visitor profile id: %w", err)
	}
	buildingID, err := id.ParseBuildingID(rawBuilding)
	if err != nil {
		return nil, fmt.Errorf("parse visitor profile building id: %w", err)
	}
	hostID, err := id.ParseHostID(rawHost)
	if err != nil {
		return nil, fmt.Errorf("parse visitor profile host id: %w", err)
	}
	p.ID = visitorID
	p.BuildingID = buildingID
	p.OwnerHostID = hostID
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
