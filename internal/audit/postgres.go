package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "passage/pkg/domain"
	"passage/pkg/platform/tx"
)

// Postgres persists audit events. Append-only; rows are never updated.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Append(ctx context.Context, event Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}

	var visitID, buildingID any
	if event.VisitID != nil {
		visitID = event.VisitID.String()
	}
	if event.BuildingID != nil {
		buildingID = event.BuildingID.String()
	}

	// Participate in an ambient transaction when a caller commits the event
	// atomically with its own writes.
	var execer interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	} = s.db
	if ambient, ok := tx.From(ctx); ok {
		execer = ambient
	}

	_, err = execer.ExecContext(ctx, `
		INSERT INTO audit_events (id, occurred_at, category, action, actor_id,
			visit_id, building_id, gate, device, client_ip, request_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		uuid.NewString(), event.Timestamp, string(event.Category), event.Action,
		event.ActorID, visitID, buildingID,
		event.Gate, event.Device, event.ClientIP, event.RequestID, detail,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// AppendBatch writes a drained batch in one transaction; Append picks the
// transaction up from context.
func (s *Postgres) AppendBatch(ctx context.Context, events []Event) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit batch: %w", err)
	}
	ctx = tx.WithTx(ctx, dbtx)
	for _, event := range events {
		if err := s.Append(ctx, event); err != nil {
			_ = dbtx.Rollback()
			return err
		}
	}
	return dbtx.Commit()
}

func (s *Postgres) ListByVisit(ctx context.Context, visitID id.VisitID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, category, action, actor_id, visit_id, building_id,
			gate, device, client_ip, request_id, detail
		FROM audit_events WHERE visit_id = $1 ORDER BY occurred_at
	`, visitID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit events by visit: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Postgres) ListByCategory(ctx context.Context, category Category, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, category, action, actor_id, visit_id, building_id,
			gate, device, client_ip, request_id, detail
		FROM audit_events WHERE category = $1 ORDER BY occurred_at DESC LIMIT $2
	`, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events by category: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			e                    Event
			category             string
			rawVisit, rawBuilding sql.NullString
			detail               []byte
		)
		err := rows.Scan(&e.Timestamp, &category, &e.Action, &e.ActorID,
			&rawVisit, &rawBuilding, &e.Gate, &e.Device, &e.ClientIP, &e.RequestID, &detail)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = Category(category)
		if rawVisit.Valid {
			visitID, err := id.ParseVisitID(rawVisit.String)
			if err != nil {
				return nil, fmt.Errorf("parse audit visit id: %w", err)
			}
			e.VisitID = &visitID
		}
		if rawBuilding.Valid {
			buildingID, err := id.ParseBuildingID(rawBuilding.String)
			if err != nil {
				return nil, fmt.Errorf("parse audit building id: %w", err)
			}
			e.BuildingID = &buildingID
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
