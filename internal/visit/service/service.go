// Package service orchestrates the visit lifecycle: creation with ban
// screening, QR stamping, cancellation, re-issuance, and the expiry sweep.
// Entry and exit transitions belong to the scan processor.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"passage/internal/audit"
	"passage/internal/notify"
	visitmetrics "passage/internal/visit/metrics"
	"passage/internal/visit/models"
	"passage/internal/visit/qr"
	"passage/internal/visit/store"
	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
	"passage/pkg/requestcontext"
)

// BanChecker answers whether any of the phones carries an active ban for the
// host or the building.
type BanChecker interface {
	CheckPhones(ctx context.Context, buildingID id.BuildingID, hostID id.HostID, phones []string) (string, bool, error)
}

// AuditEmitter records lifecycle activity.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event)
}

// NotifyQueue hands notifications to the delivery worker without blocking.
type NotifyQueue interface {
	Enqueue(ctx context.Context, n notify.Notification)
}

// Service owns the host-facing visit operations.
type Service struct {
	visits   store.Store
	profiles store.ProfileStore
	issuer   *qr.Issuer
	bans     BanChecker
	logger   *slog.Logger
	auditor  AuditEmitter
	notifier NotifyQueue
	metrics  *visitmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditEmitter(auditor AuditEmitter) Option {
	return func(s *Service) { s.auditor = auditor }
}

func WithNotifyQueue(notifier NotifyQueue) Option {
	return func(s *Service) { s.notifier = notifier }
}

func WithMetrics(m *visitmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a Service.
func New(visits store.Store, profiles store.ProfileStore, issuer *qr.Issuer, bans BanChecker, opts ...Option) *Service {
	s := &Service{
		visits:   visits,
		profiles: profiles,
		issuer:   issuer,
		bans:     bans,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VisitDetails pairs a visit snapshot with its attachments.
type VisitDetails struct {
	Visit    *models.Visit               `json:"visit"`
	Visitors []*models.VisitorAttachment `json:"visitors"`
}

// CreateVisit screens the invited phones against the ban registry, stamps a
// QR code, and persists the visit with its attachments. The ban check here
// is a courtesy; the scan processor re-checks at the gate.
func (s *Service) CreateVisit(ctx context.Context, hostID id.HostID, req *models.CreateVisitRequest) (*models.CreatedVisit, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveCreateVisit(start)
		}
	}()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	buildingID, err := id.ParseBuildingID(req.BuildingID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "building_id is not a valid id")
	}

	phones := make([]string, 0, len(req.Visitors))
	for _, v := range req.Visitors {
		phones = append(phones, v.Phone)
	}
	// The banned phone is logged but never echoed back to the host.
	_, banned, err := s.bans.CheckPhones(ctx, buildingID, hostID, phones)
	if err != nil {
		return nil, err
	}
	if banned {
		s.logger.InfoContext(ctx, "visit creation blocked by ban",
			"host_id", hostID,
			"building_id", buildingID,
		)
		return nil, dErrors.New(dErrors.CodeForbidden, "an invited visitor is banned from this building")
	}

	now := requestcontext.Now(ctx)
	visit, err := models.NewVisit(id.NewVisitID(), hostID, buildingID, req.Title,
		req.ExpectedStart, req.ExpectedEnd, req.MaxVisitors, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	visit.Description = req.Description

	token, expiresAt, err := s.issuer.IssueCode(visit.ID, now, visit.ExpectedEnd)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue qr code")
	}
	visit.SetCode(token, expiresAt, now)

	attachments := make([]*models.VisitorAttachment, 0, len(req.Visitors))
	for _, input := range req.Visitors {
		profile, err := s.profiles.Upsert(ctx, &models.VisitorProfile{
			ID:            id.NewVisitorID(),
			BuildingID:    buildingID,
			OwnerHostID:   hostID,
			Name:          input.Name,
			Phone:         input.Phone,
			Email:         input.Email,
			CreatedAt:     now,
			LastInvitedAt: now,
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to upsert visitor profile")
		}

		attachment, err := models.NewAttachment(visit.ID, profile.ID, input.Name, input.Phone)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, attachment)
	}
	visit.VisitorCount = len(attachments)

	if err := s.visits.Create(ctx, visit, attachments); err != nil {
		if errors.Is(err, store.ErrCodeTaken) {
			// 192-bit random tokens do not collide in practice; a conflict
			// here means a duplicate visit id or a corrupted index.
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "qr code conflict on create")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist visit")
	}

	s.emit(ctx, audit.Event{
		Category:   audit.CategoryLifecycle,
		Action:     audit.ActionVisitCreated,
		VisitID:    &visit.ID,
		BuildingID: &visit.BuildingID,
		Detail:     map[string]string{"visitors": strconv.Itoa(len(attachments))},
	})
	s.enqueue(ctx, notify.Notification{
		Kind:       notify.KindVisitCreated,
		VisitID:    visit.ID,
		HostID:     visit.HostID,
		BuildingID: visit.BuildingID,
		Message:    "visit created: " + visit.Title,
		OccurredAt: now,
	})
	if s.metrics != nil {
		s.metrics.VisitsCreated.Inc()
	}

	return &models.CreatedVisit{
		VisitID:  visit.ID.String(),
		QRToken:  token,
		QRExpiry: expiresAt,
	}, nil
}

// GetVisit returns a visit and its attachments.
func (s *Service) GetVisit(ctx context.Context, visitID id.VisitID) (*VisitDetails, error) {
	visit, err := s.visits.FindByID(ctx, visitID)
	if err != nil {
		return nil, wrapVisitErr(err)
	}
	attachments, err := s.visits.Attachments(ctx, visitID)
	if err != nil {
		return nil, wrapVisitErr(err)
	}
	return &VisitDetails{Visit: visit, Visitors: attachments}, nil
}

// ListVisits returns the host's visits, newest first.
func (s *Service) ListVisits(ctx context.Context, hostID id.HostID) ([]*models.Visit, error) {
	visits, err := s.visits.ListByHost(ctx, hostID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list visits")
	}
	return visits, nil
}

// CancelVisit transitions a non-terminal visit to cancelled. No scan is
// accepted afterwards.
func (s *Service) CancelVisit(ctx context.Context, visitID id.VisitID) (*models.Visit, error) {
	now := requestcontext.Now(ctx)
	visit, err := s.visits.Execute(ctx, visitID,
		func(v *models.Visit, _ []*models.VisitorAttachment) error {
			if err := v.CanCancel(); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return dErrors.New(dErrors.CodeConflict, "visit is already "+string(v.Status))
				}
				return err
			}
			return nil
		},
		func(v *models.Visit, _ []*models.VisitorAttachment) {
			v.ApplyCancel(now)
		},
	)
	if err != nil {
		return nil, wrapVisitErr(err)
	}

	s.emit(ctx, audit.Event{
		Category:   audit.CategoryLifecycle,
		Action:     audit.ActionVisitCancelled,
		VisitID:    &visit.ID,
		BuildingID: &visit.BuildingID,
	})
	s.enqueue(ctx, notify.Notification{
		Kind:       notify.KindVisitCancelled,
		VisitID:    visit.ID,
		HostID:     visit.HostID,
		BuildingID: visit.BuildingID,
		Message:    "visit cancelled: " + visit.Title,
		OccurredAt: now,
	})
	return visit, nil
}

// ReissueCode stamps a fresh token on a non-terminal visit. The previous
// token stops resolving the moment the swap commits.
func (s *Service) ReissueCode(ctx context.Context, visitID id.VisitID) (*models.CreatedVisit, error) {
	now := requestcontext.Now(ctx)

	token, expiresAt, err := s.issuer.IssueCode(visitID, now, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue qr code")
	}

	visit, err := s.visits.Execute(ctx, visitID,
		func(v *models.Visit, _ []*models.VisitorAttachment) error {
			if v.Status.Terminal() {
				return dErrors.New(dErrors.CodeConflict, "visit is "+string(v.Status))
			}
			return nil
		},
		func(v *models.Visit, _ []*models.VisitorAttachment) {
			capped := expiresAt
			if v.ExpectedEnd != nil && v.ExpectedEnd.Before(capped) {
				capped = *v.ExpectedEnd
			}
			v.SetCode(token, capped, now)
		},
	)
	if err != nil {
		return nil, wrapVisitErr(err)
	}

	s.emit(ctx, audit.Event{
		Category:   audit.CategoryLifecycle,
		Action:     audit.ActionCodeReissued,
		VisitID:    &visit.ID,
		BuildingID: &visit.BuildingID,
	})
	if s.metrics != nil {
		s.metrics.CodesReissued.Inc()
	}

	return &models.CreatedVisit{
		VisitID:  visit.ID.String(),
		QRToken:  token,
		QRExpiry: visit.QRExpiresAt,
	}, nil
}

// CodePNG renders the visit's current QR code for the host client.
func (s *Service) CodePNG(ctx context.Context, visitID id.VisitID, size int) ([]byte, error) {
	visit, err := s.visits.FindByID(ctx, visitID)
	if err != nil {
		return nil, wrapVisitErr(err)
	}
	if visit.Status.Terminal() {
		return nil, dErrors.New(dErrors.CodeConflict, "visit is "+string(visit.Status))
	}
	png, err := qr.RenderPNG(visit.QRCode, size)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render qr code")
	}
	return png, nil
}

// ExpireOverdue sweeps pending and confirmed visits whose expected_start
// passed by more than the grace window without an entry scan. Safe to run
// concurrently with live scans: each candidate is re-validated under the
// store lock, so a visit entered mid-sweep is skipped.
func (s *Service) ExpireOverdue(ctx context.Context, grace time.Duration, limit int) (int, error) {
	now := requestcontext.Now(ctx)
	candidates, err := s.visits.ListExpirable(ctx, now.Add(-grace), limit)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expirable visits")
	}

	expired := 0
	for _, visitID := range candidates {
		visit, err := s.visits.Execute(ctx, visitID,
			func(v *models.Visit, _ []*models.VisitorAttachment) error {
				return v.CanExpire(now, grace)
			},
			func(v *models.Visit, _ []*models.VisitorAttachment) {
				v.ApplyExpire(now)
			},
		)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) || errors.Is(err, store.ErrNotFound) {
				continue
			}
			return expired, err
		}
		expired++

		s.emit(ctx, audit.Event{
			Category:   audit.CategoryLifecycle,
			Action:     audit.ActionVisitExpired,
			VisitID:    &visit.ID,
			BuildingID: &visit.BuildingID,
		})
		s.enqueue(ctx, notify.Notification{
			Kind:       notify.KindVisitExpired,
			VisitID:    visit.ID,
			HostID:     visit.HostID,
			BuildingID: visit.BuildingID,
			Message:    "visit expired without entry: " + visit.Title,
			OccurredAt: now,
		})
	}
	if s.metrics != nil && expired > 0 {
		s.metrics.VisitsExpired.Add(float64(expired))
	}
	return expired, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor != nil {
		s.auditor.Emit(ctx, event)
	}
}

func (s *Service) enqueue(ctx context.Context, n notify.Notification) {
	if s.notifier != nil {
		s.notifier.Enqueue(ctx, n)
	}
}

func wrapVisitErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "visit not found")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "visit store failure")
}

