// Package service implements the ban registry: phone-keyed denylists scoped
// to a host or a whole building.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"passage/internal/audit"
	banmetrics "passage/internal/ban/metrics"
	"passage/internal/ban/models"
	"passage/internal/ban/store"
	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
	pstrings "passage/pkg/platform/strings"
	"passage/pkg/requestcontext"
)

// DenyCache is an optional fast path for building-wide denials. Misses and
// errors fall through to the store; the cache is never authoritative.
type DenyCache interface {
	IsDenied(ctx context.Context, buildingID id.BuildingID, phone string) (bool, error)
	MarkDenied(ctx context.Context, buildingID id.BuildingID, phone string, banExpiry *time.Time, now time.Time) error
	Invalidate(ctx context.Context, buildingID id.BuildingID, phone string) error
}

// AuditEmitter records security-relevant ban activity.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service orchestrates ban creation, lifting, checks, and the expiry sweep.
type Service struct {
	bans    store.Store
	cache   DenyCache
	logger  *slog.Logger
	auditor AuditEmitter
	metrics *banmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithDenyCache(cache DenyCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithAuditEmitter(auditor AuditEmitter) Option {
	return func(s *Service) { s.auditor = auditor }
}

func WithMetrics(m *banmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a Service.
func New(bans store.Store, opts ...Option) *Service {
	s := &Service{bans: bans, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBanRequest carries the fields for a new ban. A nil HostID makes the
// ban building-wide.
type CreateBanRequest struct {
	BuildingID id.BuildingID
	HostID     *id.HostID
	Phone      string
	Severity   models.Severity
	Reason     string
	ExpiresAt  *time.Time
}

// CreateBan records a new ban and invalidates nothing: checks consult the
// store on cache miss, so the ban takes effect immediately.
func (s *Service) CreateBan(ctx context.Context, req CreateBanRequest) (*models.Ban, error) {
	now := requestcontext.Now(ctx)
	ban, err := models.NewBan(id.NewBanID(), req.BuildingID, req.HostID,
		normalizePhone(req.Phone), req.Severity, req.Reason,
		requestcontext.ActorID(ctx), now, req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if err := s.bans.Create(ctx, ban); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create ban")
	}

	s.emit(ctx, audit.Event{
		Category:   audit.CategorySecurity,
		Action:     audit.ActionBanCreated,
		BuildingID: &ban.BuildingID,
		Detail: map[string]string{
			"ban_id":   ban.ID.String(),
			"scope":    string(ban.Scope()),
			"severity": string(ban.Severity),
		},
	})
	if s.metrics != nil {
		s.metrics.BansCreated.Inc()
	}
	return ban, nil
}

// GetBan returns a ban by id.
func (s *Service) GetBan(ctx context.Context, banID id.BanID) (*models.Ban, error) {
	ban, err := s.bans.FindByID(ctx, banID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "ban not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ban")
	}
	return ban, nil
}

// ListBans returns a building's bans, newest first.
func (s *Service) ListBans(ctx context.Context, buildingID id.BuildingID) ([]*models.Ban, error) {
	bans, err := s.bans.ListByBuilding(ctx, buildingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list bans")
	}
	return bans, nil
}

// Unban lifts a ban. Lifting twice is a conflict.
func (s *Service) Unban(ctx context.Context, banID id.BanID, reason string) (*models.Ban, error) {
	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)

	ban, err := s.bans.Execute(ctx, banID,
		func(b *models.Ban) error {
			if err := b.CanLift(); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return dErrors.New(dErrors.CodeConflict, "ban is already lifted")
				}
				return err
			}
			return nil
		},
		func(b *models.Ban) {
			b.ApplyLift(now, actor)
		},
	)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "ban not found")
		}
		return nil, err
	}

	if s.cache != nil && ban.Scope() == models.ScopeSystem {
		if cerr := s.cache.Invalidate(ctx, ban.BuildingID, ban.Phone); cerr != nil {
			s.logger.WarnContext(ctx, "failed to invalidate ban deny cache", "error", cerr)
		}
	}

	s.emit(ctx, audit.Event{
		Category:   audit.CategorySecurity,
		Action:     audit.ActionBanLifted,
		BuildingID: &ban.BuildingID,
		Detail: map[string]string{
			"ban_id": ban.ID.String(),
			"reason": reason,
		},
	})
	if s.metrics != nil {
		s.metrics.BansLifted.Inc()
	}
	return ban, nil
}

// IsBanned answers the single-phone form of the check.
func (s *Service) IsBanned(ctx context.Context, buildingID id.BuildingID, hostID id.HostID, phone string) (bool, error) {
	_, banned, err := s.CheckPhones(ctx, buildingID, hostID, []string{phone})
	return banned, err
}

// CheckPhones reports the first phone with an active ban under either the
// host's personal list or the building-wide one. The expiry rule is applied
// live; an expired-but-unswept ban never blocks anyone.
func (s *Service) CheckPhones(ctx context.Context, buildingID id.BuildingID, hostID id.HostID, phones []string) (string, bool, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveCheck(start)
		}
	}()

	phones = pstrings.DedupeAndTrimLower(phones)
	if len(phones) == 0 {
		return "", false, nil
	}
	now := requestcontext.Now(ctx)

	if s.cache != nil {
		for _, phone := range phones {
			denied, err := s.cache.IsDenied(ctx, buildingID, phone)
			if err != nil {
				s.logger.WarnContext(ctx, "ban deny cache unavailable, falling back to store", "error", err)
				break
			}
			if denied {
				s.recordDenied()
				return phone, true, nil
			}
		}
	}

	matches, err := s.bans.FindMatching(ctx, buildingID, hostID, phones)
	if err != nil {
		return "", false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check bans")
	}
	for _, ban := range matches {
		if !ban.ActiveAt(now) {
			continue
		}
		if s.cache != nil && ban.Scope() == models.ScopeSystem {
			if cerr := s.cache.MarkDenied(ctx, buildingID, ban.Phone, ban.ExpiresAt, now); cerr != nil {
				s.logger.WarnContext(ctx, "failed to mark ban deny cache", "error", cerr)
			}
		}
		s.recordDenied()
		return ban.Phone, true, nil
	}
	return "", false, nil
}

// ExpireDueBans lifts bans whose expiry has passed. Idempotent; checks never
// depend on it because ActiveAt applies expiry live.
func (s *Service) ExpireDueBans(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	due, err := s.bans.ListDue(ctx, now, 500)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list due bans")
	}

	expired := 0
	for _, banID := range due {
		_, err := s.bans.Execute(ctx, banID,
			func(b *models.Ban) error {
				if b.Lifted || b.ExpiresAt == nil || b.ExpiresAt.After(now) {
					return store.ErrConcurrentModification
				}
				return nil
			},
			func(b *models.Ban) {
				b.ApplyLift(now, "expiry-sweep")
			},
		)
		if err != nil {
			// Lost a race with Unban or a concurrent sweep. Nothing to do.
			if errors.Is(err, store.ErrConcurrentModification) || errors.Is(err, store.ErrNotFound) {
				continue
			}
			return expired, err
		}
		expired++
	}
	if s.metrics != nil && expired > 0 {
		s.metrics.BansExpired.Add(float64(expired))
	}
	return expired, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor != nil {
		s.auditor.Emit(ctx, event)
	}
}

func (s *Service) recordDenied() {
	if s.metrics != nil {
		s.metrics.ChecksDenied.Inc()
	}
}

func normalizePhone(phone string) string {
	cleaned := pstrings.DedupeAndTrimLower([]string{phone})
	if len(cleaned) == 0 {
		return ""
	}
	return cleaned[0]
}
