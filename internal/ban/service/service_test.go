package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"passage/internal/audit"
	"passage/internal/ban/models"
	"passage/internal/ban/store"
	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
	"passage/pkg/requestcontext"
)

type BanServiceSuite struct {
	suite.Suite
	store      *store.InMemory
	auditStore *audit.InMemory
	service    *Service
	ctx        context.Context
	buildingID id.BuildingID
	hostID     id.HostID
	now        time.Time
}

func TestBanServiceSuite(t *testing.T) {
	suite.Run(t, new(BanServiceSuite))
}

func (s *BanServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.auditStore = audit.NewInMemory()
	s.service = New(s.store, WithAuditEmitter(syncEmitter{s.auditStore}))
	s.buildingID = id.NewBuildingID()
	s.hostID = id.NewHostID()
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

// syncEmitter persists events inline so tests can assert on them.
type syncEmitter struct {
	store audit.Store
}

func (e syncEmitter) Emit(ctx context.Context, event audit.Event) {
	_ = e.store.Append(ctx, event)
}

func (s *BanServiceSuite) createBan(hostID *id.HostID, phone string, expiresAt *time.Time) *models.Ban {
	ban, err := s.service.CreateBan(s.ctx, CreateBanRequest{
		BuildingID: s.buildingID,
		HostID:     hostID,
		Phone:      phone,
		Reason:     "test",
		ExpiresAt:  expiresAt,
	})
	s.Require().NoError(err)
	return ban
}

func (s *BanServiceSuite) TestCreateBan() {
	s.Run("rejects empty phone", func() {
		_, err := s.service.CreateBan(s.ctx, CreateBanRequest{BuildingID: s.buildingID})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects expiry at or before creation", func() {
		past := s.now.Add(-time.Minute)
		_, err := s.service.CreateBan(s.ctx, CreateBanRequest{
			BuildingID: s.buildingID,
			Phone:      "+15550001111",
			ExpiresAt:  &past,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("defaults severity and records an audit event", func() {
		ban := s.createBan(nil, "+15550001111", nil)
		s.Equal(models.SeverityMedium, ban.Severity)
		s.Equal(models.ScopeSystem, ban.Scope())

		events := s.auditStore.All()
		s.Require().NotEmpty(events)
		s.Equal(audit.ActionBanCreated, events[len(events)-1].Action)
	})
}

func (s *BanServiceSuite) TestCheckPhones() {
	s.Run("personal ban matches only its own host", func() {
		s.createBan(&s.hostID, "+15550002222", nil)

		phone, banned, err := s.service.CheckPhones(s.ctx, s.buildingID, s.hostID, []string{"+15550002222"})
		s.Require().NoError(err)
		s.True(banned)
		s.Equal("+15550002222", phone)

		otherHost := id.NewHostID()
		_, banned, err = s.service.CheckPhones(s.ctx, s.buildingID, otherHost, []string{"+15550002222"})
		s.Require().NoError(err)
		s.False(banned)
	})

	s.Run("building-wide ban matches every host", func() {
		s.createBan(nil, "+15550003333", nil)

		for range 2 {
			_, banned, err := s.service.CheckPhones(s.ctx, s.buildingID, id.NewHostID(), []string{"+15550003333"})
			s.Require().NoError(err)
			s.True(banned)
		}
	})

	s.Run("expired ban is inactive without any sweep", func() {
		expiry := s.now.Add(time.Hour)
		s.createBan(nil, "+15550004444", &expiry)

		later := requestcontext.WithTime(context.Background(), expiry)
		_, banned, err := s.service.CheckPhones(later, s.buildingID, s.hostID, []string{"+15550004444"})
		s.Require().NoError(err)
		s.False(banned)
	})

	s.Run("phones are compared after trim and lowercase", func() {
		s.createBan(nil, "+15550005555", nil)

		_, banned, err := s.service.CheckPhones(s.ctx, s.buildingID, s.hostID, []string{"  +15550005555  "})
		s.Require().NoError(err)
		s.True(banned)
	})

	s.Run("no phones means no ban", func() {
		_, banned, err := s.service.CheckPhones(s.ctx, s.buildingID, s.hostID, nil)
		s.Require().NoError(err)
		s.False(banned)
	})
}

func (s *BanServiceSuite) TestUnban() {
	s.Run("lifts an active ban", func() {
		ban := s.createBan(nil, "+15550006666", nil)

		lifted, err := s.service.Unban(s.ctx, ban.ID, "appeal accepted")
		s.Require().NoError(err)
		s.True(lifted.Lifted)

		_, banned, err := s.service.CheckPhones(s.ctx, s.buildingID, s.hostID, []string{"+15550006666"})
		s.Require().NoError(err)
		s.False(banned)
	})

	s.Run("lifting twice is a conflict", func() {
		ban := s.createBan(nil, "+15550007777", nil)
		_, err := s.service.Unban(s.ctx, ban.ID, "first")
		s.Require().NoError(err)

		_, err = s.service.Unban(s.ctx, ban.ID, "second")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown ban is not found", func() {
		_, err := s.service.Unban(s.ctx, id.NewBanID(), "nope")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *BanServiceSuite) TestExpireDueBans() {
	expiry := s.now.Add(time.Hour)
	s.createBan(nil, "+15550008888", &expiry)
	s.createBan(nil, "+15550009999", nil) // permanent, never swept

	later := requestcontext.WithTime(context.Background(), expiry.Add(time.Minute))

	count, err := s.service.ExpireDueBans(later)
	s.Require().NoError(err)
	s.Equal(1, count)

	// Idempotent: a second run finds nothing.
	count, err = s.service.ExpireDueBans(later)
	s.Require().NoError(err)
	s.Equal(0, count)
}
