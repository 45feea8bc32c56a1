package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"passage/internal/audit"
	banservice "passage/internal/ban/service"
	banstore "passage/internal/ban/store"
	licenseservice "passage/internal/license/service"
	licensestore "passage/internal/license/store"
	"passage/internal/visit/models"
	"passage/internal/visit/qr"
	"passage/internal/visit/store"
	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
	"passage/pkg/requestcontext"
)

type VisitServiceSuite struct {
	suite.Suite
	store      *store.InMemory
	bans       *banservice.Service
	banStore   *banstore.InMemory
	auditStore *audit.InMemory
	service    *Service
	ctx        context.Context
	hostID     id.HostID
	buildingID id.BuildingID
	now        time.Time
}

func TestVisitServiceSuite(t *testing.T) {
	suite.Run(t, new(VisitServiceSuite))
}

func (s *VisitServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.banStore = banstore.NewInMemory()
	s.bans = banservice.New(s.banStore)
	s.auditStore = audit.NewInMemory()

	issuer, err := qr.NewIssuer("0123456789abcdef0123456789abcdef", 0)
	s.Require().NoError(err)

	s.service = New(s.store, s.store, issuer, s.bans,
		WithAuditEmitter(syncEmitter{s.auditStore}))

	s.hostID = id.NewHostID()
	s.buildingID = id.NewBuildingID()
	s.now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

type syncEmitter struct {
	store audit.Store
}

func (e syncEmitter) Emit(ctx context.Context, event audit.Event) {
	_ = e.store.Append(ctx, event)
}

func (s *VisitServiceSuite) newRequest() *models.CreateVisitRequest {
	return &models.CreateVisitRequest{
		BuildingID:    s.buildingID.String(),
		Title:         "Dinner guests",
		ExpectedStart: s.now.Add(2 * time.Hour),
		Visitors: []models.VisitorInput{
			{Name: "Ada", Phone: "+15550001111"},
			{Name: "Grace", Phone: "+15550002222"},
		},
	}
}

func (s *VisitServiceSuite) TestCreateVisit() {
	s.Run("creates a pending visit with a scannable code", func() {
		created, err := s.service.CreateVisit(s.ctx, s.hostID, s.newRequest())
		s.Require().NoError(err)
		s.NotEmpty(created.QRToken)
		s.Equal(s.now.Add(24*time.Hour), created.QRExpiry)

		visit, err := s.store.FindByCode(s.ctx, created.QRToken)
		s.Require().NoError(err)
		s.Equal(models.VisitStatusPending, visit.Status)
		s.Equal(2, visit.VisitorCount)
		s.False(visit.Entry)
	})

	s.Run("qr expiry is capped by expected_end", func() {
		req := s.newRequest()
		end := s.now.Add(4 * time.Hour)
		req.ExpectedEnd = &end

		created, err := s.service.CreateVisit(s.ctx, s.hostID, req)
		s.Require().NoError(err)
		s.Equal(end, created.QRExpiry)
	})

	s.Run("rejects a banned visitor phone", func() {
		_, err := s.bans.CreateBan(s.ctx, banservice.CreateBanRequest{
			BuildingID: s.buildingID,
			Phone:      "+15550001111",
			Reason:     "trespass",
		})
		s.Require().NoError(err)

		_, err = s.service.CreateVisit(s.ctx, s.hostID, s.newRequest())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rejects invalid requests", func() {
		req := s.newRequest()
		req.Visitors = nil
		_, err := s.service.CreateVisit(s.ctx, s.hostID, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("upserts visitor profiles for repeat invitations", func() {
		_, err := s.service.CreateVisit(s.ctx, s.hostID, s.newRequest())
		s.Require().NoError(err)
		_, err = s.service.CreateVisit(s.ctx, s.hostID, s.newRequest())
		s.Require().NoError(err)

		profile, err := s.store.FindByPhone(s.ctx, s.buildingID, s.hostID, "+15550001111")
		s.Require().NoError(err)
		s.GreaterOrEqual(profile.InviteCount, 2)
	})
}

// Visitors never consume licenses, so a building whose license cap is fully
// used keeps accepting invitations.
func (s *VisitServiceSuite) TestInvitationsIgnoreLicenseCap() {
	licenses := licenseservice.New(licensestore.NewInMemory())
	_, err := licenses.SetBuildingCap(s.ctx, s.buildingID, 1)
	s.Require().NoError(err)
	s.Require().NoError(licenses.OnboardUser(s.ctx, s.buildingID, id.NewUserID()))

	available, err := licenses.HasAvailableLicense(s.ctx, s.buildingID)
	s.Require().NoError(err)
	s.Require().False(available)

	created, err := s.service.CreateVisit(s.ctx, s.hostID, s.newRequest())
	s.Require().NoError(err)
	s.NotEmpty(created.QRToken)

	visit, err := s.store.FindByCode(s.ctx, created.QRToken)
	s.Require().NoError(err)
	s.Equal(models.VisitStatusPending, visit.Status)
}

func (s *VisitServiceSuite) TestCancelVisit() {
	created, err := s.service.CreateVisit(s.ctx, s.hostID, s.newRequest())
	s.Require().NoError(err)
	visitID, err := id.ParseVisitID(created.VisitID)
	s.Require().NoError(err)

	s.Run("cancels a pending visit", func() {
		visit, err := s.service.CancelVisit(s.ctx, visitID)
		s.Require().NoError(err)
		s.Equal(models.VisitStatusCancelled, visit.Status)
	})

	s.Run("cancelling twice is a conflict", func() {
		_, err := s.service.CancelVisit(s.ctx, visitID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown visit is not found", func() {
		_, err := s.service.CancelVisit(s.ctx, id.NewVisitID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *VisitServiceSuite) TestReissueCode() {
	created, err := s.service.CreateVisit(s.ctx, s.hostID, s.newRequest())
	s.Require().NoError(err)
	visitID, err := id.ParseVisitID(created.VisitID)
	s.Require().NoError(err)

	s.Run("old token stops resolving after reissue", func() {
		reissued, err := s.service.ReissueCode(s.ctx, visitID)
		s.Require().NoError(err)
		s.NotEqual(created.QRToken, reissued.QRToken)

		_, err = s.store.FindByCode(s.ctx, created.QRToken)
		s.Require().ErrorIs(err, store.ErrNotFound)

		visit, err := s.store.FindByCode(s.ctx, reissued.QRToken)
		s.Require().NoError(err)
		s.Equal(visitID, visit.ID)
	})

	s.Run("terminal visits cannot be reissued", func() {
		_, err := s.service.CancelVisit(s.ctx, visitID)
		s.Require().NoError(err)

		_, err = s.service.ReissueCode(s.ctx, visitID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *VisitServiceSuite) TestExpireOverdue() {
	grace := 30 * time.Minute

	created, err := s.service.CreateVisit(s.ctx, s.hostID, s.newRequest())
	s.Require().NoError(err)
	visitID, err := id.ParseVisitID(created.VisitID)
	s.Require().NoError(err)

	s.Run("within the grace window nothing expires", func() {
		soon := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Hour))
		count, err := s.service.ExpireOverdue(soon, grace, 100)
		s.Require().NoError(err)
		s.Equal(0, count)
	})

	s.Run("past the grace window the visit expires", func() {
		late := requestcontext.WithTime(context.Background(), s.now.Add(3*time.Hour))
		count, err := s.service.ExpireOverdue(late, grace, 100)
		s.Require().NoError(err)
		s.Equal(1, count)

		details, err := s.service.GetVisit(s.ctx, visitID)
		s.Require().NoError(err)
		s.Equal(models.VisitStatusExpired, details.Visit.Status)
	})

	s.Run("the sweep is idempotent", func() {
		late := requestcontext.WithTime(context.Background(), s.now.Add(4*time.Hour))
		count, err := s.service.ExpireOverdue(late, grace, 100)
		s.Require().NoError(err)
		s.Equal(0, count)
	})
}
