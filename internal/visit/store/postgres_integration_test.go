//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"passage/internal/visit/models"
	"passage/internal/visit/store"
	id "passage/pkg/domain"
	"passage/pkg/platform/sentinel"
	"passage/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	// Truncate in dependency order
	err := s.postgres.TruncateTables(ctx, "visit_visitors", "visitor_profiles", "visits")
	s.Require().NoError(err)
}

func newTestVisit(code string) *models.Visit {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Visit{
		ID:            id.NewVisitID(),
		HostID:        id.NewHostID(),
		BuildingID:    id.NewBuildingID(),
		Title:         "Courier delivery",
		ExpectedStart: now.Add(time.Hour),
		Status:        models.VisitStatusConfirmed,
		QRCode:        code,
		QRExpiresAt:   now.Add(24 * time.Hour),
		MaxVisitors:   1,
		VisitorCount:  1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newTestAttachment(visitID id.VisitID) *models.VisitorAttachment {
	return &models.VisitorAttachment{
		VisitID:   visitID,
		VisitorID: id.NewVisitorID(),
		Name:      "Test Visitor",
		Phone:     "+15550002222",
		Status:    models.AttachmentStatusExpected,
	}
}

// TestRoundTrip verifies a visit and its attachments persist and resolve by
// both id and code.
func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	visit := newTestVisit("rt-" + id.NewVisitID().String())
	attachment := newTestAttachment(visit.ID)

	s.Require().NoError(s.store.Create(ctx, visit, []*models.VisitorAttachment{attachment}))

	found, err := s.store.FindByID(ctx, visit.ID)
	s.Require().NoError(err)
	s.Equal(visit.Title, found.Title)
	s.Equal(visit.QRCode, found.QRCode)

	byCode, err := s.store.FindByCode(ctx, visit.QRCode)
	s.Require().NoError(err)
	s.Equal(visit.ID, byCode.ID)

	attachments, err := s.store.Attachments(ctx, visit.ID)
	s.Require().NoError(err)
	s.Require().Len(attachments, 1)
	s.Equal(attachment.Phone, attachments[0].Phone)
}

// TestCodeUniqueness verifies concurrent creation with the same code results
// in exactly one success.
func (s *PostgresStoreSuite) TestCodeUniqueness() {
	ctx := context.Background()
	code := "dup-" + id.NewVisitID().String()
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := s.store.Create(ctx, newTestVisit(code), nil)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrAlreadyUsed) {
				conflictCount.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should get conflict error")
}

// TestExecuteSerializesEntry verifies the row lock lets exactly one of N
// concurrent entry transitions commit.
func (s *PostgresStoreSuite) TestExecuteSerializesEntry() {
	ctx := context.Background()
	visit := newTestVisit("race-" + id.NewVisitID().String())
	s.Require().NoError(s.store.Create(ctx, visit, nil))

	const goroutines = 20
	var wg sync.WaitGroup
	var wins atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.store.Execute(ctx, visit.ID,
				func(v *models.Visit, _ []*models.VisitorAttachment) error {
					return v.CanRecordEntry()
				},
				func(v *models.Visit, _ []*models.VisitorAttachment) {
					v.ApplyEntry(time.Now())
				},
			)
			if err == nil {
				wins.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), wins.Load(), "exactly one entry transition should commit")

	found, err := s.store.FindByID(ctx, visit.ID)
	s.Require().NoError(err)
	s.True(found.Entry)
	s.Equal(models.VisitStatusActive, found.Status)
}

// TestReissueSwapsCode verifies a committed code swap stops the old token
// from resolving.
func (s *PostgresStoreSuite) TestReissueSwapsCode() {
	ctx := context.Background()
	oldCode := "old-" + id.NewVisitID().String()
	newCode := "new-" + id.NewVisitID().String()
	visit := newTestVisit(oldCode)
	s.Require().NoError(s.store.Create(ctx, visit, nil))

	_, err := s.store.Execute(ctx, visit.ID,
		func(v *models.Visit, _ []*models.VisitorAttachment) error { return nil },
		func(v *models.Visit, _ []*models.VisitorAttachment) {
			v.SetCode(newCode, v.QRExpiresAt, time.Now())
		},
	)
	s.Require().NoError(err)

	_, err = s.store.FindByCode(ctx, oldCode)
	s.ErrorIs(err, sentinel.ErrNotFound)

	found, err := s.store.FindByCode(ctx, newCode)
	s.Require().NoError(err)
	s.Equal(visit.ID, found.ID)
}

// TestListExpirable verifies sweep candidates.
func (s *PostgresStoreSuite) TestListExpirable() {
	ctx := context.Background()
	cutoff := time.Now().UTC()

	stale := newTestVisit("stale-" + id.NewVisitID().String())
	stale.ExpectedStart = cutoff.Add(-2 * time.Hour)
	s.Require().NoError(s.store.Create(ctx, stale, nil))

	upcoming := newTestVisit("soon-" + id.NewVisitID().String())
	upcoming.ExpectedStart = cutoff.Add(time.Hour)
	s.Require().NoError(s.store.Create(ctx, upcoming, nil))

	ids, err := s.store.ListExpirable(ctx, cutoff, 10)
	s.Require().NoError(err)
	s.Equal([]id.VisitID{stale.ID}, ids)
}

// TestProfileUpsert verifies repeat invitations update the same row.
func (s *PostgresStoreSuite) TestProfileUpsert() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	profile := &models.VisitorProfile{
		ID:            id.NewVisitorID(),
		BuildingID:    id.NewBuildingID(),
		OwnerHostID:   id.NewHostID(),
		Name:          "Repeat Guest",
		Phone:         "+15550003333",
		CreatedAt:     now,
		LastInvitedAt: now,
	}

	first, err := s.store.Upsert(ctx, profile)
	s.Require().NoError(err)
	s.Equal(1, first.InviteCount)

	again := *profile
	again.ID = id.NewVisitorID() // conflict resolves on (building, host, phone)
	again.Name = "Repeat Guest Jr"
	second, err := s.store.Upsert(ctx, &again)
	s.Require().NoError(err)
	s.Equal(2, second.InviteCount)
	s.Equal(first.ID, second.ID)
	s.Equal("Repeat Guest Jr", second.Name)

	found, err := s.store.FindByPhone(ctx, profile.BuildingID, profile.OwnerHostID, profile.Phone)
	s.Require().NoError(err)
	s.Equal(2, found.InviteCount)
}
