package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"passage/internal/visit/models"
	id "passage/pkg/domain"
)

// InMemory implements Store and ProfileStore behind one mutex. Development
// and unit-test backend; the lock held across Execute's validate+mutate is
// the memory equivalent of the Postgres row lock.
type InMemory struct {
	mu          sync.Mutex
	visits      map[id.VisitID]*models.Visit
	byCode      map[string]id.VisitID
	attachments map[id.VisitID][]*models.VisitorAttachment
	profiles    map[profileKey]*models.VisitorProfile
}

type profileKey struct {
	building id.BuildingID
	host     id.HostID
	phone    string
}

// NewInMemory constructs an empty in-memory visit store.
func NewInMemory() *InMemory {
	return &InMemory{
		visits:      make(map[id.VisitID]*models.Visit),
		byCode:      make(map[string]id.VisitID),
		attachments: make(map[id.VisitID][]*models.VisitorAttachment),
		profiles:    make(map[profileKey]*models.VisitorProfile),
	}
}

func (s *InMemory) Create(ctx context.Context, visit *models.Visit, attachments []*models.VisitorAttachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.visits[visit.ID]; exists {
		return ErrCodeTaken
	}
	if visit.QRCode != "" {
		if _, taken := s.byCode[visit.QRCode]; taken {
			return ErrCodeTaken
		}
	}

	s.visits[visit.ID] = visit.Clone()
	if visit.QRCode != "" {
		s.byCode[visit.QRCode] = visit.ID
	}
	copies := make([]*models.VisitorAttachment, 0, len(attachments))
	for _, a := range attachments {
		c := *a
		copies = append(copies, &c)
	}
	s.attachments[visit.ID] = copies
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, visitID id.VisitID) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	visit, ok := s.visits[visitID]
	if !ok {
		return nil, ErrNotFound
	}
	return visit.Clone(), nil
}

func (s *InMemory) FindByCode(ctx context.Context, code string) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	visitID, ok := s.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return s.visits[visitID].Clone(), nil
}

func (s *InMemory) Attachments(ctx context.Context, visitID id.VisitID) ([]*models.VisitorAttachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visits[visitID]; !ok {
		return nil, ErrNotFound
	}
	return cloneAttachments(s.attachments[visitID]), nil
}

func (s *InMemory) ListByHost(ctx context.Context, hostID id.HostID) ([]*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Visit
	for _, visit := range s.visits {
		if visit.HostID == hostID {
			result = append(result, visit.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *InMemory) Execute(ctx context.Context, visitID id.VisitID, validate ValidateFn, mutate MutateFn) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	visit, ok := s.visits[visitID]
	if !ok {
		return nil, ErrNotFound
	}
	attachments := s.attachments[visitID]

	if err := validate(visit, attachments); err != nil {
		return nil, err
	}

	oldCode := visit.QRCode
	mutate(visit, attachments)
	if visit.QRCode != oldCode {
		delete(s.byCode, oldCode)
		if visit.QRCode != "" {
			s.byCode[visit.QRCode] = visit.ID
		}
	}
	return visit.Clone(), nil
}

func (s *InMemory) ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]id.VisitID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []id.VisitID
	for visitID, visit := range s.visits {
		if limit > 0 && len(ids) >= limit {
			break
		}
		switch visit.Status {
		case models.VisitStatusPending, models.VisitStatusConfirmed:
			if !visit.Entry && visit.ExpectedStart.Before(cutoff) {
				ids = append(ids, visitID)
			}
		}
	}
	return ids, nil
}

func (s *InMemory) Upsert(ctx context.Context, profile *models.VisitorProfile) (*models.VisitorProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := profileKey{
		building: profile.BuildingID,
		host:     profile.OwnerHostID,
		phone:    strings.TrimSpace(profile.Phone),
	}
	if existing, ok := s.profiles[key]; ok {
		existing.Name = profile.Name
		if profile.Email != "" {
			existing.Email = profile.Email
		}
		existing.LastInvitedAt = profile.LastInvitedAt
		existing.InviteCount++
		c := *existing
		return &c, nil
	}

	c := *profile
	c.InviteCount = 1
	s.profiles[key] = &c
	out := c
	return &out, nil
}

func (s *InMemory) FindByPhone(ctx context.Context, buildingID id.BuildingID, hostID id.HostID, phone string) (*models.VisitorProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[profileKey{building: buildingID, host: hostID, phone: strings.TrimSpace(phone)}]
	if !ok {
		return nil, ErrNotFound
	}
	c := *profile
	return &c, nil
}

func cloneAttachments(attachments []*models.VisitorAttachment) []*models.VisitorAttachment {
	copies := make([]*models.VisitorAttachment, 0, len(attachments))
	for _, a := range attachments {
		c := *a
		copies = append(copies, &c)
	}
	return copies
}
