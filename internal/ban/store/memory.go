package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"passage/internal/ban/models"
	id "passage/pkg/domain"
)

// InMemory implements Store behind one mutex.
type InMemory struct {
	mu   sync.Mutex
	bans map[id.BanID]*models.Ban
}

// NewInMemory constructs an empty in-memory ban store.
func NewInMemory() *InMemory {
	return &InMemory{bans: make(map[id.BanID]*models.Ban)}
}

func (s *InMemory) Create(ctx context.Context, ban *models.Ban) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans[ban.ID] = ban.Clone()
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, banID id.BanID) (*models.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ban, ok := s.bans[banID]
	if !ok {
		return nil, ErrNotFound
	}
	return ban.Clone(), nil
}

func (s *InMemory) FindMatching(ctx context.Context, buildingID id.BuildingID, hostID id.HostID, phones []string) ([]*models.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(phones))
	for _, p := range phones {
		wanted[p] = struct{}{}
	}

	var matches []*models.Ban
	for _, ban := range s.bans {
		if ban.Lifted || ban.BuildingID != buildingID {
			continue
		}
		if _, ok := wanted[ban.Phone]; !ok {
			continue
		}
		if ban.HostID != nil && *ban.HostID != hostID {
			continue
		}
		matches = append(matches, ban.Clone())
	}
	return matches, nil
}

func (s *InMemory) ListByBuilding(ctx context.Context, buildingID id.BuildingID) ([]*models.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Ban
	for _, ban := range s.bans {
		if ban.BuildingID == buildingID {
			result = append(result, ban.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *InMemory) Execute(ctx context.Context, banID id.BanID, validate ValidateFn, mutate MutateFn) (*models.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ban, ok := s.bans[banID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := validate(ban); err != nil {
		return nil, err
	}
	mutate(ban)
	return ban.Clone(), nil
}

func (s *InMemory) ListDue(ctx context.Context, now time.Time, limit int) ([]id.BanID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []id.BanID
	for banID, ban := range s.bans {
		if limit > 0 && len(ids) >= limit {
			break
		}
		if !ban.Lifted && ban.ExpiresAt != nil && !ban.ExpiresAt.After(now) {
			ids = append(ids, banID)
		}
	}
	return ids, nil
}
