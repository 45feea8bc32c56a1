package store

import (
	"context"
	"sync"
	"time"

	"passage/internal/license/models"
	id "passage/pkg/domain"
)

type userKey struct {
	building id.BuildingID
	user     id.UserID
}

// InMemory implements Store behind one mutex. The mutex plays the role of
// the per-building row lock: mutation and recount are one atomic step.
type InMemory struct {
	mu     sync.Mutex
	states map[id.BuildingID]*models.BuildingLicenseState
	users  map[userKey]*models.LicenseUser
}

// NewInMemory constructs an empty in-memory license store.
func NewInMemory() *InMemory {
	return &InMemory{
		states: make(map[id.BuildingID]*models.BuildingLicenseState),
		users:  make(map[userKey]*models.LicenseUser),
	}
}

func (s *InMemory) EnsureBuilding(ctx context.Context, state *models.BuildingLicenseState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.states[state.BuildingID]; ok {
		existing.TotalLicenses = state.TotalLicenses
		existing.UpdatedAt = state.UpdatedAt
		return nil
	}
	c := *state
	s.states[state.BuildingID] = &c
	return nil
}

func (s *InMemory) GetState(ctx context.Context, buildingID id.BuildingID) (*models.BuildingLicenseState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[buildingID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *state
	return &c, nil
}

func (s *InMemory) OnboardUser(ctx context.Context, user *models.LicenseUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[user.BuildingID]
	if !ok {
		return ErrNotFound
	}
	key := userKey{building: user.BuildingID, user: user.UserID}
	if existing, ok := s.users[key]; ok && existing.Active {
		return ErrAlreadyUsed
	}

	c := *user
	c.Active = true
	s.users[key] = &c

	if used := s.recount(user.BuildingID); used > state.TotalLicenses {
		delete(s.users, key)
		return ErrNoLicense
	}
	s.refresh(state, user.OnboardedAt)
	return nil
}

func (s *InMemory) DeactivateUser(ctx context.Context, buildingID id.BuildingID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[buildingID]
	if !ok {
		return ErrNotFound
	}
	key := userKey{building: buildingID, user: userID}
	user, ok := s.users[key]
	if !ok || !user.Active {
		return ErrNotFound
	}

	now := time.Now()
	user.Active = false
	user.DeactivatedAt = &now
	s.refresh(state, now)
	return nil
}

func (s *InMemory) recount(buildingID id.BuildingID) int {
	used := 0
	for key, user := range s.users {
		if key.building == buildingID && user.Active {
			used++
		}
	}
	return used
}

func (s *InMemory) refresh(state *models.BuildingLicenseState, now time.Time) {
	state.UsedLicenses = s.recount(state.BuildingID)
	state.UpdatedAt = now
}
