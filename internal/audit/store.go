package audit

import (
	"context"
	"sync"

	id "passage/pkg/domain"
)

// Store is an append-only sink for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByVisit(ctx context.Context, visitID id.VisitID) ([]Event, error)
	ListByCategory(ctx context.Context, category Category, limit int) ([]Event, error)
}

// InMemory keeps events in order of arrival. Development and test sink.
type InMemory struct {
	mu     sync.Mutex
	events []Event
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemory) ListByVisit(ctx context.Context, visitID id.VisitID) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Event
	for _, e := range s.events {
		if e.VisitID != nil && *e.VisitID == visitID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *InMemory) ListByCategory(ctx context.Context, category Category, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		if s.events[i].Category == category {
			result = append(result, s.events[i])
		}
	}
	return result, nil
}

// All returns every recorded event. Test helper.
func (s *InMemory) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
