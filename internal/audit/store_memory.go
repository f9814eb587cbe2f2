package audit

import (
	"context"
	"sync"

	id "verikey/pkg/domain"
)

// InMemoryStore keeps events in a slice for tests and local runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByActor(_ context.Context, actorID id.UserID, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actor := actorID.String()
	var out []Event
	// Newest first, matching the PostgreSQL store's ordering.
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].ActorID == actor {
			out = append(out, s.events[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Events returns a snapshot of everything appended, newest last.
func (s *InMemoryStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
