package request

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"verikey/internal/request/models"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
)

// InMemoryStore keeps requests in a map guarded by a mutex, mirroring the
// PostgreSQL store's semantics so service tests exercise the same paths.
type InMemoryStore struct {
	mu       sync.Mutex
	requests map[id.RequestID]*models.Request
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[id.RequestID]*models.Request)}
}

func (s *InMemoryStore) Create(_ context.Context, r *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[r.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[r.ID] = copyRequest(r)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRequest(r), nil
}

// Execute runs a validate-then-mutate cycle on one request under the store
// lock.
func (s *InMemoryStore) Execute(_ context.Context, requestID id.RequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(r); err != nil {
		return nil, err
	}
	mutate(r)
	return copyRequest(r), nil
}

// HasPendingDuplicate probes for an open request from the same requester to
// the same target: matched on the bound user id when one exists, else on
// the normalized email.
func (s *InMemoryStore) HasPendingDuplicate(_ context.Context, requesterID id.UserID, target models.Target) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.requests {
		if r.RequesterID != requesterID || r.Status != models.StatusPending {
			continue
		}
		if !target.UserID.IsNil() && r.Target.UserID == target.UserID {
			return true, nil
		}
		if target.UserID.IsNil() && r.Target.Email != "" && strings.EqualFold(r.Target.Email, target.Email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListByRequester(_ context.Context, requesterID id.UserID) ([]*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Request
	for _, r := range s.requests {
		if r.RequesterID == requesterID {
			out = append(out, copyRequest(r))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) ListForTarget(_ context.Context, userID id.UserID, email string) ([]*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Request
	for _, r := range s.requests {
		if r.IsTarget(userID, email) {
			out = append(out, copyRequest(r))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) CancelAllForUser(_ context.Context, userID id.UserID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for _, r := range s.requests {
		if r.Status != models.StatusPending {
			continue
		}
		if r.RequesterID == userID || r.Target.UserID == userID {
			r.ApplyCancel(now)
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *InMemoryStore) PurgeUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for requestID, r := range s.requests {
		if r.RequesterID == userID || r.Target.UserID == userID {
			delete(s.requests, requestID)
			purged++
		}
	}
	return purged, nil
}

func sortNewestFirst(requests []*models.Request) {
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID.String() < requests[j].ID.String()
		}
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
}
