package verification

import (
	"context"
	"sync"

	"verikey/internal/verification/models"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
)

// InMemoryStore keeps verification records in a map guarded by a mutex,
// mirroring the PostgreSQL store's semantics so service tests exercise the
// same paths.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[id.VerificationID]*models.Verification
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.VerificationID]*models.Verification)}
}

func (s *InMemoryStore) Create(_ context.Context, v *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[v.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[v.ID] = copyVerification(v)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, verificationID id.VerificationID) (*models.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.records[verificationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyVerification(v), nil
}

// GetLatestByUser returns the user's most recent submission.
func (s *InMemoryStore) GetLatestByUser(_ context.Context, userID id.UserID) (*models.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.Verification
	for _, v := range s.records {
		if v.UserID != userID {
			continue
		}
		if latest == nil || v.SubmittedAt.After(latest.SubmittedAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return copyVerification(latest), nil
}

// HasOpenOrApproved probes for a record that blocks a new submission.
func (s *InMemoryStore) HasOpenOrApproved(_ context.Context, userID id.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.records {
		if v.UserID != userID {
			continue
		}
		if v.Status.IsOpen() || v.Status == models.StatusApproved {
			return true, nil
		}
	}
	return false, nil
}

// Execute runs a validate-then-mutate cycle on one record under the store
// lock.
func (s *InMemoryStore) Execute(_ context.Context, verificationID id.VerificationID, validate func(*models.Verification) error, mutate func(*models.Verification)) (*models.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.records[verificationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(v); err != nil {
		return nil, err
	}
	mutate(v)
	return copyVerification(v), nil
}

func (s *InMemoryStore) PurgeUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for verificationID, v := range s.records {
		if v.UserID == userID {
			delete(s.records, verificationID)
			purged++
		}
	}
	return purged, nil
}
