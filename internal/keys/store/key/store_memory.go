package key

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"verikey/internal/keys/models"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
)

// InMemoryStore keeps keys in a map guarded by a mutex. The mutex makes
// RecordView's check-increment-writeback atomic, mirroring the conditional
// UPDATE the PostgreSQL store relies on, so the concurrency assertions hold
// against both implementations.
type InMemoryStore struct {
	mu   sync.Mutex
	keys map[id.KeyID]*models.ShareableKey
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{keys: make(map[id.KeyID]*models.ShareableKey)}
}

func (s *InMemoryStore) Create(_ context.Context, k *models.ShareableKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[k.ID]; exists {
		return sentinel.ErrConflict
	}
	s.keys[k.ID] = copyKey(k)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, keyID id.KeyID) (*models.ShareableKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[keyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyKey(k), nil
}

// RecordView atomically consumes one view. Exactly one of N concurrent
// callers wins the last remaining view; the rest observe ErrInvalidState.
func (s *InMemoryStore) RecordView(_ context.Context, keyID id.KeyID, now time.Time) (*models.ShareableKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[keyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if k.CanView() != nil {
		return nil, sentinel.ErrInvalidState
	}
	k.ApplyView(now)
	return copyKey(k), nil
}

// Execute runs a validate-then-mutate cycle on one key under the store lock.
func (s *InMemoryStore) Execute(_ context.Context, keyID id.KeyID, validate func(*models.ShareableKey) error, mutate func(*models.ShareableKey)) (*models.ShareableKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[keyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(k); err != nil {
		return nil, err
	}
	mutate(k)
	return copyKey(k), nil
}

func (s *InMemoryStore) Delete(_ context.Context, keyID id.KeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[keyID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.keys, keyID)
	return nil
}

func (s *InMemoryStore) ListByCreator(_ context.Context, creatorID id.UserID, status models.KeyStatus) ([]*models.ShareableKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ShareableKey
	for _, k := range s.keys {
		if k.CreatorID != creatorID {
			continue
		}
		if status != "" && k.Status != status {
			continue
		}
		out = append(out, copyKey(k))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) ListByRecipient(_ context.Context, userID id.UserID, email string, includeRemoved bool) ([]*models.ShareableKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ShareableKey
	for _, k := range s.keys {
		if !recipientMatches(k, userID, email) {
			continue
		}
		if !includeRemoved && k.Status == models.StatusRemoved {
			continue
		}
		out = append(out, copyKey(k))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) CountNewForRecipient(_ context.Context, userID id.UserID, email string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, k := range s.keys {
		if recipientMatches(k, userID, email) && k.Status == models.StatusActive && k.ViewsUsed == 0 {
			count++
		}
	}
	return count, nil
}

// SweepExhausted force-transitions every active key whose counters say it
// is spent. Idempotent: a second sweep finds nothing to do.
func (s *InMemoryStore) SweepExhausted(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for _, k := range s.keys {
		if k.Status != models.StatusActive {
			continue
		}
		if derived := models.DeriveStatus(k.ViewsUsed, k.ViewsAllowed, k.Status); derived == models.StatusViewedOut {
			k.Status = models.StatusViewedOut
			k.UpdatedAt = now
			swept++
		}
	}
	return swept, nil
}

func (s *InMemoryStore) RevokeAllByCreator(_ context.Context, creatorID id.UserID, reason string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for _, k := range s.keys {
		if k.CreatorID == creatorID && k.Status == models.StatusActive {
			k.ApplyRevoke(reason, now)
			revoked++
		}
	}
	return revoked, nil
}

func (s *InMemoryStore) PurgeUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for keyID, k := range s.keys {
		if k.CreatorID == userID || k.Recipient.UserID == userID {
			delete(s.keys, keyID)
			purged++
		}
	}
	return purged, nil
}

func recipientMatches(k *models.ShareableKey, userID id.UserID, email string) bool {
	if !k.Recipient.UserID.IsNil() && k.Recipient.UserID == userID {
		return true
	}
	if k.Recipient.Email != "" && email != "" && strings.EqualFold(k.Recipient.Email, email) {
		return true
	}
	return false
}

func sortNewestFirst(keys []*models.ShareableKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].ID.String() < keys[j].ID.String()
		}
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
}
