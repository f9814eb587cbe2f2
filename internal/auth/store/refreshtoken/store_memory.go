package refreshtoken

import (
	"context"
	"sync"
	"time"

	"verikey/internal/auth/models"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
)

// InMemoryStore keeps refresh tokens in a map guarded by a mutex.
type InMemoryStore struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*models.RefreshToken)}
}

func (s *InMemoryStore) Create(_ context.Context, t *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.Token]; exists {
		return sentinel.ErrConflict
	}
	s.tokens[t.Token] = copyToken(t)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, token string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyToken(t), nil
}

// Revoke marks one token unusable. Revoking an already revoked token
// reports ErrInvalidState so rotation can detect replay.
func (s *InMemoryStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return sentinel.ErrNotFound
	}
	if t.Revoked {
		return sentinel.ErrInvalidState
	}
	t.Revoked = true
	return nil
}

func (s *InMemoryStore) RevokeAllForUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for _, t := range s.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			revoked++
		}
	}
	return revoked, nil
}

func (s *InMemoryStore) PurgeUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for token, t := range s.tokens {
		if t.UserID == userID {
			delete(s.tokens, token)
			purged++
		}
	}
	return purged, nil
}

// DeleteExpired drops tokens past their expiry. Housekeeping, not
// correctness: expired tokens are already rejected on use.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for token, t := range s.tokens {
		if t.IsExpired(now) {
			delete(s.tokens, token)
			deleted++
		}
	}
	return deleted, nil
}
