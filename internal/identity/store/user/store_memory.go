package user

import (
	"context"
	"sort"
	"strings"
	"sync"

	"verikey/internal/identity/models"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
)

// InMemoryStore keeps users in a map guarded by a RWMutex. It mirrors the
// PostgreSQL store's uniqueness semantics so service tests exercise the same
// failure paths.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*models.User
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[id.UserID]*models.User)}
}

func (s *InMemoryStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return sentinel.ErrConflict
	}
	if err := s.checkUnique(u); err != nil {
		return err
	}
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *InMemoryStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(email)
	for _, u := range s.users {
		if u.IsActive && strings.ToLower(u.Email) == lowered {
			return copyUser(u), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) GetByScreenName(_ context.Context, screenName string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(screenName)
	for _, u := range s.users {
		if u.IsActive && strings.ToLower(u.ScreenName) == lowered {
			return copyUser(u), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if err := s.checkUnique(u); err != nil {
		return err
	}
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.users, userID)
	return nil
}

// Execute runs a validate-then-mutate cycle on one user while holding the
// store lock, so no concurrent write can interleave between the check and
// the update. Uniqueness is re-checked after mutation.
func (s *InMemoryStore) Execute(_ context.Context, userID id.UserID, validate func(*models.User) error, mutate func(*models.User)) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	work := copyUser(current)
	if err := validate(work); err != nil {
		return nil, err
	}
	mutate(work)
	if err := s.checkUnique(work); err != nil {
		return nil, err
	}
	s.users[userID] = copyUser(work)
	return work, nil
}

func (s *InMemoryStore) SearchByScreenNamePrefix(_ context.Context, prefix string, limit int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(prefix)
	matches := make([]*models.User, 0, limit)
	for _, u := range s.users {
		if u.IsActive && strings.HasPrefix(strings.ToLower(u.ScreenName), lowered) {
			matches = append(matches, copyUser(u))
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ScreenName < matches[j].ScreenName })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// checkUnique enforces the active-user uniqueness rules, skipping the row
// being updated.
func (s *InMemoryStore) checkUnique(candidate *models.User) error {
	if !candidate.IsActive {
		return nil
	}
	email := strings.ToLower(candidate.Email)
	screen := strings.ToLower(candidate.ScreenName)
	for _, u := range s.users {
		if u.ID == candidate.ID || !u.IsActive {
			continue
		}
		if strings.ToLower(u.Email) == email {
			return ErrEmailTaken
		}
		if strings.ToLower(u.ScreenName) == screen {
			return ErrScreenNameTaken
		}
	}
	return nil
}
