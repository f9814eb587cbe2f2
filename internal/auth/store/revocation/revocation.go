// Package revocation implements the token revocation list: jti-keyed
// entries with a TTL matching the access token lifetime, so the list stays
// bounded without a reaper. Redis backs production; PostgreSQL serves
// single-node deployments without Redis; the in-memory list backs tests.
package revocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
)

// List is the revocation contract. Revoke entries outlive the token they
// block; IsTokenRevoked is on the hot path of every authenticated request.
type List interface {
	Revoke(ctx context.Context, tokenID id.TokenID, userID id.UserID, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID id.TokenID) (bool, error)
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}

// InMemoryList keeps revocations in a map guarded by a mutex. Entries are
// dropped lazily on read once expired.
type InMemoryList struct {
	mu      sync.Mutex
	entries map[id.TokenID]time.Time
	clock   func() time.Time
}

func NewInMemoryList() *InMemoryList {
	return &InMemoryList{
		entries: make(map[id.TokenID]time.Time),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the list's clock for tests.
func (l *InMemoryList) WithClock(clock func() time.Time) *InMemoryList {
	l.clock = clock
	return l
}

func (l *InMemoryList) Revoke(_ context.Context, tokenID id.TokenID, _ id.UserID, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[tokenID] = l.clock().Add(ttl)
	return nil
}

func (l *InMemoryList) IsTokenRevoked(_ context.Context, tokenID id.TokenID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expiresAt, ok := l.entries[tokenID]
	if !ok {
		return false, nil
	}
	if l.clock().After(expiresAt) {
		delete(l.entries, tokenID)
		return false, nil
	}
	return true, nil
}
