// Package key persists shareable keys. Two implementations share one
// contract: an in-memory store for unit tests and a PostgreSQL store for
// production.
//
// The store owns the concurrency-critical part of view accounting: RecordView
// is a single conditional mutation that can never push views_used past
// views_allowed, whatever the caller interleaving. Both implementations
// uphold the same guarantee so the service suites assert identical behavior
// against either.
package key

import (
	"time"

	"verikey/internal/keys/models"
)

// copyKey returns a deep copy so callers can never mutate store state
// through a returned pointer. The bundle's entry map is shared — entries are
// immutable after creation, so sharing is safe.
func copyKey(k *models.ShareableKey) *models.ShareableKey {
	cp := *k
	cp.LastViewedAt = copyTime(k.LastViewedAt)
	if k.RequestID != nil {
		rid := *k.RequestID
		cp.RequestID = &rid
	}
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
