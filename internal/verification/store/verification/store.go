// Package verification persists government-ID verification records. Two
// implementations share one contract: an in-memory store for unit tests and
// a PostgreSQL store for production.
package verification

import (
	"time"

	"verikey/internal/verification/models"
)

// copyVerification returns a deep copy so callers can never mutate store
// state through a returned pointer.
func copyVerification(v *models.Verification) *models.Verification {
	cp := *v
	cp.Manual.DateOfBirth = copyTime(v.Manual.DateOfBirth)
	cp.ReviewedAt = copyTime(v.ReviewedAt)
	cp.ExpiresAt = copyTime(v.ExpiresAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
