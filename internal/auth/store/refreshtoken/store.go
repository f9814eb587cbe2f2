// Package refreshtoken persists refresh tokens. Two implementations share
// one contract: an in-memory store for unit tests and a PostgreSQL store
// for production.
package refreshtoken

import "verikey/internal/auth/models"

// copyToken returns a copy so callers can never mutate store state through
// a returned pointer.
func copyToken(t *models.RefreshToken) *models.RefreshToken {
	cp := *t
	return &cp
}
