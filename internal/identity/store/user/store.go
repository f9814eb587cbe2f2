// Package user persists accounts. Two implementations share one contract:
// an in-memory store for unit tests and a PostgreSQL store for production.
//
// Uniqueness of email and screen name is case-insensitive and scoped to
// active users only, so anonymized accounts release their identifiers.
// Both implementations report violations through ErrEmailTaken and
// ErrScreenNameTaken, which wrap sentinel.ErrConflict.
package user

import (
	"fmt"
	"time"

	"verikey/internal/identity/models"
	"verikey/pkg/platform/sentinel"
)

var (
	// ErrEmailTaken signals the active-user email uniqueness constraint.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", sentinel.ErrConflict)
	// ErrScreenNameTaken signals the active-user screen name uniqueness constraint.
	ErrScreenNameTaken = fmt.Errorf("%w: screen name already taken", sentinel.ErrConflict)
)

// copyUser returns a deep copy so callers can never mutate store state
// through a returned pointer.
func copyUser(u *models.User) *models.User {
	cp := *u
	cp.DateOfBirth = copyTime(u.DateOfBirth)
	cp.VerifiedDateOfBirth = copyTime(u.VerifiedDateOfBirth)
	cp.VerifiedAt = copyTime(u.VerifiedAt)
	cp.LastScreenNameChange = copyTime(u.LastScreenNameChange)
	cp.DeletedAt = copyTime(u.DeletedAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
