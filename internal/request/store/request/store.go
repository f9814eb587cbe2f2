// Package request persists information requests. Two implementations share
// one contract: an in-memory store for unit tests and a PostgreSQL store
// for production.
//
// Duplicate-pending suppression is a service-level rule; the store only
// provides the existence probe (HasPendingDuplicate) with the canonical
// matching order: bound user id first, normalized email second.
package request

import (
	"time"

	"verikey/internal/request/models"
	id "verikey/pkg/domain"
)

// copyRequest returns a deep copy so callers can never mutate store state
// through a returned pointer.
func copyRequest(r *models.Request) *models.Request {
	cp := *r
	cp.Categories = make([]id.InformationCategory, len(r.Categories))
	copy(cp.Categories, r.Categories)
	cp.ResponseAt = copyTime(r.ResponseAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
