// Package models defines the information request aggregate: a solicitation
// from one user to another for specific information categories.
package models

import (
	"strings"
	"time"

	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
)

// RequestStatus is the lifecycle state of a request.
//
// Transitions: pending -> completed (target answers), pending -> denied
// (target refuses), pending -> cancelled (either party withdraws). All
// three outcomes are terminal.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusCompleted RequestStatus = "completed"
	StatusDenied    RequestStatus = "denied"
	StatusCancelled RequestStatus = "cancelled"
)

var validStatuses = map[RequestStatus]bool{
	StatusPending:   true,
	StatusCompleted: true,
	StatusDenied:    true,
	StatusCancelled: true,
}

// IsValid checks if the status is one of the supported enum values.
func (s RequestStatus) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal reports whether the request has reached an outcome.
func (s RequestStatus) IsTerminal() bool {
	return s != StatusPending
}

// String returns the string representation of the status.
func (s RequestStatus) String() string {
	return string(s)
}

// ParseRequestStatus constructs a RequestStatus from external input.
func ParseRequestStatus(raw string) (RequestStatus, error) {
	s := RequestStatus(raw)
	if !s.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid request status %q", raw)
	}
	return s, nil
}

// Target identifies who a request is addressed to: a registered user, or a
// bare email for a target not yet registered. The email is kept even for
// registered targets so the request stays addressable if the account is
// later anonymized.
type Target struct {
	UserID id.UserID `json:"user_id,omitempty"`
	Email  string    `json:"email,omitempty"`
}

// IsZero reports a target with no addressing information.
func (t Target) IsZero() bool {
	return t.UserID.IsNil() && t.Email == ""
}

// Request is the aggregate.
//
// Invariants:
//   - Categories is non-empty, valid, and never contains both fullname and
//     firstname (enforced upstream by ParseCategorySet; the constructor
//     re-checks emptiness only).
//   - Label and Target are immutable through status transitions; label,
//     notes and categories mutate only while pending, only by the requester.
//   - ResponseAt is set exactly when the request leaves pending through
//     deny or fulfill.
type Request struct {
	ID          id.RequestID             `json:"id"`
	RequesterID id.UserID                `json:"requester_id"`
	Target      Target                   `json:"target"`
	Label       string                   `json:"label"`
	Notes       string                   `json:"notes,omitempty"`
	Categories  []id.InformationCategory `json:"categories"`
	Status      RequestStatus            `json:"status"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"-"`
	ResponseAt  *time.Time               `json:"response_at,omitempty"`
}

// NewRequest constructs a pending request. Label and categories must
// already be in canonical validated form.
func NewRequest(requestID id.RequestID, requesterID id.UserID, target Target, label, notes string, categories []id.InformationCategory, now time.Time) (*Request, error) {
	if requestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request id cannot be nil")
	}
	if requesterID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request requester cannot be nil")
	}
	if target.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request target cannot be empty")
	}
	if target.UserID == requesterID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request cannot target its requester")
	}
	if label == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request label cannot be empty")
	}
	if len(categories) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request categories cannot be empty")
	}

	return &Request{
		ID:          requestID,
		RequesterID: requesterID,
		Target:      target,
		Label:       label,
		Notes:       notes,
		Categories:  categories,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsRequester reports whether the actor created this request.
func (r *Request) IsRequester(userID id.UserID) bool {
	return r.RequesterID == userID
}

// IsTarget reports whether the actor is the request's target, matching the
// bound user id first and the addressed email second.
func (r *Request) IsTarget(userID id.UserID, userEmail string) bool {
	if !r.Target.UserID.IsNil() && r.Target.UserID == userID {
		return true
	}
	return r.Target.Email != "" && userEmail != "" && strings.EqualFold(r.Target.Email, userEmail)
}

// IsParticipant reports whether the actor is on either side of the request.
func (r *Request) IsParticipant(userID id.UserID, userEmail string) bool {
	return r.IsRequester(userID) || r.IsTarget(userID, userEmail)
}

// CanDeny checks that the actor is the target and the request is pending.
// Use with ApplyDeny in Execute callbacks.
func (r *Request) CanDeny(userID id.UserID, userEmail string) error {
	if !r.IsTarget(userID, userEmail) {
		return dErrors.New(dErrors.CodeForbidden, "only the target can deny a request")
	}
	return r.requirePending("deny")
}

// ApplyDeny settles the request as refused.
func (r *Request) ApplyDeny(now time.Time) {
	r.Status = StatusDenied
	r.ResponseAt = &now
	r.UpdatedAt = now
}

// CanCancel checks that the actor is a participant and the request is
// pending. Either side may withdraw.
func (r *Request) CanCancel(userID id.UserID, userEmail string) error {
	if !r.IsParticipant(userID, userEmail) {
		return dErrors.New(dErrors.CodeForbidden, "only a participant can cancel a request")
	}
	return r.requirePending("cancel")
}

// ApplyCancel withdraws the request.
func (r *Request) ApplyCancel(now time.Time) {
	r.Status = StatusCancelled
	r.UpdatedAt = now
}

// CanUpdate checks that the actor is the requester and the request is
// still pending.
func (r *Request) CanUpdate(userID id.UserID) error {
	if !r.IsRequester(userID) {
		return dErrors.New(dErrors.CodeForbidden, "only the requester can update a request")
	}
	return r.requirePending("update")
}

// ApplyUpdate replaces the mutable fields. Values must already be in
// canonical validated form; nil/empty means keep.
func (r *Request) ApplyUpdate(label, notes *string, categories []id.InformationCategory, now time.Time) {
	if label != nil {
		r.Label = *label
	}
	if notes != nil {
		r.Notes = *notes
	}
	if len(categories) > 0 {
		r.Categories = categories
	}
	r.UpdatedAt = now
}

// CanFulfill checks that the actor is the target and the request is
// pending. Use with ApplyFulfill inside the fulfillment transaction.
func (r *Request) CanFulfill(userID id.UserID, userEmail string) error {
	if !r.IsTarget(userID, userEmail) {
		return dErrors.New(dErrors.CodeForbidden, "only the target can fulfill a request")
	}
	return r.requirePending("fulfill")
}

// ApplyFulfill settles the request as answered.
func (r *Request) ApplyFulfill(now time.Time) {
	r.Status = StatusCompleted
	r.ResponseAt = &now
	r.UpdatedAt = now
}

func (r *Request) requirePending(op string) error {
	if r.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeConflict, "cannot %s a %s request", op, r.Status)
	}
	return nil
}
