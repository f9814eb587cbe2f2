// Package models defines the shareable key aggregate: a view-limited
// capability token over a frozen information bundle.
package models

import (
	"strings"
	"time"

	"verikey/internal/bundle"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
)

// DefaultViews is the view budget applied when a caller supplies a
// non-positive value. Deliberately permissive: key creation never fails on
// a bad budget.
const DefaultViews = 2

// UnlimitedViews is the sentinel budget meaning the key never exhausts.
const UnlimitedViews = 999

// KeyStatus is the lifecycle state of a shareable key.
//
// Transitions: active -> viewed_out (automatic on view exhaustion),
// active -> revoked (creator, terminal), active|viewed_out -> removed
// (recipient archival). Nothing leaves revoked. Deletion is row removal
// and only allowed from a non-active status.
type KeyStatus string

const (
	StatusActive    KeyStatus = "active"
	StatusViewedOut KeyStatus = "viewed_out"
	StatusRevoked   KeyStatus = "revoked"
	StatusRemoved   KeyStatus = "removed"
)

var validStatuses = map[KeyStatus]bool{
	StatusActive:    true,
	StatusViewedOut: true,
	StatusRevoked:   true,
	StatusRemoved:   true,
}

// IsValid checks if the status is one of the supported enum values.
func (s KeyStatus) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal reports whether the key may be deleted in this status.
func (s KeyStatus) IsTerminal() bool {
	return s != StatusActive
}

// String returns the string representation of the status.
func (s KeyStatus) String() string {
	return string(s)
}

// ParseKeyStatus constructs a KeyStatus from external input.
func ParseKeyStatus(raw string) (KeyStatus, error) {
	s := KeyStatus(raw)
	if !s.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid key status %q", raw)
	}
	return s, nil
}

// DeriveStatus is the single source of truth for status recomputation:
// revoked and removed are explicit and sticky; otherwise the status follows
// the counters. Every read or write path about to persist a status goes
// through here so counters and status can never drift.
func DeriveStatus(viewsUsed, viewsAllowed int, explicit KeyStatus) KeyStatus {
	if explicit == StatusRevoked || explicit == StatusRemoved {
		return explicit
	}
	if viewsAllowed != UnlimitedViews && viewsUsed >= viewsAllowed {
		return StatusViewedOut
	}
	return StatusActive
}

// Recipient identifies who a key is addressed to: a registered user, a bare
// email not yet registered, or nobody (an open shareable link).
type Recipient struct {
	UserID        id.UserID `json:"user_id,omitempty"`
	Email         string    `json:"email,omitempty"`
	ShareableLink bool      `json:"shareable_link,omitempty"`
}

// IsZero reports a recipient with no addressing information at all.
func (r Recipient) IsZero() bool {
	return r.UserID.IsNil() && r.Email == "" && !r.ShareableLink
}

// ShareableKey is the aggregate. The bundle is immutable after creation;
// ViewsUsed only moves through ApplyView; Status only changes through the
// Apply* transitions.
//
// Invariants:
//   - ViewsUsed never exceeds ViewsAllowed while ViewsAllowed is finite.
//   - Status equals DeriveStatus(ViewsUsed, ViewsAllowed, explicit) at all
//     times; revoked and removed are the only explicit overrides.
//   - RequestID links back to the originating request for fulfilled keys;
//     nil for proactive shares.
type ShareableKey struct {
	ID               id.KeyID       `json:"id"`
	CreatorID        id.UserID      `json:"creator_id"`
	Recipient        Recipient      `json:"recipient"`
	RequestID        *id.RequestID  `json:"request_id,omitempty"`
	Label            string         `json:"label"`
	Notes            string         `json:"notes,omitempty"`
	Bundle           bundle.Bundle  `json:"-"`
	ViewsAllowed     int            `json:"views_allowed"`
	ViewsUsed        int            `json:"views_used"`
	Status           KeyStatus      `json:"status"`
	RevocationReason string         `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"-"`
	LastViewedAt     *time.Time     `json:"last_viewed_at,omitempty"`
}

// NewShareableKey constructs an active key with zero views used. The label
// must already be validated; a non-positive views budget falls back to
// DefaultViews.
func NewShareableKey(keyID id.KeyID, creatorID id.UserID, recipient Recipient, label string, b bundle.Bundle, viewsAllowed int, now time.Time) (*ShareableKey, error) {
	if keyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "key id cannot be nil")
	}
	if creatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "key creator cannot be nil")
	}
	if recipient.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "key recipient cannot be empty")
	}
	if recipient.UserID == creatorID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "key cannot be addressed to its creator")
	}
	if label == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "key label cannot be empty")
	}
	if b.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "key bundle cannot be empty")
	}
	if viewsAllowed <= 0 {
		viewsAllowed = DefaultViews
	}

	return &ShareableKey{
		ID:           keyID,
		CreatorID:    creatorID,
		Recipient:    recipient,
		Label:        label,
		Bundle:       b,
		ViewsAllowed: viewsAllowed,
		ViewsUsed:    0,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsUnlimited reports whether the key carries the unlimited-views sentinel.
func (k *ShareableKey) IsUnlimited() bool {
	return k.ViewsAllowed == UnlimitedViews
}

// ViewsRemaining returns the remaining budget; unlimited keys report the
// sentinel untouched.
func (k *ShareableKey) ViewsRemaining() int {
	if k.IsUnlimited() {
		return UnlimitedViews
	}
	remaining := k.ViewsAllowed - k.ViewsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanView checks that the key is active with budget remaining. The budget
// check is redundant for a consistent key (an exhausted key is already
// viewed_out) but guards against rows written by a non-atomic past.
func (k *ShareableKey) CanView() error {
	if k.Status != StatusActive {
		return dErrors.Newf(dErrors.CodeConflict, "key is %s", k.Status)
	}
	if !k.IsUnlimited() && k.ViewsUsed >= k.ViewsAllowed {
		return dErrors.New(dErrors.CodeConflict, "key is viewed_out")
	}
	return nil
}

// ApplyView consumes one view and flips the status to viewed_out when the
// budget is exhausted. Call CanView first.
func (k *ShareableKey) ApplyView(now time.Time) {
	k.ViewsUsed++
	k.Status = DeriveStatus(k.ViewsUsed, k.ViewsAllowed, k.Status)
	k.LastViewedAt = &now
	k.UpdatedAt = now
}

// CanRevoke checks that the key is still active.
// Use with ApplyRevoke in Execute callbacks.
func (k *ShareableKey) CanRevoke() error {
	if k.Status != StatusActive {
		return dErrors.Newf(dErrors.CodeConflict, "cannot revoke a %s key", k.Status)
	}
	return nil
}

// ApplyRevoke terminates the key regardless of remaining budget.
func (k *ShareableKey) ApplyRevoke(reason string, now time.Time) {
	k.Status = StatusRevoked
	k.RevocationReason = reason
	k.UpdatedAt = now
}

// CanRemove checks that the recipient may archive the key. Removal is a
// visibility operation, so a viewed_out key can be removed too; a revoked
// key cannot change state again.
func (k *ShareableKey) CanRemove() error {
	switch k.Status {
	case StatusActive, StatusViewedOut:
		return nil
	case StatusRemoved:
		return dErrors.New(dErrors.CodeConflict, "key is already removed")
	default:
		return dErrors.Newf(dErrors.CodeConflict, "cannot remove a %s key", k.Status)
	}
}

// ApplyRemove archives the key from the recipient's listing.
func (k *ShareableKey) ApplyRemove(now time.Time) {
	k.Status = StatusRemoved
	k.UpdatedAt = now
}

// CanDelete checks that the key has left the active state. Active keys must
// be revoked before deletion so access termination is always an explicit,
// audited step.
func (k *ShareableKey) CanDelete() error {
	if !k.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeConflict, "cannot delete an active key, revoke it first")
	}
	return nil
}

// Role is a caller's relationship to a key.
type Role int

const (
	RoleNone Role = iota
	RoleCreator
	RoleRecipient
)

// RoleOf derives the caller's role from the key's addressing. Recipient
// matching checks the bound user id first, then the bound email
// (case-insensitively, for keys addressed before the target registered).
// Open shareable-link keys treat any caller except the creator as a
// recipient.
func (k *ShareableKey) RoleOf(userID id.UserID, userEmail string) Role {
	if userID == k.CreatorID {
		return RoleCreator
	}
	if !k.Recipient.UserID.IsNil() && k.Recipient.UserID == userID {
		return RoleRecipient
	}
	if k.Recipient.Email != "" && userEmail != "" && strings.EqualFold(k.Recipient.Email, userEmail) {
		return RoleRecipient
	}
	if k.Recipient.ShareableLink {
		return RoleRecipient
	}
	return RoleNone
}
