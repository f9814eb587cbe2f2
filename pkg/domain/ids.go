// Package domain holds the typed identifiers and shared enums used across
// services and stores. IDs are distinct types over uuid.UUID so a key id can
// never be passed where a user id is expected.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "verikey/pkg/domain-errors"
)

type (
	// UserID identifies a user account.
	UserID uuid.UUID
	// RequestID identifies an information request (solicitation).
	RequestID uuid.UUID
	// KeyID identifies a shareable key.
	KeyID uuid.UUID
	// VerificationID identifies a government-ID verification record.
	VerificationID uuid.UUID
	// TokenID identifies an issued access token (the jti claim).
	TokenID uuid.UUID
)

func (i UserID) String() string         { return uuid.UUID(i).String() }
func (i RequestID) String() string      { return uuid.UUID(i).String() }
func (i KeyID) String() string          { return uuid.UUID(i).String() }
func (i VerificationID) String() string { return uuid.UUID(i).String() }
func (i TokenID) String() string        { return uuid.UUID(i).String() }

func (i UserID) IsNil() bool         { return uuid.UUID(i) == uuid.Nil }
func (i RequestID) IsNil() bool      { return uuid.UUID(i) == uuid.Nil }
func (i KeyID) IsNil() bool          { return uuid.UUID(i) == uuid.Nil }
func (i VerificationID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }
func (i TokenID) IsNil() bool        { return uuid.UUID(i) == uuid.Nil }

// NewUserID mints a random user id.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewRequestID mints a random request id.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// NewKeyID mints a random key id. Key ids double as the opaque capability
// token, so they must never be sequential or guessable.
func NewKeyID() KeyID { return KeyID(uuid.New()) }

// NewVerificationID mints a random verification id.
func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }

// NewTokenID mints a random token id.
func NewTokenID() TokenID { return TokenID(uuid.New()) }

// ParseUserID parses and validates a user id from untrusted input.
func ParseUserID(raw string) (UserID, error) {
	u, err := parseUUID(raw, "user")
	return UserID(u), err
}

// ParseRequestID parses and validates a request id from untrusted input.
func ParseRequestID(raw string) (RequestID, error) {
	u, err := parseUUID(raw, "request")
	return RequestID(u), err
}

// ParseKeyID parses and validates a key id from untrusted input.
func ParseKeyID(raw string) (KeyID, error) {
	u, err := parseUUID(raw, "key")
	return KeyID(u), err
}

// ParseVerificationID parses and validates a verification id from untrusted input.
func ParseVerificationID(raw string) (VerificationID, error) {
	u, err := parseUUID(raw, "verification")
	return VerificationID(u), err
}

// ParseTokenID parses and validates a token id from untrusted input.
func ParseTokenID(raw string) (TokenID, error) {
	u, err := parseUUID(raw, "token")
	return TokenID(u), err
}

// parseUUID enforces the shared invariant: ids must be valid, non-empty,
// non-nil UUIDs. All Parse* functions funnel through here so every id type
// rejects the same inputs.
func parseUUID(raw, kind string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is required", kind)
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s id", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id must not be nil", kind)
	}
	return u, nil
}
