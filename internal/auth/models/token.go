// Package models defines the refresh token: the long-lived opaque
// credential a client exchanges for fresh access tokens.
package models

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
)

// tokenBytes is the entropy of a refresh token before encoding.
const tokenBytes = 32

// RefreshToken is one issued session credential. The token string itself is
// the primary key; it is random enough that storing it in the clear carries
// the same risk profile as storing a session id.
type RefreshToken struct {
	Token      string    `json:"token"`
	UserID     id.UserID `json:"user_id"`
	DeviceName string    `json:"device_name,omitempty"`
	Revoked    bool      `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// NewRefreshToken mints a credential for the user.
func NewRefreshToken(userID id.UserID, deviceName string, ttl time.Duration, now time.Time) (*RefreshToken, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "refresh token user cannot be nil")
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "refresh token ttl must be positive")
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate refresh token")
	}

	return &RefreshToken{
		Token:      base64.RawURLEncoding.EncodeToString(raw),
		UserID:     userID,
		DeviceName: deviceName,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// IsExpired reports whether the credential has aged out.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Usable reports whether the credential can still be exchanged.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && !t.IsExpired(now)
}
