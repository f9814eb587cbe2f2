// Package token issues and verifies the short-lived JWT access tokens that
// authenticate API calls.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"verikey/internal/platform/middleware"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
)

// tokenTypeAccess is the only token type the verifier accepts. Refresh
// credentials are opaque strings, never JWTs, so a refresh token presented
// as a bearer token must fail verification.
const tokenTypeAccess = "access"

// Claims carried by an access token.
type Claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Service signs and verifies access tokens with a shared HS256 key.
type Service struct {
	signingKey []byte
	accessTTL  time.Duration
}

func NewService(signingKey string, accessTTL time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		accessTTL:  accessTTL,
	}
}

// AccessTTL reports the configured token lifetime. Revocation entries use
// it as their retention window.
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

// GenerateAccessToken signs a token for the user. The returned jti
// identifies the token on the revocation list.
func (s *Service) GenerateAccessToken(userID id.UserID, now time.Time) (signed string, jti id.TokenID, expiresAt time.Time, err error) {
	jti = id.NewTokenID()
	expiresAt = now.Add(s.accessTTL)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    userID.String(),
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti.String(),
		},
	})

	signed, err = t.SignedString(s.signingKey)
	if err != nil {
		return "", id.TokenID{}, time.Time{}, err
	}
	return signed, jti, expiresAt, nil
}

// VerifyAccessToken checks the signature, expiry and token type. It
// satisfies the middleware's TokenVerifier contract.
func (s *Service) VerifyAccessToken(tokenString string) (*middleware.AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token is not an access token")
	}

	return &middleware.AccessClaims{
		UserID:  claims.UserID,
		TokenID: claims.ID,
	}, nil
}
