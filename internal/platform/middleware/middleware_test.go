package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "verikey/pkg/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubVerifier struct {
	claims *AccessClaims
	err    error
}

func (s *stubVerifier) VerifyAccessToken(string) (*AccessClaims, error) {
	return s.claims, s.err
}

type stubRevocation struct {
	revoked bool
	err     error
}

func (s *stubRevocation) IsTokenRevoked(context.Context, id.TokenID) (bool, error) {
	return s.revoked, s.err
}

func validClaims() *AccessClaims {
	return &AccessClaims{
		UserID:  id.NewUserID().String(),
		TokenID: id.NewTokenID().String(),
	}
}

func TestRequireAuth(t *testing.T) {
	okHandler := func(gotUser *id.UserID, gotToken *id.TokenID) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*gotUser = GetUserID(r.Context())
			*gotToken = GetTokenID(r.Context())
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("missing authorization header returns 401", func(t *testing.T) {
		var userID id.UserID
		var tokenID id.TokenID
		h := RequireAuth(&stubVerifier{claims: validClaims()}, nil, testLogger)(okHandler(&userID, &tokenID))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/keys", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Missing or invalid Authorization header")
		assert.True(t, userID.IsNil())
	})

	t.Run("invalid token returns 401", func(t *testing.T) {
		var userID id.UserID
		var tokenID id.TokenID
		h := RequireAuth(&stubVerifier{err: errors.New("bad signature")}, nil, testLogger)(okHandler(&userID, &tokenID))

		req := httptest.NewRequest(http.MethodGet, "/keys", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid or expired token")
	})

	t.Run("revoked token returns 401", func(t *testing.T) {
		var userID id.UserID
		var tokenID id.TokenID
		h := RequireAuth(&stubVerifier{claims: validClaims()}, &stubRevocation{revoked: true}, testLogger)(okHandler(&userID, &tokenID))

		req := httptest.NewRequest(http.MethodGet, "/keys", nil)
		req.Header.Set("Authorization", "Bearer some-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Token has been revoked")
	})

	t.Run("revocation check failure returns 500", func(t *testing.T) {
		var userID id.UserID
		var tokenID id.TokenID
		h := RequireAuth(&stubVerifier{claims: validClaims()}, &stubRevocation{err: errors.New("redis down")}, testLogger)(okHandler(&userID, &tokenID))

		req := httptest.NewRequest(http.MethodGet, "/keys", nil)
		req.Header.Set("Authorization", "Bearer some-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("malformed subject claim returns 401", func(t *testing.T) {
		var userID id.UserID
		var tokenID id.TokenID
		claims := &AccessClaims{UserID: "not-a-uuid", TokenID: id.NewTokenID().String()}
		h := RequireAuth(&stubVerifier{claims: claims}, nil, testLogger)(okHandler(&userID, &tokenID))

		req := httptest.NewRequest(http.MethodGet, "/keys", nil)
		req.Header.Set("Authorization", "Bearer some-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token stores user and token id in context", func(t *testing.T) {
		claims := validClaims()
		var userID id.UserID
		var tokenID id.TokenID
		h := RequireAuth(&stubVerifier{claims: claims}, &stubRevocation{}, testLogger)(okHandler(&userID, &tokenID))

		req := httptest.NewRequest(http.MethodGet, "/keys", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, claims.UserID, userID.String())
		assert.Equal(t, claims.TokenID, tokenID.String())
	})
}

func TestRequestID(t *testing.T) {
	t.Run("generates id when absent", func(t *testing.T) {
		var seen string
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	})

	t.Run("preserves caller-supplied id", func(t *testing.T) {
		var seen string
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "client-chosen-id")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "client-chosen-id", seen)
		assert.Equal(t, "client-chosen-id", rec.Header().Get("X-Request-ID"))
	})
}

func TestRecovery(t *testing.T) {
	h := Recovery(testLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestContentTypeJSON(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("rejects non-json post", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/keys", nil)
		req.Header.Set("Content-Type", "text/xml")
		rec := httptest.NewRecorder()
		ContentTypeJSON(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("accepts json post with charset", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/keys", nil)
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		rec := httptest.NewRecorder()
		ContentTypeJSON(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ignores content type on get", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/keys", nil)
		req.Header.Set("Content-Type", "text/xml")
		rec := httptest.NewRecorder()
		ContentTypeJSON(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"x-forwarded-for single", "203.0.113.5", "", "10.0.0.1:1234", "203.0.113.5"},
		{"x-forwarded-for chain takes first", "203.0.113.5, 10.0.0.2, 10.0.0.3", "", "10.0.0.1:1234", "203.0.113.5"},
		{"x-real-ip fallback", "", "203.0.113.9", "10.0.0.1:1234", "203.0.113.9"},
		{"remote addr strips port", "", "", "192.0.2.7:5555", "192.0.2.7"},
		{"ipv6 remote addr", "", "", "[::1]:8080", "[::1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}
