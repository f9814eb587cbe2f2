package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	authservice "verikey/internal/auth/service"
	identitymodels "verikey/internal/identity/models"
	identityservice "verikey/internal/identity/service"
	"verikey/internal/platform/middleware"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/platform/httputil"
	"verikey/pkg/requestcontext"
)

//go:generate mockgen -source=handlers_auth.go -destination=mocks/auth-mocks.go -package=mocks AuthService,IdentityService

// AuthService is the session surface the auth handlers need.
type AuthService interface {
	Login(ctx context.Context, email, password, userAgent string) (*authservice.Session, error)
	Refresh(ctx context.Context, refreshToken, userAgent string) (*authservice.Session, error)
	Logout(ctx context.Context, userID id.UserID, tokenID id.TokenID, refreshToken string) error
}

// IdentityService is the account surface shared by the auth and profile
// handlers. Satisfied by the identity service.
type IdentityService interface {
	Register(ctx context.Context, p identityservice.RegisterParams) (*identitymodels.User, error)
	Get(ctx context.Context, userID id.UserID) (*identitymodels.User, error)
	UpdateProfile(ctx context.Context, userID id.UserID, p identityservice.UpdateProfileParams) (*identitymodels.User, error)
	ChangeEmail(ctx context.Context, userID id.UserID, email string) (*identitymodels.User, error)
	ChangeScreenName(ctx context.Context, userID id.UserID, name string) (*identitymodels.User, error)
	SetProfilePhoto(ctx context.Context, userID id.UserID, dataURL string) (*identitymodels.User, error)
	CheckScreenName(ctx context.Context, raw string) (available bool, canonical string, err error)
	Search(ctx context.Context, query string) ([]identitymodels.PublicProfile, error)
	Lookup(ctx context.Context, identifier string) (identitymodels.PublicProfile, error)
	DeleteAccount(ctx context.Context, userID id.UserID, password string, mode identityservice.DeletionMode) error
}

type AuthHandler struct {
	auth     AuthService
	identity IdentityService
	logger   *slog.Logger
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	ScreenName  string `json:"screen_name"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type sessionResponse struct {
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
	TokenType    string               `json:"token_type"`
	ExpiresAt    time.Time            `json:"expires_at"`
	DeviceName   string               `json:"device_name,omitempty"`
	User         *identitymodels.User `json:"user"`
}

func newSessionResponse(s *authservice.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    s.ExpiresAt,
		DeviceName:   s.DeviceName,
		User:         s.User,
	}
}

// handleSignup registers the account and opens the first session in one
// round trip, so clients never juggle a registered-but-logged-out state.
func (h *AuthHandler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx := r.Context()
	_, err = h.identity.Register(ctx, identityservice.RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		ScreenName:  req.ScreenName,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: dob,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := h.auth.Login(ctx, req.Email, req.Password, requestcontext.UserAgent(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx := r.Context()
	session, err := h.auth.Login(ctx, req.Email, req.Password, requestcontext.UserAgent(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "refresh_token is required"))
		return
	}

	ctx := r.Context()
	session, err := h.auth.Refresh(ctx, req.RefreshToken, requestcontext.UserAgent(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Body is optional: a logout without the refresh token still revokes
	// the access token that authenticated this call.
	var req logoutRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	ctx := r.Context()
	err := h.auth.Logout(ctx, middleware.GetUserID(ctx), middleware.GetTokenID(ctx), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// handleVerify confirms the presented token and echoes the account it
// belongs to. Clients call it on startup to decide between the app and the
// login screen.
func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.identity.Get(ctx, middleware.GetUserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"valid": true, "user": u})
}

// parseDate parses a yyyy-mm-dd payload field; empty means absent.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "dates must use the YYYY-MM-DD format")
	}
	return &t, nil
}
