// Package httptransport is the thin HTTP layer: it decodes JSON, resolves
// the authenticated actor, delegates to the domain services and translates
// their results back to the wire. No business rules live here.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	identitymodels "verikey/internal/identity/models"
	"verikey/internal/platform/metrics"
	"verikey/internal/platform/middleware"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/platform/httputil"
	"verikey/pkg/requestcontext"
)

const requestTimeout = 30 * time.Second

// ActorResolver loads the authenticated user so handlers can build the
// Actor the domain services gate on. Satisfied by the identity service.
type ActorResolver interface {
	Get(ctx context.Context, userID id.UserID) (*identitymodels.User, error)
}

// Deps bundles everything the router needs.
type Deps struct {
	Auth          AuthService
	Identity      IdentityService
	Requests      RequestService
	Keys          KeyService
	Verifications VerificationService
	Actors        ActorResolver

	Verifier   middleware.TokenVerifier
	Revocation middleware.TokenRevocationChecker

	// ReviewerEmails gates the verification review endpoint.
	ReviewerEmails []string

	Logger  *slog.Logger
	Metrics *metrics.HTTP
}

// NewRouter wires the full route table with the shared middleware chain.
// healthz, metrics, signup, login and refresh are public; everything else
// requires a Bearer access token.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.LatencyMiddleware(d.Metrics))
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)

	auth := &AuthHandler{auth: d.Auth, identity: d.Identity, logger: d.Logger}
	profile := &ProfileHandler{identity: d.Identity}
	requests := &RequestHandler{requests: d.Requests, actors: d.Actors}
	keys := &KeyHandler{keys: d.Keys, actors: d.Actors}
	verifications := &VerificationHandler{
		verifications: d.Verifications,
		actors:        d.Actors,
		reviewers:     reviewerSet(d.ReviewerEmails),
	}

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/auth/signup", auth.handleSignup)
	r.Post("/auth/login", auth.handleLogin)
	r.Post("/auth/refresh", auth.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.Verifier, d.Revocation, d.Logger))

		r.Post("/auth/logout", auth.handleLogout)
		r.Get("/auth/verify", auth.handleVerify)

		r.Get("/profile", profile.handleGet)
		r.Patch("/profile", profile.handleUpdate)
		r.Delete("/profile", profile.handleDelete)
		r.Put("/profile/email", profile.handleChangeEmail)
		r.Put("/profile/screen-name", profile.handleChangeScreenName)
		r.Put("/profile/photo", profile.handleSetPhoto)
		r.Get("/profile/check-screen-name", profile.handleCheckScreenName)
		r.Get("/users/search", profile.handleSearch)
		r.Get("/users/lookup", profile.handleLookup)

		r.Post("/requests", requests.handleCreate)
		r.Get("/requests", requests.handleList)
		r.Get("/requests/{id}", requests.handleGet)
		r.Patch("/requests/{id}", requests.handleUpdate)
		r.Delete("/requests/{id}", requests.handleCancel)
		r.Post("/requests/{id}/deny", requests.handleDeny)
		r.Post("/requests/{id}/fulfill", requests.handleFulfill)

		r.Post("/keys", keys.handleCreate)
		r.Get("/keys", keys.handleList)
		r.Get("/keys/new-count", keys.handleNewCount)
		r.Get("/keys/{id}", keys.handleGet)
		r.Delete("/keys/{id}", keys.handleDelete)
		r.Post("/keys/{id}/view", keys.handleView)
		r.Post("/keys/{id}/revoke", keys.handleRevoke)
		r.Post("/keys/{id}/remove", keys.handleRemove)

		r.Post("/verifications", verifications.handleSubmit)
		r.Get("/verifications/status", verifications.handleStatus)
		r.Post("/verifications/retry", verifications.handleRetry)
		r.Post("/verifications/{id}/review", verifications.handleReview)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func reviewerSet(emails []string) map[string]bool {
	set := make(map[string]bool, len(emails))
	for _, e := range emails {
		set[e] = true
	}
	return set
}

// resolveActor turns the authenticated user id into an id+email pair. The
// email matters because requests and keys can be addressed to an email
// before the target registers.
func resolveActor(ctx context.Context, actors ActorResolver) (id.UserID, string, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return userID, "", dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	u, err := actors.Get(ctx, userID)
	if err != nil {
		return userID, "", dErrors.New(dErrors.CodeUnauthorized, "account no longer active")
	}
	return userID, u.Email, nil
}
