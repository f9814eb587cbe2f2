// Package service implements session management: login issues an access
// token and a refresh credential, refresh rotates the credential, logout
// puts the access token on the revocation list.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"verikey/internal/audit"
	"verikey/internal/auth/device"
	authmetrics "verikey/internal/auth/metrics"
	"verikey/internal/auth/models"
	"verikey/internal/auth/token"
	identitymodels "verikey/internal/identity/models"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/platform/sentinel"
	"verikey/pkg/requestcontext"
)

// RefreshTokenStore is the persistence contract for refresh tokens.
type RefreshTokenStore interface {
	Create(ctx context.Context, t *models.RefreshToken) error
	Get(ctx context.Context, token string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID id.UserID) (int, error)
	PurgeUser(ctx context.Context, userID id.UserID) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// RevocationList blocks access tokens by jti until they would have expired
// anyway.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID id.TokenID, userID id.UserID, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID id.TokenID) (bool, error)
}

// Identity authenticates and loads accounts. Satisfied by the identity
// service.
type Identity interface {
	Authenticate(ctx context.Context, email, password string) (*identitymodels.User, error)
	Get(ctx context.Context, userID id.UserID) (*identitymodels.User, error)
}

// StoreTx runs a function inside one storage transaction carried through
// the context.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// AuditPublisher captures audit events emitted by the service.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages sessions.
type Service struct {
	identity   Identity
	tokens     *token.Service
	refresh    RefreshTokenStore
	revoked    RevocationList
	refreshTTL time.Duration
	tx         StoreTx
	logger     *slog.Logger
	metrics    *authmetrics.Metrics
	audit      AuditPublisher
}

type serviceConfig struct {
	tx      StoreTx
	logger  *slog.Logger
	metrics *authmetrics.Metrics
	audit   AuditPublisher
}

type Option func(cfg *serviceConfig)

func WithStoreTx(tx StoreTx) Option {
	return func(cfg *serviceConfig) { cfg.tx = tx }
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) { cfg.logger = logger }
}

func WithMetrics(m *authmetrics.Metrics) Option {
	return func(cfg *serviceConfig) { cfg.metrics = m }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(cfg *serviceConfig) { cfg.audit = publisher }
}

func New(identity Identity, tokens *token.Service, refresh RefreshTokenStore, revoked RevocationList, refreshTTL time.Duration, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.tx == nil {
		cfg.tx = passthroughTx{}
	}
	return &Service{
		identity:   identity,
		tokens:     tokens,
		refresh:    refresh,
		revoked:    revoked,
		refreshTTL: refreshTTL,
		tx:         cfg.tx,
		logger:     cfg.logger,
		metrics:    cfg.metrics,
		audit:      cfg.audit,
	}
}

// Session is an issued credential pair.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	DeviceName   string
	User         *identitymodels.User
}

// Login opens a session. The user agent becomes the session's device label.
func (s *Service) Login(ctx context.Context, email, password, userAgent string) (*Session, error) {
	u, err := s.identity.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	session, err := s.issueSession(ctx, u, device.ParseUserAgent(userAgent))
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementLogins()
	return session, nil
}

// Refresh exchanges a refresh credential for a fresh pair, rotating the
// credential: the presented token is revoked and a new one issued in the
// same transaction, so a replayed token can never yield two live sessions.
func (s *Service) Refresh(ctx context.Context, refreshToken, userAgent string) (*Session, error) {
	t, err := s.refresh.Get(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementRefreshRejections("unknown")
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load refresh token")
	}

	now := requestcontext.Now(ctx)
	if t.Revoked {
		// A revoked token showing up again means the original or a thief
		// replayed it. Invalidate the whole family.
		s.metrics.IncrementRefreshRejections("revoked")
		if n, err := s.refresh.RevokeAllForUser(ctx, t.UserID); err == nil && n > 0 && s.logger != nil {
			s.logger.WarnContext(ctx, "refresh token replay detected, sessions revoked",
				"user_id", t.UserID.String(),
				"revoked", n,
				"request_id", requestcontext.RequestID(ctx))
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
	}
	if t.IsExpired(now) {
		s.metrics.IncrementRefreshRejections("expired")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "refresh token has expired")
	}

	u, err := s.identity.Get(ctx, t.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
	}

	deviceName := t.DeviceName
	if userAgent != "" {
		deviceName = device.ParseUserAgent(userAgent)
	}

	var session *Session
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.refresh.Revoke(txCtx, refreshToken); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to rotate refresh token")
		}
		issued, err := s.issueSession(txCtx, u, deviceName)
		if err != nil {
			return err
		}
		session = issued
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventTokenRefreshed, u.ID, nil)
	s.metrics.IncrementRefreshes()
	return session, nil
}

// Logout closes the session: the access token's jti joins the revocation
// list for the remainder of its lifetime and the refresh credential is
// revoked.
func (s *Service) Logout(ctx context.Context, userID id.UserID, tokenID id.TokenID, refreshToken string) error {
	if err := s.revoked.Revoke(ctx, tokenID, userID, s.tokens.AccessTTL()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke access token")
	}

	if refreshToken != "" {
		err := s.refresh.Revoke(ctx, refreshToken)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) && !errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke refresh token")
		}
	}

	s.logAudit(ctx, audit.EventUserLoggedOut, userID, nil)
	s.metrics.IncrementLogouts()
	return nil
}

// IsTokenRevoked satisfies the middleware's revocation checker.
func (s *Service) IsTokenRevoked(ctx context.Context, tokenID id.TokenID) (bool, error) {
	return s.revoked.IsTokenRevoked(ctx, tokenID)
}

// RevokeAllForUser closes every session the user holds. Part of the
// account-deletion cascade; runs in the ambient transaction.
func (s *Service) RevokeAllForUser(ctx context.Context, userID id.UserID) (int, error) {
	return s.refresh.RevokeAllForUser(ctx, userID)
}

// PurgeUser removes every refresh token the user holds. Part of the
// hard-deletion cascade.
func (s *Service) PurgeUser(ctx context.Context, userID id.UserID) (int, error) {
	return s.refresh.PurgeUser(ctx, userID)
}

// DeleteExpired drops aged-out refresh tokens. Run periodically; purely
// housekeeping.
func (s *Service) DeleteExpired(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	return s.refresh.DeleteExpired(ctx, now)
}

func (s *Service) issueSession(ctx context.Context, u *identitymodels.User, deviceName string) (*Session, error) {
	now := requestcontext.Now(ctx)

	access, _, expiresAt, err := s.tokens.GenerateAccessToken(u.ID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}

	refresh, err := models.NewRefreshToken(u.ID, deviceName, s.refreshTTL, now)
	if err != nil {
		return nil, err
	}
	if err := s.refresh.Create(ctx, refresh); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store refresh token")
	}

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		ExpiresAt:    expiresAt,
		DeviceName:   deviceName,
		User:         u,
	}, nil
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, userID id.UserID, metadata map[string]any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(action),
			"event", string(action),
			"log_type", "audit",
			"resource_type", "user",
			"resource_id", userID.String(),
			"request_id", requestcontext.RequestID(ctx))
	}
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Action:       action,
		ActorID:      userID.String(),
		ResourceType: "user",
		ResourceID:   userID.String(),
		Metadata:     metadata,
	})
}
