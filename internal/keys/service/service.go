// Package service implements the shareable key engine: minting, the
// view-accounting operation, lifecycle transitions and the access gate
// mediating who may do what to a key.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"verikey/internal/audit"
	"verikey/internal/bundle"
	identitymodels "verikey/internal/identity/models"
	keymetrics "verikey/internal/keys/metrics"
	"verikey/internal/keys/models"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/platform/sentinel"
	"verikey/pkg/requestcontext"
	"verikey/pkg/validate"
)

const notesMaxLen = 500

// Actor identifies the authenticated caller for access-gate decisions. The
// email is needed because keys can be addressed to an email before the
// target registers.
type Actor struct {
	ID    id.UserID
	Email string
}

// KeyStore is the persistence contract for shareable keys.
type KeyStore interface {
	Create(ctx context.Context, k *models.ShareableKey) error
	GetByID(ctx context.Context, keyID id.KeyID) (*models.ShareableKey, error)
	RecordView(ctx context.Context, keyID id.KeyID, now time.Time) (*models.ShareableKey, error)
	Execute(ctx context.Context, keyID id.KeyID, validate func(*models.ShareableKey) error, mutate func(*models.ShareableKey)) (*models.ShareableKey, error)
	Delete(ctx context.Context, keyID id.KeyID) error
	ListByCreator(ctx context.Context, creatorID id.UserID, status models.KeyStatus) ([]*models.ShareableKey, error)
	ListByRecipient(ctx context.Context, userID id.UserID, email string, includeRemoved bool) ([]*models.ShareableKey, error)
	CountNewForRecipient(ctx context.Context, userID id.UserID, email string) (int, error)
	SweepExhausted(ctx context.Context, now time.Time) (int, error)
	RevokeAllByCreator(ctx context.Context, creatorID id.UserID, reason string, now time.Time) (int, error)
	PurgeUser(ctx context.Context, userID id.UserID) (int, error)
}

// UserDirectory resolves and loads users. Satisfied by the identity service.
type UserDirectory interface {
	Get(ctx context.Context, userID id.UserID) (*identitymodels.User, error)
	Lookup(ctx context.Context, identifier string) (identitymodels.PublicProfile, error)
}

// AuditPublisher captures audit events emitted by the service.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the shareable key engine.
type Service struct {
	store   KeyStore
	users   UserDirectory
	logger  *slog.Logger
	metrics *keymetrics.Metrics
	audit   AuditPublisher
}

type serviceConfig struct {
	logger  *slog.Logger
	metrics *keymetrics.Metrics
	audit   AuditPublisher
}

type Option func(cfg *serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) { cfg.logger = logger }
}

func WithMetrics(m *keymetrics.Metrics) Option {
	return func(cfg *serviceConfig) { cfg.metrics = m }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(cfg *serviceConfig) { cfg.audit = publisher }
}

func New(store KeyStore, users UserDirectory, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Service{
		store:   store,
		users:   users,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		audit:   cfg.audit,
	}
}

// CreateParams carries a proactive share: the creator picks a recipient and
// the categories to disclose, and supplies any submission values the
// profile lacks.
type CreateParams struct {
	// RecipientIdentifier is an email or @screen_name; ignored when
	// ShareableLink is set.
	RecipientIdentifier string
	ShareableLink       bool
	Label               string
	Notes               string
	Categories          []string
	ViewsAllowed        int
	Submission          bundle.Submission
}

// Create mints a key outside the request flow. The bundle is snapshotted
// from the creator's profile plus the submission, exactly as fulfillment
// does.
func (s *Service) Create(ctx context.Context, creator Actor, p CreateParams) (*models.ShareableKey, error) {
	label, err := validate.Title(p.Label)
	if err != nil {
		return nil, err
	}
	if len([]rune(p.Notes)) > notesMaxLen {
		return nil, dErrors.Newf(dErrors.CodeValidation, "notes must be %d characters or less", notesMaxLen)
	}
	categories, err := id.ParseCategorySet(p.Categories)
	if err != nil {
		return nil, err
	}
	if err := validateSubmissionLocation(p.Submission.Location); err != nil {
		return nil, err
	}

	recipient, err := s.resolveRecipient(ctx, creator, p)
	if err != nil {
		return nil, err
	}

	subject, err := s.users.Get(ctx, creator.ID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	b := bundle.Build(subject, categories, p.Submission, now)

	k, err := models.NewShareableKey(id.NewKeyID(), creator.ID, recipient, label, b, p.ViewsAllowed, now)
	if err != nil {
		return nil, err
	}
	k.Notes = strings.TrimSpace(p.Notes)

	if err := s.store.Create(ctx, k); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create key")
	}

	s.logAudit(ctx, audit.EventKeyCreated, k.ID, map[string]any{"origin": "proactive"})
	s.metrics.IncrementKeysCreated("proactive")
	return k, nil
}

// MintParams carries an internally built key: fulfillment has already
// validated the request, built the bundle and decided the addressing.
type MintParams struct {
	CreatorID    id.UserID
	Recipient    models.Recipient
	RequestID    id.RequestID
	Label        string
	Notes        string
	ViewsAllowed int
	Bundle       bundle.Bundle
}

// Mint persists a key built by the request engine. It runs inside the
// fulfillment transaction carried in ctx, so the key and the request's
// completed status commit together or not at all.
func (s *Service) Mint(ctx context.Context, p MintParams) (*models.ShareableKey, error) {
	now := requestcontext.Now(ctx)
	k, err := models.NewShareableKey(id.NewKeyID(), p.CreatorID, p.Recipient, p.Label, p.Bundle, p.ViewsAllowed, now)
	if err != nil {
		return nil, err
	}
	k.Notes = p.Notes
	requestID := p.RequestID
	if !requestID.IsNil() {
		k.RequestID = &requestID
	}

	if err := s.store.Create(ctx, k); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create key")
	}

	s.logAudit(ctx, audit.EventKeyCreated, k.ID, map[string]any{"origin": "request", "request_id": requestID.String()})
	s.metrics.IncrementKeysCreated("request")
	return k, nil
}

// Get returns key metadata for a participant. Non-participants get
// not-found rather than forbidden so the existence of someone else's key
// never leaks.
func (s *Service) Get(ctx context.Context, actor Actor, keyID id.KeyID) (*models.ShareableKey, error) {
	k, err := s.loadForActor(ctx, actor, keyID)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// RecordView consumes one view and returns the key with its bundle. This is
// the only operation that serves bundle contents, and the view that
// exhausts the budget still gets the data.
//
// Under concurrent calls the store's conditional mutation decides the
// winner; losers surface the authoritative state as a conflict.
func (s *Service) RecordView(ctx context.Context, actor Actor, keyID id.KeyID) (*models.ShareableKey, error) {
	k, err := s.loadForActor(ctx, actor, keyID)
	if err != nil {
		return nil, err
	}

	role := k.RoleOf(actor.ID, actor.Email)
	if role != models.RoleRecipient {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the recipient can view a key")
	}
	if err := k.CanView(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	viewed, err := s.store.RecordView(ctx, keyID, now)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "key not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			// Lost a race or the key changed state since the gate check.
			return nil, s.conflictWithCurrentState(ctx, keyID)
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record view")
		}
	}

	s.logAudit(ctx, audit.EventKeyViewed, keyID, map[string]any{
		"views_used":    viewed.ViewsUsed,
		"views_allowed": viewed.ViewsAllowed,
	})
	s.metrics.IncrementViewsRecorded()
	if viewed.Status == models.StatusViewedOut {
		s.logAudit(ctx, audit.EventKeyExhausted, keyID, nil)
		s.metrics.IncrementKeysViewedOut("view")
	}
	return viewed, nil
}

// Revoke terminates an active key. Creator-only; terminal regardless of
// remaining budget.
func (s *Service) Revoke(ctx context.Context, actor Actor, keyID id.KeyID, reason string) (*models.ShareableKey, error) {
	k, err := s.loadForActor(ctx, actor, keyID)
	if err != nil {
		return nil, err
	}
	if k.RoleOf(actor.ID, actor.Email) != models.RoleCreator {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the creator can revoke a key")
	}

	now := requestcontext.Now(ctx)
	revoked, err := s.store.Execute(ctx, keyID,
		func(k *models.ShareableKey) error { return k.CanRevoke() },
		func(k *models.ShareableKey) { k.ApplyRevoke(strings.TrimSpace(reason), now) },
	)
	if err != nil {
		return nil, wrapKeyErr(err)
	}

	s.logAudit(ctx, audit.EventKeyRevoked, keyID, nil)
	s.metrics.IncrementKeysRevoked()
	return revoked, nil
}

// Remove archives a key from the recipient's listing. Recipient-only.
// Removal is about visibility, not access denial; that distinction is the
// point of having both revoke and remove.
func (s *Service) Remove(ctx context.Context, actor Actor, keyID id.KeyID) (*models.ShareableKey, error) {
	k, err := s.loadForActor(ctx, actor, keyID)
	if err != nil {
		return nil, err
	}
	if k.RoleOf(actor.ID, actor.Email) != models.RoleRecipient {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the recipient can remove a key")
	}

	now := requestcontext.Now(ctx)
	removed, err := s.store.Execute(ctx, keyID,
		func(k *models.ShareableKey) error { return k.CanRemove() },
		func(k *models.ShareableKey) { k.ApplyRemove(now) },
	)
	if err != nil {
		return nil, wrapKeyErr(err)
	}

	s.logAudit(ctx, audit.EventKeyRemoved, keyID, nil)
	s.metrics.IncrementKeysRemoved()
	return removed, nil
}

// Delete removes the key row. Either participant may delete, but only once
// the key has left the active state.
func (s *Service) Delete(ctx context.Context, actor Actor, keyID id.KeyID) error {
	k, err := s.loadForActor(ctx, actor, keyID)
	if err != nil {
		return err
	}
	if err := k.CanDelete(); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, keyID); err != nil {
		return wrapKeyErr(err)
	}

	s.logAudit(ctx, audit.EventKeyDeleted, keyID, nil)
	return nil
}

// ListCreated returns the keys the actor minted, optionally filtered by
// status.
func (s *Service) ListCreated(ctx context.Context, actor Actor, statusFilter string) ([]*models.ShareableKey, error) {
	var status models.KeyStatus
	if statusFilter != "" {
		parsed, err := models.ParseKeyStatus(statusFilter)
		if err != nil {
			return nil, err
		}
		status = parsed
	}

	s.sweep(ctx)
	keys, err := s.store.ListByCreator(ctx, actor.ID, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list keys")
	}
	return keys, nil
}

// ListReceived returns the keys addressed to the actor. Removed keys are
// hidden unless asked for.
func (s *Service) ListReceived(ctx context.Context, actor Actor, includeRemoved bool) ([]*models.ShareableKey, error) {
	s.sweep(ctx)
	keys, err := s.store.ListByRecipient(ctx, actor.ID, actor.Email, includeRemoved)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list keys")
	}
	return keys, nil
}

// NewCount returns the actor's badge count: received keys that are active
// and never viewed.
func (s *Service) NewCount(ctx context.Context, actor Actor) (int, error) {
	count, err := s.store.CountNewForRecipient(ctx, actor.ID, actor.Email)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count new keys")
	}
	return count, nil
}

// SweepExhausted force-transitions every active key whose counters say it
// is spent. Safe to run repeatedly and concurrently: it only ever moves
// active to viewed_out, so overlapping sweeps converge.
func (s *Service) SweepExhausted(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	swept, err := s.store.SweepExhausted(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep keys")
	}
	if swept > 0 {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "repaired keys with stale status",
				"count", swept,
				"request_id", requestcontext.RequestID(ctx))
		}
		s.metrics.AddSweepTransitions(swept)
		for i := 0; i < swept; i++ {
			s.metrics.IncrementKeysViewedOut("sweep")
		}
	}
	return swept, nil
}

// RevokeAllByCreator revokes every active key the user created. Part of the
// account-deletion cascade; runs in the ambient transaction.
func (s *Service) RevokeAllByCreator(ctx context.Context, creatorID id.UserID, reason string, now time.Time) (int, error) {
	return s.store.RevokeAllByCreator(ctx, creatorID, reason, now)
}

// PurgeUser removes every key the user created or received. Part of the
// hard-deletion cascade.
func (s *Service) PurgeUser(ctx context.Context, userID id.UserID) (int, error) {
	return s.store.PurgeUser(ctx, userID)
}

// sweep runs the opportunistic consistency repair on read paths. Failures
// are logged and swallowed: a stale status must not break a listing.
func (s *Service) sweep(ctx context.Context) {
	if _, err := s.SweepExhausted(ctx); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "opportunistic key sweep failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx))
	}
}

// loadForActor fetches a key and blurs not-found with no-access: callers
// outside the key's creator/recipient pair cannot distinguish "does not
// exist" from "not yours".
func (s *Service) loadForActor(ctx context.Context, actor Actor, keyID id.KeyID) (*models.ShareableKey, error) {
	k, err := s.store.GetByID(ctx, keyID)
	if err != nil {
		return nil, wrapKeyErr(err)
	}
	if k.RoleOf(actor.ID, actor.Email) == models.RoleNone {
		return nil, dErrors.New(dErrors.CodeNotFound, "key not found")
	}
	return k, nil
}

// resolveRecipient turns the caller-supplied addressing into a Recipient:
// a registered user when the identifier resolves, a bare email otherwise,
// or an open shareable link.
func (s *Service) resolveRecipient(ctx context.Context, creator Actor, p CreateParams) (models.Recipient, error) {
	if p.ShareableLink {
		return models.Recipient{ShareableLink: true}, nil
	}

	identifier := strings.TrimSpace(p.RecipientIdentifier)
	if identifier == "" {
		return models.Recipient{}, dErrors.New(dErrors.CodeValidation, "recipient is required")
	}

	if isEmailIdentifier(identifier) {
		email, err := validate.Email(identifier)
		if err != nil {
			return models.Recipient{}, err
		}
		if strings.EqualFold(email, creator.Email) {
			return models.Recipient{}, dErrors.New(dErrors.CodeValidation, "cannot share a key with yourself")
		}
		profile, err := s.users.Lookup(ctx, email)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				// Unregistered target: the key waits on its email.
				return models.Recipient{Email: email}, nil
			}
			return models.Recipient{}, err
		}
		return models.Recipient{UserID: profile.ID, Email: email}, nil
	}

	profile, err := s.users.Lookup(ctx, identifier)
	if err != nil {
		return models.Recipient{}, err
	}
	if profile.ID == creator.ID {
		return models.Recipient{}, dErrors.New(dErrors.CodeValidation, "cannot share a key with yourself")
	}
	return models.Recipient{UserID: profile.ID}, nil
}

func isEmailIdentifier(identifier string) bool {
	return !strings.HasPrefix(identifier, "@") && strings.Contains(identifier, "@")
}

func validateSubmissionLocation(loc *bundle.LocationInput) error {
	if loc == nil {
		return nil
	}
	if (loc.Latitude == nil) != (loc.Longitude == nil) {
		return dErrors.New(dErrors.CodeValidation, "latitude and longitude must be supplied together")
	}
	if loc.Latitude != nil {
		return validate.Coordinates(*loc.Latitude, *loc.Longitude)
	}
	return nil
}

// conflictWithCurrentState reports the authoritative state after a lost
// race so the caller can reconcile.
func (s *Service) conflictWithCurrentState(ctx context.Context, keyID id.KeyID) error {
	k, err := s.store.GetByID(ctx, keyID)
	if err != nil {
		return dErrors.New(dErrors.CodeConflict, "key is no longer viewable")
	}
	return dErrors.Newf(dErrors.CodeConflict, "key is %s", k.Status)
}

func wrapKeyErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "key not found")
	}
	if errors.Is(err, sentinel.ErrInvalidState) {
		return dErrors.New(dErrors.CodeConflict, "key is in the wrong state for this operation")
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "key store failure")
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, keyID id.KeyID, metadata map[string]any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(action),
			"event", string(action),
			"log_type", "audit",
			"resource_type", "key",
			"resource_id", keyID.String(),
			"request_id", requestcontext.RequestID(ctx))
	}
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Action:       action,
		ResourceType: "key",
		ResourceID:   keyID.String(),
		Metadata:     metadata,
	})
}
