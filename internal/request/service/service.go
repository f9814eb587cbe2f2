// Package service implements the request engine: soliciting information
// from another user, settling the request through deny/cancel/fulfill, and
// keeping both parties' listings consistent.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"verikey/internal/audit"
	identitymodels "verikey/internal/identity/models"
	keymodels "verikey/internal/keys/models"
	keyservice "verikey/internal/keys/service"
	requestmetrics "verikey/internal/request/metrics"
	"verikey/internal/request/models"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/platform/sentinel"
	"verikey/pkg/requestcontext"
	"verikey/pkg/validate"
)

const notesMaxLen = 500

// Actor identifies the authenticated caller. The email matters because a
// request can be addressed to an email before the target registers.
type Actor struct {
	ID    id.UserID
	Email string
}

// RequestStore is the persistence contract for requests.
type RequestStore interface {
	Create(ctx context.Context, r *models.Request) error
	GetByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	Execute(ctx context.Context, requestID id.RequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error)
	HasPendingDuplicate(ctx context.Context, requesterID id.UserID, target models.Target) (bool, error)
	ListByRequester(ctx context.Context, requesterID id.UserID) ([]*models.Request, error)
	ListForTarget(ctx context.Context, userID id.UserID, email string) ([]*models.Request, error)
	CancelAllForUser(ctx context.Context, userID id.UserID, now time.Time) (int, error)
	PurgeUser(ctx context.Context, userID id.UserID) (int, error)
}

// UserDirectory resolves and loads users. Satisfied by the identity service.
type UserDirectory interface {
	Get(ctx context.Context, userID id.UserID) (*identitymodels.User, error)
	Lookup(ctx context.Context, identifier string) (identitymodels.PublicProfile, error)
}

// KeyMinter persists keys built during fulfillment. Satisfied by the key
// service; Mint honors the ambient transaction carried in ctx.
type KeyMinter interface {
	Mint(ctx context.Context, p keyservice.MintParams) (*keymodels.ShareableKey, error)
}

// StoreTx runs a function inside one storage transaction carried through
// the context.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// passthroughTx satisfies StoreTx without transactional semantics, for
// memory-store wiring where every store op is already atomic.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// Notifier delivers the new-request email. Best effort: failures are
// recorded, never propagated.
type Notifier interface {
	RequestCreated(ctx context.Context, email, requesterName, label string, categories []string) error
}

// AuditPublisher captures audit events emitted by the service.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the request engine.
type Service struct {
	store   RequestStore
	users   UserDirectory
	keys    KeyMinter
	tx      StoreTx
	logger  *slog.Logger
	metrics *requestmetrics.Metrics
	notify  Notifier
	audit   AuditPublisher
}

type serviceConfig struct {
	tx      StoreTx
	logger  *slog.Logger
	metrics *requestmetrics.Metrics
	notify  Notifier
	audit   AuditPublisher
}

type Option func(cfg *serviceConfig)

func WithStoreTx(tx StoreTx) Option {
	return func(cfg *serviceConfig) { cfg.tx = tx }
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) { cfg.logger = logger }
}

func WithMetrics(m *requestmetrics.Metrics) Option {
	return func(cfg *serviceConfig) { cfg.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(cfg *serviceConfig) { cfg.notify = n }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(cfg *serviceConfig) { cfg.audit = publisher }
}

func New(store RequestStore, users UserDirectory, keys KeyMinter, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.tx == nil {
		cfg.tx = passthroughTx{}
	}
	return &Service{
		store:   store,
		users:   users,
		keys:    keys,
		tx:      cfg.tx,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		notify:  cfg.notify,
		audit:   cfg.audit,
	}
}

// CreateParams carries a new solicitation.
type CreateParams struct {
	// TargetIdentifier is an email or @screen_name.
	TargetIdentifier string
	Label            string
	Notes            string
	Categories       []string
}

// Create opens a pending request addressed to the target. One pending
// request per (requester, target) pair; a second is rejected as a conflict.
func (s *Service) Create(ctx context.Context, requester Actor, p CreateParams) (*models.Request, error) {
	label, err := validate.Title(p.Label)
	if err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(p.Notes)
	if len([]rune(notes)) > notesMaxLen {
		return nil, dErrors.Newf(dErrors.CodeValidation, "notes must be %d characters or less", notesMaxLen)
	}
	categories, err := id.ParseCategorySet(p.Categories)
	if err != nil {
		return nil, err
	}

	target, err := s.resolveTarget(ctx, requester, p.TargetIdentifier)
	if err != nil {
		return nil, err
	}

	duplicate, err := s.store.HasPendingDuplicate(ctx, requester.ID, target)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check pending requests")
	}
	if duplicate {
		return nil, dErrors.New(dErrors.CodeConflict, "you already have a pending request for this person")
	}

	now := requestcontext.Now(ctx)
	r, err := models.NewRequest(id.NewRequestID(), requester.ID, target, label, notes, categories, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, r); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create request")
	}

	s.logAudit(ctx, audit.EventRequestCreated, r.ID, map[string]any{"categories": p.Categories})
	s.metrics.IncrementRequestsCreated()
	s.notifyCreated(ctx, requester, r)
	return r, nil
}

// Get returns the request to a participant. Non-participants get not-found
// rather than forbidden so the existence of someone else's request never
// leaks.
func (s *Service) Get(ctx context.Context, actor Actor, requestID id.RequestID) (*models.Request, error) {
	return s.loadForActor(ctx, actor, requestID)
}

// Deny settles a pending request as refused. Target-only.
func (s *Service) Deny(ctx context.Context, actor Actor, requestID id.RequestID) (*models.Request, error) {
	if _, err := s.loadForActor(ctx, actor, requestID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	denied, err := s.store.Execute(ctx, requestID,
		func(r *models.Request) error { return r.CanDeny(actor.ID, actor.Email) },
		func(r *models.Request) { r.ApplyDeny(now) },
	)
	if err != nil {
		return nil, wrapRequestErr(err)
	}

	s.logAudit(ctx, audit.EventRequestDenied, requestID, nil)
	s.metrics.IncrementRequestsSettled("denied")
	return denied, nil
}

// Cancel withdraws a pending request. Either participant may cancel.
func (s *Service) Cancel(ctx context.Context, actor Actor, requestID id.RequestID) (*models.Request, error) {
	if _, err := s.loadForActor(ctx, actor, requestID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	cancelled, err := s.store.Execute(ctx, requestID,
		func(r *models.Request) error { return r.CanCancel(actor.ID, actor.Email) },
		func(r *models.Request) { r.ApplyCancel(now) },
	)
	if err != nil {
		return nil, wrapRequestErr(err)
	}

	s.logAudit(ctx, audit.EventRequestCancelled, requestID, nil)
	s.metrics.IncrementRequestsSettled("cancelled")
	return cancelled, nil
}

// UpdateParams carries the mutable fields of a pending request. Nil means
// keep the stored value.
type UpdateParams struct {
	Label      *string
	Notes      *string
	Categories []string
}

// Update edits a pending request. Requester-only; target is immutable.
func (s *Service) Update(ctx context.Context, actor Actor, requestID id.RequestID, p UpdateParams) (*models.Request, error) {
	var label *string
	if p.Label != nil {
		canonical, err := validate.Title(*p.Label)
		if err != nil {
			return nil, err
		}
		label = &canonical
	}
	var notes *string
	if p.Notes != nil {
		trimmed := strings.TrimSpace(*p.Notes)
		if len([]rune(trimmed)) > notesMaxLen {
			return nil, dErrors.Newf(dErrors.CodeValidation, "notes must be %d characters or less", notesMaxLen)
		}
		notes = &trimmed
	}
	var categories []id.InformationCategory
	if len(p.Categories) > 0 {
		parsed, err := id.ParseCategorySet(p.Categories)
		if err != nil {
			return nil, err
		}
		categories = parsed
	}

	if _, err := s.loadForActor(ctx, actor, requestID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	updated, err := s.store.Execute(ctx, requestID,
		func(r *models.Request) error { return r.CanUpdate(actor.ID) },
		func(r *models.Request) { r.ApplyUpdate(label, notes, categories, now) },
	)
	if err != nil {
		return nil, wrapRequestErr(err)
	}

	s.logAudit(ctx, audit.EventRequestUpdated, requestID, nil)
	return updated, nil
}

// ListInbox returns the requests addressed to the actor, newest first.
func (s *Service) ListInbox(ctx context.Context, actor Actor) ([]*models.Request, error) {
	requests, err := s.store.ListForTarget(ctx, actor.ID, actor.Email)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requests")
	}
	return requests, nil
}

// ListOutbox returns the requests the actor sent, newest first.
func (s *Service) ListOutbox(ctx context.Context, actor Actor) ([]*models.Request, error) {
	requests, err := s.store.ListByRequester(ctx, actor.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requests")
	}
	return requests, nil
}

// CancelAllForUser withdraws every pending request the user is party to.
// Part of the account-deletion cascade; runs in the ambient transaction.
func (s *Service) CancelAllForUser(ctx context.Context, userID id.UserID, now time.Time) (int, error) {
	return s.store.CancelAllForUser(ctx, userID, now)
}

// PurgeUser removes every request the user is party to. Part of the
// hard-deletion cascade.
func (s *Service) PurgeUser(ctx context.Context, userID id.UserID) (int, error) {
	return s.store.PurgeUser(ctx, userID)
}

// loadForActor fetches a request and blurs not-found with no-access.
func (s *Service) loadForActor(ctx context.Context, actor Actor, requestID id.RequestID) (*models.Request, error) {
	r, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	if !r.IsParticipant(actor.ID, actor.Email) {
		return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
	}
	return r, nil
}

// resolveTarget turns the caller-supplied addressing into a Target:
// registered email, then registered screen name, then bare email for a
// target who has not signed up yet.
func (s *Service) resolveTarget(ctx context.Context, requester Actor, identifier string) (models.Target, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.Target{}, dErrors.New(dErrors.CodeValidation, "target is required")
	}

	if isEmailIdentifier(identifier) {
		email, err := validate.Email(identifier)
		if err != nil {
			return models.Target{}, err
		}
		if strings.EqualFold(email, requester.Email) {
			return models.Target{}, dErrors.New(dErrors.CodeValidation, "cannot request information from yourself")
		}
		profile, err := s.users.Lookup(ctx, email)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				// Unregistered target: the request waits on its email.
				return models.Target{Email: email}, nil
			}
			return models.Target{}, err
		}
		return models.Target{UserID: profile.ID, Email: email}, nil
	}

	profile, err := s.users.Lookup(ctx, identifier)
	if err != nil {
		return models.Target{}, err
	}
	if profile.ID == requester.ID {
		return models.Target{}, dErrors.New(dErrors.CodeValidation, "cannot request information from yourself")
	}
	return models.Target{UserID: profile.ID}, nil
}

func isEmailIdentifier(identifier string) bool {
	return !strings.HasPrefix(identifier, "@") && strings.Contains(identifier, "@")
}

// notifyCreated sends the new-request email best-effort. A target addressed
// only by screen name has no address we may use, so delivery is skipped.
func (s *Service) notifyCreated(ctx context.Context, requester Actor, r *models.Request) {
	if s.notify == nil || r.Target.Email == "" {
		s.metrics.IncrementNotification("skipped")
		return
	}

	requesterName := requester.Email
	if u, err := s.users.Get(ctx, requester.ID); err == nil {
		if display := u.DisplayFullName(); display != "" {
			requesterName = display
		}
	}

	if err := s.notify.RequestCreated(ctx, r.Target.Email, requesterName, r.Label, id.CategoryStrings(r.Categories)); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "request notification failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx))
		}
		s.metrics.IncrementNotification("failed")
		return
	}
	s.metrics.IncrementNotification("sent")
}

func wrapRequestErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "request not found")
	}
	if errors.Is(err, sentinel.ErrInvalidState) {
		return dErrors.New(dErrors.CodeConflict, "request is in the wrong state for this operation")
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "request store failure")
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, requestID id.RequestID, metadata map[string]any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(action),
			"event", string(action),
			"log_type", "audit",
			"resource_type", "request",
			"resource_id", requestID.String(),
			"request_id", requestcontext.RequestID(ctx))
	}
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Action:       action,
		ResourceType: "request",
		ResourceID:   requestID.String(),
		Metadata:     metadata,
	})
}
