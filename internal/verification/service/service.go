// Package service implements the government-ID verification pipeline:
// document submission, manual review, and on approval the write of verified
// identity attributes back onto the account.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"verikey/internal/audit"
	"verikey/internal/blob"
	identitymodels "verikey/internal/identity/models"
	verificationmetrics "verikey/internal/verification/metrics"
	"verikey/internal/verification/models"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/platform/sentinel"
	"verikey/pkg/requestcontext"
)

const maxDocumentImageBytes = 10 << 20

// verificationLevel is recorded on approved accounts. A single level today;
// the field exists so a lighter-weight tier can join later.
const verificationLevel = "government_id"

// VerificationStore is the persistence contract for verification records.
type VerificationStore interface {
	Create(ctx context.Context, v *models.Verification) error
	GetByID(ctx context.Context, verificationID id.VerificationID) (*models.Verification, error)
	GetLatestByUser(ctx context.Context, userID id.UserID) (*models.Verification, error)
	HasOpenOrApproved(ctx context.Context, userID id.UserID) (bool, error)
	Execute(ctx context.Context, verificationID id.VerificationID, validate func(*models.Verification) error, mutate func(*models.Verification)) (*models.Verification, error)
	PurgeUser(ctx context.Context, userID id.UserID) (int, error)
}

// DocumentStore holds the submitted document images.
type DocumentStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// IdentityWriter applies an approved verification to the account. Satisfied
// by the identity service.
type IdentityWriter interface {
	ApplyVerifiedIdentity(ctx context.Context, userID id.UserID, attrs identitymodels.VerifiedIdentity) (*identitymodels.User, error)
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

// Service is the verification pipeline.
type Service struct {
	store     VerificationStore
	documents DocumentStore
	identity  IdentityWriter
	tx        StoreTx
	logger    *slog.Logger
	metrics   *verificationmetrics.Metrics
	audit     AuditPublisher
}

type serviceConfig struct {
	tx      StoreTx
	logger  *slog.Logger
	metrics *verificationmetrics.Metrics
	audit   AuditPublisher
}

type Option func(cfg *serviceConfig)

func WithStoreTx(tx StoreTx) Option {
	return func(cfg *serviceConfig) { cfg.tx = tx }
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) { cfg.logger = logger }
}

func WithMetrics(m *verificationmetrics.Metrics) Option {
	return func(cfg *serviceConfig) { cfg.metrics = m }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(cfg *serviceConfig) { cfg.audit = publisher }
}

func New(store VerificationStore, documents DocumentStore, identity IdentityWriter, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.tx == nil {
		cfg.tx = passthroughTx{}
	}
	return &Service{
		store:     store,
		documents: documents,
		identity:  identity,
		tx:        cfg.tx,
		logger:    cfg.logger,
		metrics:   cfg.metrics,
		audit:     cfg.audit,
	}
}

// SubmitParams carries a document submission: image data URLs plus the
// identity the user typed in for the reviewer to check against.
type SubmitParams struct {
	DocumentType    string
	FrontImageData  string
	BackImageData   string
	SelfieImageData string
	Manual          models.ManualData
}

// Submit opens a verification. One live submission per user: an open or
// approved record blocks a new one.
func (s *Service) Submit(ctx context.Context, userID id.UserID, p SubmitParams) (*models.Verification, error) {
	docType, err := models.ParseDocumentType(p.DocumentType)
	if err != nil {
		return nil, err
	}

	blocked, err := s.store.HasOpenOrApproved(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing verifications")
	}
	if blocked {
		return nil, dErrors.New(dErrors.CodeConflict, "a verification is already in progress or approved")
	}

	return s.submit(ctx, userID, docType, p)
}

// submit uploads the images and persists the record. Shared by Submit and
// Retry, which differ only in what may already exist.
func (s *Service) submit(ctx context.Context, userID id.UserID, docType models.DocumentType, p SubmitParams) (*models.Verification, error) {
	if p.FrontImageData == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "front document image is required")
	}
	if docType.RequiresBack() && p.BackImageData == "" {
		return nil, dErrors.Newf(dErrors.CodeValidation, "a %s requires a back image", docType)
	}
	if strings.TrimSpace(p.Manual.FirstName) == "" || strings.TrimSpace(p.Manual.LastName) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "first and last name are required")
	}

	now := requestcontext.Now(ctx)
	verificationID := id.NewVerificationID()
	v, err := models.NewVerification(verificationID, userID, docType, models.ManualData{
		FirstName:   strings.TrimSpace(p.Manual.FirstName),
		LastName:    strings.TrimSpace(p.Manual.LastName),
		DateOfBirth: p.Manual.DateOfBirth,
	}, now)
	if err != nil {
		return nil, err
	}

	// The three images upload in parallel; the record is only written once
	// all of them are durable. A failed upload leaves at worst orphaned
	// blobs, never a half-referenced record.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.uploadDocument(gctx, verificationID, userID, "front", p.FrontImageData, &v.FrontImageKey))
	if p.BackImageData != "" {
		g.Go(s.uploadDocument(gctx, verificationID, userID, "back", p.BackImageData, &v.BackImageKey))
	}
	if p.SelfieImageData != "" {
		g.Go(s.uploadDocument(gctx, verificationID, userID, "selfie", p.SelfieImageData, &v.SelfieImageKey))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification")
	}

	s.logAudit(ctx, audit.EventVerificationSubmitted, v.ID, map[string]any{"document_type": docType.String()})
	s.metrics.IncrementSubmissions(docType.String())
	return v, nil
}

func (s *Service) uploadDocument(ctx context.Context, verificationID id.VerificationID, userID id.UserID, side, dataURL string, dest *string) func() error {
	return func() error {
		contentType, data, err := blob.ParseImageDataURL(dataURL, maxDocumentImageBytes)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("verifications/%s/%s/%s%s", userID, verificationID, side, blob.ExtensionFor(contentType))
		if _, err := s.documents.Put(ctx, key, contentType, data); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store document image")
		}
		*dest = key
		return nil
	}
}

// StatusResult is the user-facing view of where their verification stands.
type StatusResult struct {
	Verification *models.Verification
	CanRetry     bool
	NextStep     string
}

// Status reports the user's latest submission with a next-step hint.
func (s *Service) Status(ctx context.Context, userID id.UserID) (*StatusResult, error) {
	v, err := s.store.GetLatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &StatusResult{NextStep: "submit"}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}

	result := &StatusResult{Verification: v}
	switch {
	case v.Status.IsOpen():
		result.NextStep = "wait"
	case v.Status == models.StatusApproved:
		result.NextStep = "done"
	default:
		result.CanRetry = true
		result.NextStep = "retry"
	}
	return result, nil
}

// Retry replaces a rejected submission with a fresh one. The old record is
// kept as superseded for the review trail.
func (s *Service) Retry(ctx context.Context, userID id.UserID, p SubmitParams) (*models.Verification, error) {
	docType, err := models.ParseDocumentType(p.DocumentType)
	if err != nil {
		return nil, err
	}

	latest, err := s.store.GetLatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeConflict, "nothing to retry, submit a verification first")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}
	if latest.Status != models.StatusRejected {
		return nil, dErrors.Newf(dErrors.CodeConflict, "cannot retry a %s verification", latest.Status)
	}

	var v *models.Verification
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.Execute(txCtx, latest.ID,
			func(old *models.Verification) error { return old.CanSupersede() },
			func(old *models.Verification) { old.ApplySupersede() },
		); err != nil {
			return wrapVerificationErr(err)
		}
		submitted, err := s.submit(txCtx, userID, docType, p)
		if err != nil {
			return err
		}
		v = submitted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventVerificationRetried, v.ID, map[string]any{"superseded": latest.ID.String()})
	return v, nil
}

// ReviewDecision is the reviewer's verdict.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

// Review settles an open verification. Approval writes the verified
// attributes onto the account in the same transaction as the status flip,
// so a verified badge always has its approved record behind it.
func (s *Service) Review(ctx context.Context, reviewer string, verificationID id.VerificationID, decision ReviewDecision, notes string) (*models.Verification, error) {
	if strings.TrimSpace(reviewer) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reviewer is required")
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "decision must be approve or reject")
	}

	now := requestcontext.Now(ctx)
	var reviewed *models.Verification
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		v, err := s.store.Execute(txCtx, verificationID,
			func(v *models.Verification) error { return v.CanReview() },
			func(v *models.Verification) {
				if decision == DecisionApprove {
					v.ApplyApprove(reviewer, notes, now)
				} else {
					v.ApplyReject(reviewer, notes, now)
				}
			},
		)
		if err != nil {
			return wrapVerificationErr(err)
		}

		if decision == DecisionApprove {
			if _, err := s.identity.ApplyVerifiedIdentity(txCtx, v.UserID, identitymodels.VerifiedIdentity{
				FirstName:   v.Manual.FirstName,
				LastName:    v.Manual.LastName,
				DateOfBirth: v.Manual.DateOfBirth,
				Level:       verificationLevel,
				Method:      v.DocumentType.String(),
			}); err != nil {
				return err
			}
		}

		reviewed = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := "rejected"
	if decision == DecisionApprove {
		outcome = "approved"
	}
	s.logAudit(ctx, audit.EventVerificationReviewed, verificationID, map[string]any{"outcome": outcome})
	s.metrics.IncrementReviews(outcome)
	return reviewed, nil
}

// PurgeUser removes every verification record for the user. Part of the
// hard-deletion cascade.
func (s *Service) PurgeUser(ctx context.Context, userID id.UserID) (int, error) {
	return s.store.PurgeUser(ctx, userID)
}

func wrapVerificationErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "verification not found")
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "verification store failure")
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, verificationID id.VerificationID, metadata map[string]any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(action),
			"event", string(action),
			"log_type", "audit",
			"resource_type", "verification",
			"resource_id", verificationID.String(),
			"request_id", requestcontext.RequestID(ctx))
	}
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Action:       action,
		ResourceType: "verification",
		ResourceID:   verificationID.String(),
		Metadata:     metadata,
	})
}
