package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"verikey/internal/audit"
	identitymetrics "verikey/internal/identity/metrics"
	"verikey/internal/identity/models"
	userstore "verikey/internal/identity/store/user"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	emailaddr "verikey/pkg/email"
	"verikey/pkg/platform/sentinel"
	"verikey/pkg/requestcontext"
	"verikey/pkg/validate"
)

const (
	passwordMinLen = 8
	searchMinLen   = 3
	searchLimit    = 10
)

// UserStore is the persistence contract for accounts.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, userID id.UserID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByScreenName(ctx context.Context, screenName string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, userID id.UserID) error
	SearchByScreenNamePrefix(ctx context.Context, prefix string, limit int) ([]*models.User, error)
	Execute(ctx context.Context, userID id.UserID, validate func(*models.User) error, mutate func(*models.User)) (*models.User, error)
}

// PhotoStore stores profile photos and returns a serving URL.
type PhotoStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// StoreTx runs a function inside one storage transaction carried through the
// context.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// passthroughTx satisfies StoreTx without transactional semantics, for
// memory-store wiring where every store op is already atomic.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// AuditPublisher captures audit events emitted by the service.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// KeyCascader performs the key-side effects of account deletion.
type KeyCascader interface {
	RevokeAllByCreator(ctx context.Context, creatorID id.UserID, reason string, now time.Time) (int, error)
	PurgeUser(ctx context.Context, userID id.UserID) (int, error)
}

// RequestCascader performs the request-side effects of account deletion.
type RequestCascader interface {
	CancelAllForUser(ctx context.Context, userID id.UserID, now time.Time) (int, error)
	PurgeUser(ctx context.Context, userID id.UserID) (int, error)
}

// SessionCascader invalidates issued credentials on account deletion.
type SessionCascader interface {
	RevokeAllForUser(ctx context.Context, userID id.UserID) (int, error)
	PurgeUser(ctx context.Context, userID id.UserID) (int, error)
}

// VerificationCascader removes verification records on hard deletion.
type VerificationCascader interface {
	PurgeUser(ctx context.Context, userID id.UserID) (int, error)
}

// Service orchestrates account lifecycle, authentication checks and profile
// management.
type Service struct {
	users         UserStore
	photos        PhotoStore
	keys          KeyCascader
	requests      RequestCascader
	sessions      SessionCascader
	verifications VerificationCascader
	tx            StoreTx
	logger        *slog.Logger
	metrics       *identitymetrics.Metrics
	audit         AuditPublisher
}

type serviceConfig struct {
	photos        PhotoStore
	keys          KeyCascader
	requests      RequestCascader
	sessions      SessionCascader
	verifications VerificationCascader
	tx            StoreTx
	logger        *slog.Logger
	metrics       *identitymetrics.Metrics
	audit         AuditPublisher
}

type Option func(cfg *serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) { cfg.logger = logger }
}

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(cfg *serviceConfig) { cfg.metrics = m }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(cfg *serviceConfig) { cfg.audit = publisher }
}

func WithPhotoStore(photos PhotoStore) Option {
	return func(cfg *serviceConfig) { cfg.photos = photos }
}

func WithStoreTx(tx StoreTx) Option {
	return func(cfg *serviceConfig) { cfg.tx = tx }
}

// WithDeletionCascades wires the stores touched by DeleteAccount. Nil
// entries are skipped, which keeps partial wiring possible in tests.
func WithDeletionCascades(keys KeyCascader, requests RequestCascader, sessions SessionCascader, verifications VerificationCascader) Option {
	return func(cfg *serviceConfig) {
		cfg.keys = keys
		cfg.requests = requests
		cfg.sessions = sessions
		cfg.verifications = verifications
	}
}

func New(users UserStore, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	tx := cfg.tx
	if tx == nil {
		tx = passthroughTx{}
	}
	return &Service{
		users:         users,
		photos:        cfg.photos,
		keys:          cfg.keys,
		requests:      cfg.requests,
		sessions:      cfg.sessions,
		verifications: cfg.verifications,
		tx:            tx,
		logger:        cfg.logger,
		metrics:       cfg.metrics,
		audit:         cfg.audit,
	}
}

// AttachDeletionCascades wires the stores touched by DeleteAccount after
// construction. The engines that cascade into identity also depend on it,
// so main builds identity first and closes the cycle with this call before
// serving traffic.
func (s *Service) AttachDeletionCascades(keys KeyCascader, requests RequestCascader, sessions SessionCascader, verifications VerificationCascader) {
	s.keys = keys
	s.requests = requests
	s.sessions = sessions
	s.verifications = verifications
}

// RegisterParams carries the signup payload after transport decoding.
type RegisterParams struct {
	Email       string
	Password    string
	ScreenName  string
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
}

// Register creates an account. Names are derived from the email local part
// when the caller supplies none.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*models.User, error) {
	email, err := validate.Email(p.Email)
	if err != nil {
		return nil, err
	}
	if len(p.Password) < passwordMinLen {
		return nil, dErrors.Newf(dErrors.CodeValidation, "password must be at least %d characters", passwordMinLen)
	}
	screenName, err := validate.ScreenName(p.ScreenName)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if p.DateOfBirth != nil && p.DateOfBirth.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "date of birth cannot be in the future")
	}

	firstName := strings.TrimSpace(p.FirstName)
	lastName := strings.TrimSpace(p.LastName)
	if firstName == "" && lastName == "" {
		firstName, lastName = emailaddr.DeriveNameFromEmail(email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	u, err := models.NewUser(id.NewUserID(), email, screenName, string(hash), firstName, lastName, p.DateOfBirth, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.users.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, userstore.ErrEmailTaken):
			return nil, dErrors.New(dErrors.CodeConflict, "an account with this email already exists")
		case errors.Is(err, userstore.ErrScreenNameTaken):
			return nil, dErrors.New(dErrors.CodeConflict, "this screen name is already taken")
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "account already exists")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
		}
	}

	s.logAudit(ctx, audit.EventUserRegistered, "user", u.ID.String(), nil)
	s.metrics.IncrementRegistrations()
	return u, nil
}

// Authenticate verifies credentials against active accounts. Unknown email
// and wrong password fail identically so the response does not leak which
// addresses are registered.
func (s *Service) Authenticate(ctx context.Context, rawEmail, password string) (*models.User, error) {
	email, err := validate.Email(rawEmail)
	if err != nil {
		return nil, s.authFailure(ctx, rawEmail)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.authFailure(ctx, email)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, s.authFailure(ctx, email)
	}

	s.metrics.IncrementAuthAttempt("success")
	return u, nil
}

func (s *Service) authFailure(ctx context.Context, email string) error {
	s.metrics.IncrementAuthAttempt("failure")
	s.logAudit(ctx, audit.EventUserLoginFailed, "user", "", map[string]any{"email": email})
	return dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
}

// Get returns an active user by id.
func (s *Service) Get(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, wrapUserErr(err)
	}
	if !u.IsActive {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return u, nil
}

// PublicProfile returns the public view of a user in any state. Anonymized
// accounts resolve to their placeholder names, so callers rendering old keys
// and requests always get something printable.
func (s *Service) PublicProfile(ctx context.Context, userID id.UserID) (models.PublicProfile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.PublicProfile{}, wrapUserErr(err)
	}
	return u.PublicProfile(), nil
}

// Lookup resolves an identifier to an active user's public profile. The
// identifier is a screen name (with or without a leading @) or an email
// address.
func (s *Service) Lookup(ctx context.Context, identifier string) (models.PublicProfile, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.PublicProfile{}, dErrors.New(dErrors.CodeValidation, "identifier is required")
	}

	var (
		u   *models.User
		err error
	)
	if looksLikeEmail(identifier) {
		var email string
		email, err = validate.Email(identifier)
		if err != nil {
			return models.PublicProfile{}, err
		}
		u, err = s.users.GetByEmail(ctx, email)
	} else {
		var screenName string
		screenName, err = validate.ScreenName(identifier)
		if err != nil {
			return models.PublicProfile{}, err
		}
		u, err = s.users.GetByScreenName(ctx, screenName)
	}
	if err != nil {
		return models.PublicProfile{}, wrapUserErr(err)
	}
	return u.PublicProfile(), nil
}

// Search finds active users whose screen name starts with the query. A
// leading @ is stripped; short queries are rejected to keep enumeration
// expensive.
func (s *Service) Search(ctx context.Context, query string) ([]models.PublicProfile, error) {
	query = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(query), "@"))
	if len([]rune(query)) < searchMinLen {
		return nil, dErrors.Newf(dErrors.CodeValidation, "search query must be at least %d characters", searchMinLen)
	}

	users, err := s.users.SearchByScreenNamePrefix(ctx, query, searchLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search users")
	}

	profiles := make([]models.PublicProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.PublicProfile())
	}
	return profiles, nil
}

// CheckScreenName reports whether a screen name is free to claim and
// returns its canonical form.
func (s *Service) CheckScreenName(ctx context.Context, raw string) (available bool, canonical string, err error) {
	canonical, err = validate.ScreenName(raw)
	if err != nil {
		return false, "", err
	}
	_, err = s.users.GetByScreenName(ctx, canonical)
	if errors.Is(err, sentinel.ErrNotFound) {
		return true, canonical, nil
	}
	if err != nil {
		return false, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to check screen name")
	}
	return false, canonical, nil
}

func looksLikeEmail(identifier string) bool {
	return !strings.HasPrefix(identifier, "@") && strings.Contains(identifier, "@")
}

func wrapUserErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if errors.Is(err, userstore.ErrEmailTaken) {
		return dErrors.New(dErrors.CodeConflict, "an account with this email already exists")
	}
	if errors.Is(err, userstore.ErrScreenNameTaken) {
		return dErrors.New(dErrors.CodeConflict, "this screen name is already taken")
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "user store failure")
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, resourceType, resourceID string, metadata map[string]any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(action),
			"event", string(action),
			"log_type", "audit",
			"resource_type", resourceType,
			"resource_id", resourceID,
			"request_id", requestcontext.RequestID(ctx))
	}
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
	})
}
