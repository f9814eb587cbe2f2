package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"verikey/internal/audit"
	"verikey/internal/blob"
	"verikey/internal/identity/models"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/requestcontext"
	"verikey/pkg/validate"
)

const (
	notesMaxLen          = 1000
	maxProfilePhotoBytes = 5 << 20
)

// UpdateProfileParams carries the mutable profile fields. Name and date of
// birth are not here on purpose; they only change through
// ApplyVerifiedIdentity.
type UpdateProfileParams struct {
	Notes *string
}

// UpdateProfile updates the free-form profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID id.UserID, p UpdateProfileParams) (*models.User, error) {
	if p.Notes != nil && len([]rune(*p.Notes)) > notesMaxLen {
		return nil, dErrors.Newf(dErrors.CodeValidation, "notes must be %d characters or less", notesMaxLen)
	}

	now := requestcontext.Now(ctx)
	u, err := s.users.Execute(ctx, userID,
		func(u *models.User) error {
			if !u.IsActive {
				return dErrors.New(dErrors.CodeNotFound, "user not found")
			}
			return nil
		},
		func(u *models.User) {
			if p.Notes != nil {
				u.ApplyNotes(strings.TrimSpace(*p.Notes), now)
			}
		},
	)
	if err != nil {
		return nil, wrapUserErr(err)
	}

	s.logAudit(ctx, audit.EventProfileUpdated, "user", userID.String(), nil)
	return u, nil
}

// ChangeEmail moves the account to a new address, enforcing format and
// active-user uniqueness.
func (s *Service) ChangeEmail(ctx context.Context, userID id.UserID, rawEmail string) (*models.User, error) {
	email, err := validate.Email(rawEmail)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	u, err := s.users.Execute(ctx, userID,
		func(u *models.User) error {
			if !u.IsActive {
				return dErrors.New(dErrors.CodeNotFound, "user not found")
			}
			if strings.EqualFold(u.Email, email) {
				return dErrors.New(dErrors.CodeValidation, "new email matches the current one")
			}
			return nil
		},
		func(u *models.User) {
			u.ApplyEmailChange(email, now)
		},
	)
	if err != nil {
		return nil, wrapUserErr(err)
	}

	s.logAudit(ctx, audit.EventEmailChanged, "user", userID.String(), nil)
	return u, nil
}

// ChangeScreenName claims a new screen name, limited to one change per 180
// days. The rejection carries the next-allowed date so clients can show it.
func (s *Service) ChangeScreenName(ctx context.Context, userID id.UserID, rawName string) (*models.User, error) {
	screenName, err := validate.ScreenName(rawName)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	u, err := s.users.Execute(ctx, userID,
		func(u *models.User) error {
			if !u.IsActive {
				return dErrors.New(dErrors.CodeNotFound, "user not found")
			}
			if u.ScreenName == screenName {
				return dErrors.New(dErrors.CodeValidation, "new screen name matches the current one")
			}
			return u.CanChangeScreenName(now)
		},
		func(u *models.User) {
			u.ApplyScreenNameChange(screenName, now)
		},
	)
	if err != nil {
		return nil, wrapUserErr(err)
	}

	s.logAudit(ctx, audit.EventScreenNameChanged, "user", userID.String(), map[string]any{"screen_name": screenName})
	s.metrics.IncrementScreenNameChange()
	return u, nil
}

// SetProfilePhoto decodes a base64 image data URL, stores the bytes in the
// photo store and records the resulting URL on the profile.
func (s *Service) SetProfilePhoto(ctx context.Context, userID id.UserID, dataURL string) (*models.User, error) {
	if s.photos == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "photo storage is not configured")
	}

	contentType, data, err := blob.ParseImageDataURL(dataURL, maxProfilePhotoBytes)
	if err != nil {
		return nil, err
	}

	// Ownership check before the upload so a miss does not leave an orphan
	// object behind.
	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("profiles/%s/%s%s", current.ID, uuid.NewString(), blob.ExtensionFor(contentType))
	url, err := s.photos.Put(ctx, key, contentType, data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store profile photo")
	}

	now := requestcontext.Now(ctx)
	u, err := s.users.Execute(ctx, userID,
		func(u *models.User) error {
			if !u.IsActive {
				return dErrors.New(dErrors.CodeNotFound, "user not found")
			}
			return nil
		},
		func(u *models.User) {
			u.ApplyProfileImage(url, now)
		},
	)
	if err != nil {
		return nil, wrapUserErr(err)
	}

	s.logAudit(ctx, audit.EventProfilePhotoUpdated, "user", userID.String(), nil)
	return u, nil
}

// ApplyVerifiedIdentity writes the verified identity attributes onto the
// account. Only the verification review path calls this.
func (s *Service) ApplyVerifiedIdentity(ctx context.Context, userID id.UserID, attrs models.VerifiedIdentity) (*models.User, error) {
	now := requestcontext.Now(ctx)
	u, err := s.users.Execute(ctx, userID,
		func(u *models.User) error {
			if !u.IsActive {
				return dErrors.New(dErrors.CodeNotFound, "user not found")
			}
			return nil
		},
		func(u *models.User) {
			u.ApplyVerifiedIdentity(attrs, now)
		},
	)
	if err != nil {
		return nil, wrapUserErr(err)
	}

	s.logAudit(ctx, audit.EventVerifiedIdentityApplied, "user", userID.String(), map[string]any{"level": attrs.Level})
	return u, nil
}
