package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
)

// ScreenNameChangeInterval is the minimum time between screen name changes.
// The first change after signup is always allowed.
const ScreenNameChangeInterval = 180 * 24 * time.Hour

// User is the aggregate root for an account and its identity profile.
//
// Invariants:
//   - Email and ScreenName are stored in canonical form (validated and
//     lowercased upstream) and are unique among active users. Uniqueness is
//     enforced by partial indexes in the store, not here.
//   - FirstName, LastName and DateOfBirth are self-reported at signup and
//     immutable afterwards except through ApplyVerifiedIdentity.
//   - VerifiedFirstName, VerifiedLastName, VerifiedDateOfBirth, VerifiedAt,
//     VerificationLevel and VerificationMethod are written only by
//     ApplyVerifiedIdentity. IsVerified is true iff VerifiedAt is set.
//   - ScreenName changes at most once per ScreenNameChangeInterval,
//     tracked via LastScreenNameChange.
//   - Anonymize is one-way: an anonymized user is inactive and its email
//     and screen name slots are released for reuse.
//   - CreatedAt is immutable after construction.
//
// Display accessors prefer the verified fields over the self-reported ones,
// so callers rendering a profile never have to pick a side themselves.
type User struct {
	ID              id.UserID  `json:"id"`
	Email           string     `json:"email"`
	ScreenName      string     `json:"screen_name"`
	PasswordHash    string     `json:"-"`
	FirstName       string     `json:"first_name,omitempty"`
	LastName        string     `json:"last_name,omitempty"`
	DateOfBirth     *time.Time `json:"-"`
	Notes           string     `json:"notes,omitempty"`
	ProfileImageURL string     `json:"profile_image_url,omitempty"`

	VerifiedFirstName   string     `json:"-"`
	VerifiedLastName    string     `json:"-"`
	VerifiedDateOfBirth *time.Time `json:"-"`
	VerifiedAt          *time.Time `json:"verified_at,omitempty"`
	VerificationLevel   string     `json:"verification_level,omitempty"`
	VerificationMethod  string     `json:"-"`
	IsVerified          bool       `json:"is_verified"`

	IsActive             bool       `json:"is_active"`
	LastScreenNameChange *time.Time `json:"-"`
	DeletedAt            *time.Time `json:"-"`
	DeletionReason       string     `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"-"`
}

// NewUser constructs an active user. Email, screen name and names must
// already be in canonical validated form; the password must already be
// hashed.
func NewUser(userID id.UserID, email, screenName, passwordHash, firstName, lastName string, dateOfBirth *time.Time, now time.Time) (*User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user id cannot be nil")
	}
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user email cannot be empty")
	}
	if screenName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user screen name cannot be empty")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user password hash cannot be empty")
	}
	return &User{
		ID:           userID,
		Email:        email,
		ScreenName:   screenName,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		DateOfBirth:  dateOfBirth,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// DisplayFirstName returns the verified first name when one exists, falling
// back to the self-reported value.
func (u *User) DisplayFirstName() string {
	if u.VerifiedFirstName != "" {
		return u.VerifiedFirstName
	}
	return u.FirstName
}

// DisplayLastName returns the verified last name when one exists, falling
// back to the self-reported value.
func (u *User) DisplayLastName() string {
	if u.VerifiedLastName != "" {
		return u.VerifiedLastName
	}
	return u.LastName
}

// DisplayFullName joins the display first and last names, tolerating either
// being empty.
func (u *User) DisplayFullName() string {
	return strings.TrimSpace(u.DisplayFirstName() + " " + u.DisplayLastName())
}

// PreferredDateOfBirth returns the verified date of birth when present,
// falling back to the self-reported one. Nil when neither is known.
func (u *User) PreferredDateOfBirth() *time.Time {
	if u.VerifiedDateOfBirth != nil {
		return u.VerifiedDateOfBirth
	}
	return u.DateOfBirth
}

// Age computes the user's age in whole years at the given instant from the
// preferred date of birth. ok is false when no date of birth is known.
func (u *User) Age(now time.Time) (age int, ok bool) {
	dob := u.PreferredDateOfBirth()
	if dob == nil {
		return 0, false
	}
	age = now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return age, true
}

// NextScreenNameChange returns the earliest instant the screen name may be
// changed again. Nil means the user has never changed it and may do so now.
func (u *User) NextScreenNameChange() *time.Time {
	if u.LastScreenNameChange == nil {
		return nil
	}
	next := u.LastScreenNameChange.Add(ScreenNameChangeInterval)
	return &next
}

// CanChangeScreenName checks the change interval.
// Use with ApplyScreenNameChange in Execute callbacks.
func (u *User) CanChangeScreenName(now time.Time) error {
	next := u.NextScreenNameChange()
	if next != nil && now.Before(*next) {
		return dErrors.Newf(dErrors.CodeConflict, "screen name can only be changed once every 180 days, next change available %s", next.UTC().Format("2006-01-02"))
	}
	return nil
}

// ApplyScreenNameChange records a new canonical screen name and starts a new
// change interval. Call CanChangeScreenName first.
func (u *User) ApplyScreenNameChange(screenName string, now time.Time) {
	u.ScreenName = screenName
	u.LastScreenNameChange = &now
	u.UpdatedAt = now
}

// ApplyEmailChange records a new canonical email address.
func (u *User) ApplyEmailChange(email string, now time.Time) {
	u.Email = email
	u.UpdatedAt = now
}

// ApplyNotes replaces the free-form profile notes.
func (u *User) ApplyNotes(notes string, now time.Time) {
	u.Notes = notes
	u.UpdatedAt = now
}

// ApplyProfileImage records the stored profile photo URL. An empty URL
// clears the photo.
func (u *User) ApplyProfileImage(url string, now time.Time) {
	u.ProfileImageURL = url
	u.UpdatedAt = now
}

// VerifiedIdentity carries the identity attributes extracted from an
// approved government-ID review.
type VerifiedIdentity struct {
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Level       string
	Method      string
}

// ApplyVerifiedIdentity marks the user verified and writes the verified
// shadow fields. It is the single path allowed to correct the self-reported
// name and date of birth, so both sets are written together.
func (u *User) ApplyVerifiedIdentity(attrs VerifiedIdentity, now time.Time) {
	u.VerifiedFirstName = attrs.FirstName
	u.VerifiedLastName = attrs.LastName
	u.VerifiedDateOfBirth = attrs.DateOfBirth
	if attrs.FirstName != "" {
		u.FirstName = attrs.FirstName
	}
	if attrs.LastName != "" {
		u.LastName = attrs.LastName
	}
	if attrs.DateOfBirth != nil {
		u.DateOfBirth = attrs.DateOfBirth
	}
	u.IsVerified = true
	u.VerifiedAt = &now
	u.VerificationLevel = attrs.Level
	u.VerificationMethod = attrs.Method
	u.UpdatedAt = now
}

// CanAnonymize checks that the account is still active.
// Use with Anonymize in Execute callbacks.
func (u *User) CanAnonymize() error {
	if !u.IsActive {
		return dErrors.New(dErrors.CodeConflict, "account is already deactivated")
	}
	return nil
}

// Anonymize deactivates the account and scrubs personal data in place. The
// email and screen name are replaced with placeholder values derived from
// the user id so the originals become available for re-registration. The
// row itself survives so keys and requests referencing the user stay
// resolvable.
func (u *User) Anonymize(reason string, now time.Time) {
	short := shortID(u.ID)
	u.Email = fmt.Sprintf("deleted_%s_%s@deleted.local", short, uuid.NewString()[:8])
	u.ScreenName = "deleted_user_" + short
	u.FirstName = ""
	u.LastName = ""
	u.DateOfBirth = nil
	u.Notes = ""
	u.ProfileImageURL = ""
	u.VerifiedFirstName = ""
	u.VerifiedLastName = ""
	u.VerifiedDateOfBirth = nil
	u.VerifiedAt = nil
	u.VerificationLevel = ""
	u.VerificationMethod = ""
	u.IsVerified = false
	u.IsActive = false
	u.DeletedAt = &now
	u.DeletionReason = reason
	u.UpdatedAt = now
}

func shortID(userID id.UserID) string {
	return userID.String()[:8]
}

// PublicProfile is the view of a user exposed to other users in search
// results and target lookups. It never carries email, date of birth or any
// verified shadow data beyond the badge flag.
type PublicProfile struct {
	ID              id.UserID `json:"id"`
	ScreenName      string    `json:"screen_name"`
	FullName        string    `json:"full_name,omitempty"`
	IsVerified      bool      `json:"is_verified"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
}

// PublicProfile projects the user onto its public view.
func (u *User) PublicProfile() PublicProfile {
	return PublicProfile{
		ID:              u.ID,
		ScreenName:      u.ScreenName,
		FullName:        u.DisplayFullName(),
		IsVerified:      u.IsVerified,
		ProfileImageURL: u.ProfileImageURL,
	}
}
