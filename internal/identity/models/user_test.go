package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
)

func newTestUser(t *testing.T) *User {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	u, err := NewUser(id.NewUserID(), "jane.doe@example.com", "janedoe", "hashed", "Jane", "Doe", nil, now)
	require.NoError(t, err)
	return u
}

func TestNewUser(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid input returns active user", func(t *testing.T) {
		u, err := NewUser(id.NewUserID(), "jane.doe@example.com", "janedoe", "hashed", "Jane", "Doe", nil, now)
		require.NoError(t, err)
		assert.True(t, u.IsActive)
		assert.False(t, u.IsVerified)
		assert.Equal(t, "jane.doe@example.com", u.Email)
		assert.Equal(t, "janedoe", u.ScreenName)
		assert.Equal(t, now, u.CreatedAt)
		assert.Nil(t, u.LastScreenNameChange)
		assert.Nil(t, u.DeletedAt)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		cases := []struct {
			name   string
			email  string
			screen string
			hash   string
		}{
			{"empty email", "", "janedoe", "hashed"},
			{"empty screen name", "jane@example.com", "", "hashed"},
			{"empty password hash", "jane@example.com", "janedoe", ""},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewUser(id.NewUserID(), tc.email, tc.screen, tc.hash, "", "", nil, now)
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
			})
		}
	})

	t.Run("rejects nil user id", func(t *testing.T) {
		_, err := NewUser(id.UserID{}, "jane@example.com", "janedoe", "hashed", "", "", nil, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestUserDisplayNames(t *testing.T) {
	t.Run("self-reported names by default", func(t *testing.T) {
		u := newTestUser(t)
		assert.Equal(t, "Jane", u.DisplayFirstName())
		assert.Equal(t, "Doe", u.DisplayLastName())
		assert.Equal(t, "Jane Doe", u.DisplayFullName())
	})

	t.Run("verified names take precedence", func(t *testing.T) {
		u := newTestUser(t)
		u.VerifiedFirstName = "Janet"
		u.VerifiedLastName = "Doeson"
		assert.Equal(t, "Janet", u.DisplayFirstName())
		assert.Equal(t, "Janet Doeson", u.DisplayFullName())
	})

	t.Run("tolerates partially empty names", func(t *testing.T) {
		u := newTestUser(t)
		u.LastName = ""
		assert.Equal(t, "Jane", u.DisplayFullName())
		u.FirstName = ""
		assert.Equal(t, "", u.DisplayFullName())
	})
}

func TestUserAge(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("no date of birth", func(t *testing.T) {
		u := newTestUser(t)
		_, ok := u.Age(now)
		assert.False(t, ok)
	})

	t.Run("birthday already passed this year", func(t *testing.T) {
		u := newTestUser(t)
		dob := time.Date(1990, 3, 10, 0, 0, 0, 0, time.UTC)
		u.DateOfBirth = &dob
		age, ok := u.Age(now)
		require.True(t, ok)
		assert.Equal(t, 35, age)
	})

	t.Run("birthday later this year", func(t *testing.T) {
		u := newTestUser(t)
		dob := time.Date(1990, 11, 2, 0, 0, 0, 0, time.UTC)
		u.DateOfBirth = &dob
		age, ok := u.Age(now)
		require.True(t, ok)
		assert.Equal(t, 34, age)
	})

	t.Run("birthday today counts the new year", func(t *testing.T) {
		u := newTestUser(t)
		dob := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
		u.DateOfBirth = &dob
		age, ok := u.Age(now)
		require.True(t, ok)
		assert.Equal(t, 35, age)
	})

	t.Run("verified date of birth preferred", func(t *testing.T) {
		u := newTestUser(t)
		selfReported := time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC)
		verified := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
		u.DateOfBirth = &selfReported
		u.VerifiedDateOfBirth = &verified
		age, ok := u.Age(now)
		require.True(t, ok)
		assert.Equal(t, 35, age)
	})
}

func TestScreenNameChange(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("first change always allowed", func(t *testing.T) {
		u := newTestUser(t)
		assert.Nil(t, u.NextScreenNameChange())
		assert.NoError(t, u.CanChangeScreenName(now))
	})

	t.Run("second change inside the interval rejected", func(t *testing.T) {
		u := newTestUser(t)
		u.ApplyScreenNameChange("janed", now)
		assert.Equal(t, "janed", u.ScreenName)

		err := u.CanChangeScreenName(now.Add(24 * time.Hour))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		assert.Contains(t, err.Error(), "180 days")
	})

	t.Run("next change date is interval after the last change", func(t *testing.T) {
		u := newTestUser(t)
		u.ApplyScreenNameChange("janed", now)
		next := u.NextScreenNameChange()
		require.NotNil(t, next)
		assert.Equal(t, now.Add(ScreenNameChangeInterval), *next)
	})

	t.Run("change allowed after the interval elapses", func(t *testing.T) {
		u := newTestUser(t)
		u.ApplyScreenNameChange("janed", now)
		assert.NoError(t, u.CanChangeScreenName(now.Add(ScreenNameChangeInterval)))
	})
}

func TestApplyVerifiedIdentity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dob := time.Date(1990, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("writes shadow fields and corrects self-reported ones", func(t *testing.T) {
		u := newTestUser(t)
		u.ApplyVerifiedIdentity(VerifiedIdentity{
			FirstName:   "Janet",
			LastName:    "Doeson",
			DateOfBirth: &dob,
			Level:       "government_id",
			Method:      "manual_review",
		}, now)

		assert.True(t, u.IsVerified)
		require.NotNil(t, u.VerifiedAt)
		assert.Equal(t, now, *u.VerifiedAt)
		assert.Equal(t, "Janet", u.VerifiedFirstName)
		assert.Equal(t, "Janet", u.FirstName)
		assert.Equal(t, "Doeson", u.LastName)
		require.NotNil(t, u.DateOfBirth)
		assert.Equal(t, dob, *u.DateOfBirth)
		assert.Equal(t, "government_id", u.VerificationLevel)
	})

	t.Run("empty attributes keep self-reported values", func(t *testing.T) {
		u := newTestUser(t)
		u.ApplyVerifiedIdentity(VerifiedIdentity{Level: "government_id"}, now)
		assert.True(t, u.IsVerified)
		assert.Equal(t, "Jane", u.FirstName)
		assert.Nil(t, u.DateOfBirth)
	})
}

func TestAnonymize(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("scrubs personal data and deactivates", func(t *testing.T) {
		u := newTestUser(t)
		dob := time.Date(1990, 3, 10, 0, 0, 0, 0, time.UTC)
		u.DateOfBirth = &dob
		u.Notes = "about me"
		u.ProfileImageURL = "https://cdn.example.com/p.jpg"
		u.ApplyVerifiedIdentity(VerifiedIdentity{FirstName: "Janet"}, now)

		require.NoError(t, u.CanAnonymize())
		u.Anonymize("User requested account deletion", now)

		short := u.ID.String()[:8]
		assert.True(t, strings.HasPrefix(u.Email, "deleted_"+short+"_"))
		assert.True(t, strings.HasSuffix(u.Email, "@deleted.local"))
		assert.Equal(t, "deleted_user_"+short, u.ScreenName)
		assert.Empty(t, u.FirstName)
		assert.Empty(t, u.LastName)
		assert.Nil(t, u.DateOfBirth)
		assert.Empty(t, u.Notes)
		assert.Empty(t, u.ProfileImageURL)
		assert.False(t, u.IsVerified)
		assert.Nil(t, u.VerifiedAt)
		assert.False(t, u.IsActive)
		require.NotNil(t, u.DeletedAt)
		assert.Equal(t, now, *u.DeletedAt)
		assert.Equal(t, "User requested account deletion", u.DeletionReason)
	})

	t.Run("cannot anonymize twice", func(t *testing.T) {
		u := newTestUser(t)
		u.Anonymize("User requested account deletion", now)
		err := u.CanAnonymize()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
