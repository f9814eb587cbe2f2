package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"verikey/internal/bundle"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
)

// =============================================================================
// ShareableKey Model Test Suite
// =============================================================================

type KeyModelSuite struct {
	suite.Suite
	now time.Time
}

func TestKeyModelSuite(t *testing.T) {
	suite.Run(t, new(KeyModelSuite))
}

func (s *KeyModelSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testBundle() bundle.Bundle {
	return bundle.Bundle{Entries: map[id.InformationCategory]bundle.Value{
		id.CategoryFirstName: bundle.Name("Jane"),
	}}
}

func (s *KeyModelSuite) newKey(viewsAllowed int) *ShareableKey {
	k, err := NewShareableKey(id.NewKeyID(), id.NewUserID(), Recipient{UserID: id.NewUserID()}, "Identity check", testBundle(), viewsAllowed, s.now)
	s.Require().NoError(err)
	return k
}

func (s *KeyModelSuite) TestNewShareableKey() {
	s.Run("starts active with zero views", func() {
		k := s.newKey(2)
		s.Equal(StatusActive, k.Status)
		s.Equal(0, k.ViewsUsed)
		s.Equal(2, k.ViewsAllowed)
	})

	s.Run("non-positive budget falls back to the default", func() {
		s.Equal(DefaultViews, s.newKey(0).ViewsAllowed)
		s.Equal(DefaultViews, s.newKey(-5).ViewsAllowed)
	})

	s.Run("rejects a recipient equal to the creator", func() {
		creator := id.NewUserID()
		_, err := NewShareableKey(id.NewKeyID(), creator, Recipient{UserID: creator}, "Identity check", testBundle(), 2, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects an empty recipient", func() {
		_, err := NewShareableKey(id.NewKeyID(), id.NewUserID(), Recipient{}, "Identity check", testBundle(), 2, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects an empty bundle", func() {
		_, err := NewShareableKey(id.NewKeyID(), id.NewUserID(), Recipient{ShareableLink: true}, "Identity check", bundle.Bundle{}, 2, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *KeyModelSuite) TestDeriveStatus() {
	s.Run("follows the counters", func() {
		s.Equal(StatusActive, DeriveStatus(0, 2, StatusActive))
		s.Equal(StatusActive, DeriveStatus(1, 2, StatusActive))
		s.Equal(StatusViewedOut, DeriveStatus(2, 2, StatusActive))
		s.Equal(StatusViewedOut, DeriveStatus(3, 2, StatusActive))
	})

	s.Run("unlimited budget never exhausts", func() {
		s.Equal(StatusActive, DeriveStatus(5000, UnlimitedViews, StatusActive))
	})

	s.Run("explicit overrides are sticky", func() {
		s.Equal(StatusRevoked, DeriveStatus(2, 2, StatusRevoked))
		s.Equal(StatusRemoved, DeriveStatus(0, 2, StatusRemoved))
	})

	s.Run("a stale viewed_out with budget left recomputes to active", func() {
		s.Equal(StatusActive, DeriveStatus(1, 2, StatusViewedOut))
	})
}

func (s *KeyModelSuite) TestViewLifecycle() {
	k := s.newKey(2)

	s.Require().NoError(k.CanView())
	k.ApplyView(s.now)
	s.Equal(1, k.ViewsUsed)
	s.Equal(StatusActive, k.Status)
	s.Require().NotNil(k.LastViewedAt)

	later := s.now.Add(time.Minute)
	s.Require().NoError(k.CanView())
	k.ApplyView(later)
	s.Equal(2, k.ViewsUsed)
	s.Equal(StatusViewedOut, k.Status)
	s.Equal(later, *k.LastViewedAt)

	err := k.CanView()
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Contains(err.Error(), "viewed_out")
	s.Equal(2, k.ViewsUsed)
}

func (s *KeyModelSuite) TestRevoke() {
	k := s.newKey(2)

	s.Require().NoError(k.CanRevoke())
	k.ApplyRevoke("No longer needed", s.now)
	s.Equal(StatusRevoked, k.Status)

	s.True(dErrors.HasCode(k.CanView(), dErrors.CodeConflict))
	s.True(dErrors.HasCode(k.CanRevoke(), dErrors.CodeConflict))
	s.True(dErrors.HasCode(k.CanRemove(), dErrors.CodeConflict))
}

func (s *KeyModelSuite) TestRemove() {
	s.Run("active key can be removed", func() {
		k := s.newKey(2)
		s.Require().NoError(k.CanRemove())
		k.ApplyRemove(s.now)
		s.Equal(StatusRemoved, k.Status)
	})

	s.Run("viewed_out key can be removed", func() {
		k := s.newKey(1)
		k.ApplyView(s.now)
		s.Require().Equal(StatusViewedOut, k.Status)
		s.NoError(k.CanRemove())
	})

	s.Run("removing twice conflicts", func() {
		k := s.newKey(2)
		k.ApplyRemove(s.now)
		s.True(dErrors.HasCode(k.CanRemove(), dErrors.CodeConflict))
	})
}

func (s *KeyModelSuite) TestDelete() {
	k := s.newKey(2)

	err := k.CanDelete()
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Contains(err.Error(), "revoke it first")

	k.ApplyRevoke("", s.now)
	s.NoError(k.CanDelete())
}

func (s *KeyModelSuite) TestRoleOf() {
	creator := id.NewUserID()
	recipient := id.NewUserID()
	stranger := id.NewUserID()

	s.Run("user-bound key", func() {
		k, err := NewShareableKey(id.NewKeyID(), creator, Recipient{UserID: recipient}, "Identity check", testBundle(), 2, s.now)
		s.Require().NoError(err)
		s.Equal(RoleCreator, k.RoleOf(creator, ""))
		s.Equal(RoleRecipient, k.RoleOf(recipient, ""))
		s.Equal(RoleNone, k.RoleOf(stranger, "stranger@example.com"))
	})

	s.Run("email-bound key matches case-insensitively", func() {
		k, err := NewShareableKey(id.NewKeyID(), creator, Recipient{Email: "target@example.com"}, "Identity check", testBundle(), 2, s.now)
		s.Require().NoError(err)
		s.Equal(RoleRecipient, k.RoleOf(stranger, "Target@Example.COM"))
		s.Equal(RoleNone, k.RoleOf(stranger, "other@example.com"))
	})

	s.Run("shareable link treats any non-creator as recipient", func() {
		k, err := NewShareableKey(id.NewKeyID(), creator, Recipient{ShareableLink: true}, "Identity check", testBundle(), 2, s.now)
		s.Require().NoError(err)
		s.Equal(RoleCreator, k.RoleOf(creator, ""))
		s.Equal(RoleRecipient, k.RoleOf(stranger, ""))
	})
}
