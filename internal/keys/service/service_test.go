package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"verikey/internal/audit"
	"verikey/internal/bundle"
	identityservice "verikey/internal/identity/service"
	userstore "verikey/internal/identity/store/user"
	"verikey/internal/keys/models"
	keystore "verikey/internal/keys/store/key"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/requestcontext"
)

// =============================================================================
// Shareable Key Engine Test Suite
// =============================================================================

type KeyServiceSuite struct {
	suite.Suite
	store      *keystore.InMemoryStore
	identity   *identityservice.Service
	auditStore *audit.InMemoryStore
	service    *Service
	now        time.Time

	creator   Actor
	recipient Actor
	stranger  Actor
}

func TestKeyServiceSuite(t *testing.T) {
	suite.Run(t, new(KeyServiceSuite))
}

func (s *KeyServiceSuite) SetupTest() {
	s.store = keystore.NewInMemoryStore()
	s.identity = identityservice.New(userstore.NewInMemoryStore())
	s.auditStore = audit.NewInMemoryStore()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.service = New(s.store, s.identity, WithAuditPublisher(audit.NewPublisher(s.auditStore)))

	s.creator = s.register("creator@example.com", "creator")
	s.recipient = s.register("recipient@example.com", "recipient")
	s.stranger = s.register("stranger@example.com", "stranger")
}

func (s *KeyServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *KeyServiceSuite) register(email, screenName string) Actor {
	u, err := s.identity.Register(s.ctx(), identityservice.RegisterParams{
		Email:      email,
		Password:   "password123",
		ScreenName: screenName,
		FirstName:  "Test",
		LastName:   "User",
	})
	s.Require().NoError(err)
	return Actor{ID: u.ID, Email: u.Email}
}

func (s *KeyServiceSuite) createKey(viewsAllowed int) *models.ShareableKey {
	k, err := s.service.Create(s.ctx(), s.creator, CreateParams{
		RecipientIdentifier: s.recipient.Email,
		Label:               "Identity check",
		Categories:          []string{"firstname", "age"},
		ViewsAllowed:        viewsAllowed,
		Submission:          bundle.Submission{Age: "34"},
	})
	s.Require().NoError(err)
	return k
}

// =============================================================================
// Create Tests
// =============================================================================

func (s *KeyServiceSuite) TestCreate() {
	s.Run("mints an active key bound to a registered recipient", func() {
		k := s.createKey(2)
		s.Equal(models.StatusActive, k.Status)
		s.Equal(0, k.ViewsUsed)
		s.Equal(2, k.ViewsAllowed)
		s.Equal(s.recipient.ID, k.Recipient.UserID)
		s.Equal(bundle.Age("34"), k.Bundle.Entries[id.CategoryAge])
	})

	s.Run("non-positive views budget falls back to the default", func() {
		k := s.createKey(0)
		s.Equal(models.DefaultViews, k.ViewsAllowed)
	})

	s.Run("unregistered email is kept as a bare recipient", func() {
		k, err := s.service.Create(s.ctx(), s.creator, CreateParams{
			RecipientIdentifier: "future.user@example.com",
			Label:               "Identity check",
			Categories:          []string{"firstname"},
		})
		s.Require().NoError(err)
		s.True(k.Recipient.UserID.IsNil())
		s.Equal("future.user@example.com", k.Recipient.Email)
	})

	s.Run("shareable link has no bound recipient", func() {
		k, err := s.service.Create(s.ctx(), s.creator, CreateParams{
			ShareableLink: true,
			Label:         "Open link",
			Categories:    []string{"firstname"},
		})
		s.Require().NoError(err)
		s.True(k.Recipient.ShareableLink)
	})

	s.Run("rejects sharing with yourself", func() {
		_, err := s.service.Create(s.ctx(), s.creator, CreateParams{
			RecipientIdentifier: s.creator.Email,
			Label:               "Identity check",
			Categories:          []string{"firstname"},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects a garbage label", func() {
		_, err := s.service.Create(s.ctx(), s.creator, CreateParams{
			RecipientIdentifier: s.recipient.Email,
			Label:               "aaaaaaaaaaaaaaaaaaaaaaaaa",
			Categories:          []string{"firstname"},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects fullname and firstname together", func() {
		_, err := s.service.Create(s.ctx(), s.creator, CreateParams{
			RecipientIdentifier: s.recipient.Email,
			Label:               "Identity check",
			Categories:          []string{"fullname", "firstname"},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects out-of-range coordinates", func() {
		lat, lng := 91.0, 0.0
		_, err := s.service.Create(s.ctx(), s.creator, CreateParams{
			RecipientIdentifier: s.recipient.Email,
			Label:               "Identity check",
			Categories:          []string{"location"},
			Submission: bundle.Submission{
				Location: &bundle.LocationInput{CityDisplay: "Nowhere", Latitude: &lat, Longitude: &lng},
			},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// RecordView Tests
// =============================================================================

// Scenario: a key with views_allowed=2 permits exactly two recipient views,
// the second flips it to viewed_out, and the third is a state conflict with
// no counter change.
func (s *KeyServiceSuite) TestRecordViewExhaustsBudget() {
	k := s.createKey(2)

	first, err := s.service.RecordView(s.ctx(), s.recipient, k.ID)
	s.Require().NoError(err)
	s.Equal(1, first.ViewsUsed)
	s.Equal(models.StatusActive, first.Status)
	s.Equal(bundle.Age("34"), first.Bundle.Entries[id.CategoryAge])

	second, err := s.service.RecordView(s.ctx(), s.recipient, k.ID)
	s.Require().NoError(err)
	s.Equal(2, second.ViewsUsed)
	s.Equal(models.StatusViewedOut, second.Status)
	// The exhausting view still returns the data.
	s.Equal(bundle.Age("34"), second.Bundle.Entries[id.CategoryAge])

	_, err = s.service.RecordView(s.ctx(), s.recipient, k.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	stored, err := s.service.Get(s.ctx(), s.recipient, k.ID)
	s.Require().NoError(err)
	s.Equal(2, stored.ViewsUsed)
}

// Scenario: N concurrent callers race on the last remaining view; exactly
// one wins and the final counter equals the budget.
func (s *KeyServiceSuite) TestRecordViewConcurrentLastView() {
	k := s.createKey(2)
	_, err := s.service.RecordView(s.ctx(), s.recipient, k.ID)
	s.Require().NoError(err)

	const callers = 16
	var successes, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.RecordView(s.ctx(), s.recipient, k.ID)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(callers-1), conflicts.Load())

	stored, err := s.service.Get(s.ctx(), s.recipient, k.ID)
	s.Require().NoError(err)
	s.Equal(2, stored.ViewsUsed)
	s.Equal(models.StatusViewedOut, stored.Status)
}

func (s *KeyServiceSuite) TestRecordViewAccessControl() {
	k := s.createKey(2)

	s.Run("creator cannot consume views", func() {
		_, err := s.service.RecordView(s.ctx(), s.creator, k.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("stranger gets not found, not forbidden", func() {
		_, err := s.service.RecordView(s.ctx(), s.stranger, k.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("email-bound key is viewable by the matching account", func() {
		emailKey, err := s.service.Create(s.ctx(), s.creator, CreateParams{
			RecipientIdentifier: "Recipient@Example.COM",
			Label:               "Identity check",
			Categories:          []string{"firstname"},
		})
		s.Require().NoError(err)
		_, err = s.service.RecordView(s.ctx(), s.recipient, emailKey.ID)
		s.NoError(err)
	})
}

func (s *KeyServiceSuite) TestShareableLinkBudgetIsPerKey() {
	k, err := s.service.Create(s.ctx(), s.creator, CreateParams{
		ShareableLink: true,
		Label:         "Open link",
		Categories:    []string{"firstname"},
		ViewsAllowed:  2,
	})
	s.Require().NoError(err)

	// Two distinct viewers draw from the same per-key budget.
	_, err = s.service.RecordView(s.ctx(), s.recipient, k.ID)
	s.Require().NoError(err)
	_, err = s.service.RecordView(s.ctx(), s.stranger, k.ID)
	s.Require().NoError(err)

	_, err = s.service.RecordView(s.ctx(), s.recipient, k.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	s.Run("creator still cannot view their own link", func() {
		_, err := s.service.RecordView(s.ctx(), s.creator, k.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *KeyServiceSuite) TestUnlimitedKeyNeverExhausts() {
	k := s.createKey(models.UnlimitedViews)
	for i := 0; i < 5; i++ {
		viewed, err := s.service.RecordView(s.ctx(), s.recipient, k.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, viewed.Status)
	}
}

// =============================================================================
// Revoke / Remove / Delete Tests
// =============================================================================

// Scenario: revoking an unviewed active key terminates it; the recipient's
// next view is rejected regardless of the untouched budget.
func (s *KeyServiceSuite) TestRevoke() {
	k := s.createKey(2)

	revoked, err := s.service.Revoke(s.ctx(), s.creator, k.ID, "Shared by mistake")
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, revoked.Status)
	s.Equal(0, revoked.ViewsUsed)

	_, err = s.service.RecordView(s.ctx(), s.recipient, k.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	s.Run("recipient cannot revoke", func() {
		k2 := s.createKey(2)
		_, err := s.service.Revoke(s.ctx(), s.recipient, k2.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("revoking twice conflicts", func() {
		_, err := s.service.Revoke(s.ctx(), s.creator, k.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *KeyServiceSuite) TestRemove() {
	k := s.createKey(2)

	removed, err := s.service.Remove(s.ctx(), s.recipient, k.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRemoved, removed.Status)

	s.Run("creator cannot remove", func() {
		k2 := s.createKey(2)
		_, err := s.service.Remove(s.ctx(), s.creator, k2.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("removal is archival: metadata stays readable, views stop", func() {
		got, err := s.service.Get(s.ctx(), s.recipient, k.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRemoved, got.Status)

		_, err = s.service.RecordView(s.ctx(), s.recipient, k.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("removed keys are hidden from the default listing", func() {
		listed, err := s.service.ListReceived(s.ctx(), s.recipient, false)
		s.Require().NoError(err)
		for _, listedKey := range listed {
			s.NotEqual(k.ID, listedKey.ID)
		}

		withRemoved, err := s.service.ListReceived(s.ctx(), s.recipient, true)
		s.Require().NoError(err)
		found := false
		for _, listedKey := range withRemoved {
			if listedKey.ID == k.ID {
				found = true
			}
		}
		s.True(found)
	})
}

// Scenario: deleting an active key is rejected with revoke-first guidance;
// after revocation the same delete succeeds.
func (s *KeyServiceSuite) TestDeleteRequiresTerminalState() {
	k := s.createKey(2)

	err := s.service.Delete(s.ctx(), s.creator, k.ID)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Contains(dErrors.MessageOf(err), "revoke it first")

	_, err = s.service.Revoke(s.ctx(), s.creator, k.ID, "")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(s.ctx(), s.creator, k.ID))

	_, err = s.service.Get(s.ctx(), s.creator, k.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *KeyServiceSuite) TestStrangerAccessIsIndistinguishableFromMissing() {
	k := s.createKey(2)

	_, err := s.service.Get(s.ctx(), s.stranger, k.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Revoke(s.ctx(), s.stranger, k.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Remove(s.ctx(), s.stranger, k.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.Delete(s.ctx(), s.stranger, k.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Sweep and Listing Tests
// =============================================================================

func (s *KeyServiceSuite) TestSweepRepairsStaleStatus() {
	k := s.createKey(2)

	// Simulate a row written by a non-atomic past: counters spent, status
	// still active.
	_, err := s.store.Execute(s.ctx(), k.ID,
		func(*models.ShareableKey) error { return nil },
		func(k *models.ShareableKey) { k.ViewsUsed = k.ViewsAllowed },
	)
	s.Require().NoError(err)

	swept, err := s.service.SweepExhausted(s.ctx())
	s.Require().NoError(err)
	s.Equal(1, swept)

	repaired, err := s.service.Get(s.ctx(), s.creator, k.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusViewedOut, repaired.Status)

	s.Run("sweeping again is a no-op", func() {
		swept, err := s.service.SweepExhausted(s.ctx())
		s.Require().NoError(err)
		s.Equal(0, swept)
	})
}

func (s *KeyServiceSuite) TestListings() {
	k := s.createKey(2)

	created, err := s.service.ListCreated(s.ctx(), s.creator, "")
	s.Require().NoError(err)
	s.Len(created, 1)
	s.Equal(k.ID, created[0].ID)

	received, err := s.service.ListReceived(s.ctx(), s.recipient, false)
	s.Require().NoError(err)
	s.Len(received, 1)

	s.Run("status filter applies to created listing", func() {
		_, err := s.service.Revoke(s.ctx(), s.creator, k.ID, "")
		s.Require().NoError(err)

		active, err := s.service.ListCreated(s.ctx(), s.creator, "active")
		s.Require().NoError(err)
		s.Empty(active)

		revoked, err := s.service.ListCreated(s.ctx(), s.creator, "revoked")
		s.Require().NoError(err)
		s.Len(revoked, 1)
	})

	s.Run("unknown status filter is rejected", func() {
		_, err := s.service.ListCreated(s.ctx(), s.creator, "exploded")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *KeyServiceSuite) TestNewCount() {
	count, err := s.service.NewCount(s.ctx(), s.recipient)
	s.Require().NoError(err)
	s.Equal(0, count)

	k := s.createKey(2)
	s.createKey(2)

	count, err = s.service.NewCount(s.ctx(), s.recipient)
	s.Require().NoError(err)
	s.Equal(2, count)

	// A viewed key is no longer "new".
	_, err = s.service.RecordView(s.ctx(), s.recipient, k.ID)
	s.Require().NoError(err)

	count, err = s.service.NewCount(s.ctx(), s.recipient)
	s.Require().NoError(err)
	s.Equal(1, count)
}
