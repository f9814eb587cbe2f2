//go:build integration

package request_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"verikey/internal/bundle"
	identitymodels "verikey/internal/identity/models"
	userstore "verikey/internal/identity/store/user"
	keymodels "verikey/internal/keys/models"
	keystore "verikey/internal/keys/store/key"
	"verikey/internal/platform/postgres"
	"verikey/internal/request/models"
	requeststore "verikey/internal/request/store/request"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
	"verikey/pkg/testutil/containers"
)

type PostgresRequestStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *requeststore.PostgresStore
	keys     *keystore.PostgresStore
	users    *userstore.PostgresStore
	tx       *postgres.TxRunner

	requester id.UserID
	target    id.UserID
}

func TestPostgresRequestStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRequestStoreSuite))
}

func (s *PostgresRequestStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = requeststore.NewPostgresStore(s.postgres.DB)
	s.keys = keystore.NewPostgresStore(s.postgres.DB)
	s.users = userstore.NewPostgresStore(s.postgres.DB)
	s.tx = postgres.NewTxRunner(s.postgres.DB)
}

func (s *PostgresRequestStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "shareable_keys", "requests", "users"))

	s.requester = s.createUser("mira@example.com", "mira")
	s.target = s.createUser("tomo@example.com", "tomo")
}

func (s *PostgresRequestStoreSuite) createUser(email, screenName string) id.UserID {
	now := time.Now().UTC()
	u := &identitymodels.User{
		ID:           id.NewUserID(),
		Email:        email,
		ScreenName:   screenName,
		PasswordHash: "x",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.Require().NoError(s.users.Create(context.Background(), u))
	return u.ID
}

func (s *PostgresRequestStoreSuite) createRequest() *models.Request {
	now := time.Now().UTC()
	r, err := models.NewRequest(id.NewRequestID(), s.requester,
		models.Target{UserID: s.target, Email: "tomo@example.com"},
		"Quick check", "", []id.InformationCategory{id.CategoryFirstName, id.CategoryAge}, now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), r))
	return r
}

func (s *PostgresRequestStoreSuite) responseKey(r *models.Request) *keymodels.ShareableKey {
	now := time.Now().UTC()
	b := bundle.Bundle{Entries: map[id.InformationCategory]bundle.Value{
		id.CategoryFirstName: bundle.Name("Tomo"),
		id.CategoryAge:       bundle.Age("31"),
	}}
	k, err := keymodels.NewShareableKey(id.NewKeyID(), s.target,
		keymodels.Recipient{UserID: s.requester}, "Response to: Quick check", b, 2, now)
	s.Require().NoError(err)
	k.RequestID = &r.ID
	return k
}

// TestFulfillCommitsRequestAndKeyTogether walks the fulfillment transaction
// the way the service does: request transition and key mint inside one
// RunInTx, both visible after commit.
func (s *PostgresRequestStoreSuite) TestFulfillCommitsRequestAndKeyTogether() {
	ctx := context.Background()
	r := s.createRequest()
	k := s.responseKey(r)
	now := time.Now().UTC()

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.Execute(txCtx, r.ID,
			func(r *models.Request) error { return r.CanFulfill(s.target, "tomo@example.com") },
			func(r *models.Request) { r.ApplyFulfill(now) },
		); err != nil {
			return err
		}
		return s.keys.Create(txCtx, k)
	})
	s.Require().NoError(err)

	fulfilled, err := s.store.GetByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, fulfilled.Status)
	s.NotNil(fulfilled.ResponseAt)

	minted, err := s.keys.GetByID(ctx, k.ID)
	s.Require().NoError(err)
	s.Require().NotNil(minted.RequestID)
	s.Equal(r.ID, *minted.RequestID)
}

// TestFulfillRollsBackOnKeyFailure forces the key insert to fail after the
// request transition; the rollback must leave the request pending with no
// orphaned key row.
func (s *PostgresRequestStoreSuite) TestFulfillRollsBackOnKeyFailure() {
	ctx := context.Background()
	r := s.createRequest()
	k := s.responseKey(r)
	now := time.Now().UTC()

	// A duplicate primary key makes the second insert fail inside the tx.
	s.Require().NoError(s.keys.Create(ctx, s.cloneWithID(k, k.ID)))

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.Execute(txCtx, r.ID,
			func(r *models.Request) error { return r.CanFulfill(s.target, "tomo@example.com") },
			func(r *models.Request) { r.ApplyFulfill(now) },
		); err != nil {
			return err
		}
		return s.keys.Create(txCtx, k)
	})
	s.Require().Error(err)

	still, err := s.store.GetByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, still.Status, "transition must roll back with the failed mint")
	s.Nil(still.ResponseAt)
}

func (s *PostgresRequestStoreSuite) cloneWithID(k *keymodels.ShareableKey, keyID id.KeyID) *keymodels.ShareableKey {
	clone := *k
	clone.ID = keyID
	return &clone
}

// TestFulfillLosesRaceToDeny holds the row lock across the transaction so a
// deny that commits first turns the fulfill into a conflict.
func (s *PostgresRequestStoreSuite) TestFulfillLosesRaceToDeny() {
	ctx := context.Background()
	r := s.createRequest()
	now := time.Now().UTC()

	_, err := s.store.Execute(ctx, r.ID,
		func(r *models.Request) error { return r.CanDeny(s.target, "tomo@example.com") },
		func(r *models.Request) { r.ApplyDeny(now) },
	)
	s.Require().NoError(err)

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.Execute(txCtx, r.ID,
			func(r *models.Request) error { return r.CanFulfill(s.target, "tomo@example.com") },
			func(r *models.Request) { r.ApplyFulfill(now) },
		)
		return err
	})
	s.Require().Error(err)

	final, err := s.store.GetByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDenied, final.Status)
}

func (s *PostgresRequestStoreSuite) TestGetMissingRequest() {
	_, err := s.store.GetByID(context.Background(), id.NewRequestID())
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

// TestDuplicateDetection matches pending requests by bound user id or by
// email, case-insensitively.
func (s *PostgresRequestStoreSuite) TestDuplicateDetection() {
	ctx := context.Background()
	s.createRequest()

	dup, err := s.store.HasPendingDuplicate(ctx, s.requester, models.Target{UserID: s.target})
	s.Require().NoError(err)
	s.True(dup)

	dup, err = s.store.HasPendingDuplicate(ctx, s.requester, models.Target{Email: "TOMO@example.com"})
	s.Require().NoError(err)
	s.True(dup)

	dup, err = s.store.HasPendingDuplicate(ctx, s.requester, models.Target{Email: "other@example.com"})
	s.Require().NoError(err)
	s.False(dup)
}
