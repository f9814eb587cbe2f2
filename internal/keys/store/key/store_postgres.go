package key

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"verikey/internal/bundle"
	"verikey/internal/keys/models"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
	txcontext "verikey/pkg/platform/tx"
)

const keyColumns = `id, creator_id, recipient_id, recipient_email, is_shareable_link,
	request_id, label, notes, user_data, views_allowed, views_used, status,
	revocation_reason, created_at, updated_at, last_viewed_at`

// PostgresStore persists keys in the shareable_keys table. Writes join an
// ambient transaction when one is carried in the context, so key minting
// commits together with the request transition that caused it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, k *models.ShareableKey) error {
	userData, err := json.Marshal(k.Bundle)
	if err != nil {
		return fmt.Errorf("create key: encode bundle: %w", err)
	}

	query := `
		INSERT INTO shareable_keys (` + keyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = s.execer(ctx).ExecContext(ctx, query,
		k.ID.String(), k.CreatorID.String(), nullUserID(k.Recipient.UserID), k.Recipient.Email, k.Recipient.ShareableLink,
		nullRequestID(k.RequestID), k.Label, k.Notes, userData, k.ViewsAllowed, k.ViewsUsed, k.Status.String(),
		k.RevocationReason, k.CreatedAt, k.UpdatedAt, nullTime(k.LastViewedAt),
	)
	if err != nil {
		return fmt.Errorf("create key: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, keyID id.KeyID) (*models.ShareableKey, error) {
	query := `SELECT ` + keyColumns + ` FROM shareable_keys WHERE id = $1`
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, keyID.String()))
}

// RecordView consumes one view in a single conditional UPDATE. The WHERE
// clause re-checks status and budget inside the statement, so under N
// concurrent callers racing on the last remaining view exactly one row
// mutation succeeds; the losers match no row and surface ErrInvalidState.
// The status flip to viewed_out happens in the same statement, which keeps
// status derivable from the counters at every commit point.
func (s *PostgresStore) RecordView(ctx context.Context, keyID id.KeyID, now time.Time) (*models.ShareableKey, error) {
	query := `
		UPDATE shareable_keys SET
			views_used = views_used + 1,
			status = CASE
				WHEN views_allowed <> $3 AND views_used + 1 >= views_allowed THEN 'viewed_out'
				ELSE status
			END,
			last_viewed_at = $2,
			updated_at = $2
		WHERE id = $1
		  AND status = 'active'
		  AND (views_allowed = $3 OR views_used < views_allowed)
		RETURNING ` + keyColumns

	k, err := scanKey(s.execer(ctx).QueryRowContext(ctx, query, keyID.String(), now, models.UnlimitedViews))
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing key from one that lost the race or is no
		// longer active.
		if _, getErr := s.GetByID(ctx, keyID); getErr != nil {
			return nil, getErr
		}
		return nil, sentinel.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("record view: %w", err)
	}
	return k, nil
}

// Execute runs a validate-then-mutate cycle on one key under a row lock.
// When the context already carries a transaction the row is locked there;
// otherwise a short transaction wraps the cycle.
func (s *PostgresStore) Execute(ctx context.Context, keyID id.KeyID, validate func(*models.ShareableKey) error, mutate func(*models.ShareableKey)) (*models.ShareableKey, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, keyID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("execute key: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	k, err := s.executeLocked(txcontext.WithTx(ctx, tx), keyID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("execute key: commit: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, keyID id.KeyID, validate func(*models.ShareableKey) error, mutate func(*models.ShareableKey)) (*models.ShareableKey, error) {
	query := `SELECT ` + keyColumns + ` FROM shareable_keys WHERE id = $1 FOR UPDATE`
	k, err := s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, keyID.String()))
	if err != nil {
		return nil, err
	}
	if err := validate(k); err != nil {
		return nil, err
	}
	mutate(k)
	if err := s.update(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// update rewrites the mutable columns. The bundle is immutable after
// creation and is deliberately not part of the statement.
func (s *PostgresStore) update(ctx context.Context, k *models.ShareableKey) error {
	query := `
		UPDATE shareable_keys SET
			label = $2, notes = $3, views_allowed = $4, views_used = $5, status = $6,
			revocation_reason = $7, updated_at = $8, last_viewed_at = $9
		WHERE id = $1`

	res, err := s.execer(ctx).ExecContext(ctx, query,
		k.ID.String(), k.Label, k.Notes, k.ViewsAllowed, k.ViewsUsed, k.Status.String(),
		k.RevocationReason, k.UpdatedAt, nullTime(k.LastViewedAt),
	)
	if err != nil {
		return fmt.Errorf("update key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update key: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, keyID id.KeyID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM shareable_keys WHERE id = $1`, keyID.String())
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByCreator(ctx context.Context, creatorID id.UserID, status models.KeyStatus) ([]*models.ShareableKey, error) {
	query := `
		SELECT ` + keyColumns + `
		FROM shareable_keys
		WHERE creator_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id`

	return s.list(ctx, query, creatorID.String(), status.String())
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, userID id.UserID, email string, includeRemoved bool) ([]*models.ShareableKey, error) {
	query := `
		SELECT ` + keyColumns + `
		FROM shareable_keys
		WHERE (recipient_id = $1 OR (recipient_email <> '' AND LOWER(recipient_email) = LOWER($2)))
		  AND ($3 OR status <> 'removed')
		ORDER BY created_at DESC, id`

	return s.list(ctx, query, userID.String(), email, includeRemoved)
}

func (s *PostgresStore) CountNewForRecipient(ctx context.Context, userID id.UserID, email string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM shareable_keys
		WHERE (recipient_id = $1 OR (recipient_email <> '' AND LOWER(recipient_email) = LOWER($2)))
		  AND status = 'active' AND views_used = 0`

	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, userID.String(), email).Scan(&count); err != nil {
		return 0, fmt.Errorf("count new keys: %w", err)
	}
	return count, nil
}

// SweepExhausted is a set-based consistency repair: every active key whose
// counters say it is spent moves to viewed_out. The predicate only matches
// rows whose status diverged from the counters, so repeated and overlapping
// sweeps converge without touching healthy rows.
func (s *PostgresStore) SweepExhausted(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE shareable_keys
		SET status = 'viewed_out', updated_at = $1
		WHERE status = 'active' AND views_allowed <> $2 AND views_used >= views_allowed`

	res, err := s.execer(ctx).ExecContext(ctx, query, now, models.UnlimitedViews)
	if err != nil {
		return 0, fmt.Errorf("sweep exhausted keys: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep exhausted keys: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) RevokeAllByCreator(ctx context.Context, creatorID id.UserID, reason string, now time.Time) (int, error) {
	query := `
		UPDATE shareable_keys
		SET status = 'revoked', revocation_reason = $2, updated_at = $3
		WHERE creator_id = $1 AND status = 'active'`

	res, err := s.execer(ctx).ExecContext(ctx, query, creatorID.String(), reason, now)
	if err != nil {
		return 0, fmt.Errorf("revoke keys by creator: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke keys by creator: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) PurgeUser(ctx context.Context, userID id.UserID) (int, error) {
	query := `DELETE FROM shareable_keys WHERE creator_id = $1 OR recipient_id = $1`

	res, err := s.execer(ctx).ExecContext(ctx, query, userID.String())
	if err != nil {
		return 0, fmt.Errorf("purge keys: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge keys: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.ShareableKey, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.ShareableKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) scanOne(row *sql.Row) (*models.ShareableKey, error) {
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan key: %w", err)
	}
	return k, nil
}

func scanKey(row interface{ Scan(dest ...any) error }) (*models.ShareableKey, error) {
	var (
		k            models.ShareableKey
		rawID        string
		rawCreator   string
		rawRecipient sql.NullString
		rawRequest   sql.NullString
		rawStatus    string
		userData     []byte
		lastViewed   sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawCreator, &rawRecipient, &k.Recipient.Email, &k.Recipient.ShareableLink,
		&rawRequest, &k.Label, &k.Notes, &userData, &k.ViewsAllowed, &k.ViewsUsed, &rawStatus,
		&k.RevocationReason, &k.CreatedAt, &k.UpdatedAt, &lastViewed,
	)
	if err != nil {
		return nil, err
	}

	keyID, err := id.ParseKeyID(rawID)
	if err != nil {
		return nil, err
	}
	k.ID = keyID

	creatorID, err := id.ParseUserID(rawCreator)
	if err != nil {
		return nil, err
	}
	k.CreatorID = creatorID

	if rawRecipient.Valid {
		recipientID, err := id.ParseUserID(rawRecipient.String)
		if err != nil {
			return nil, err
		}
		k.Recipient.UserID = recipientID
	}
	if rawRequest.Valid {
		requestID, err := id.ParseRequestID(rawRequest.String)
		if err != nil {
			return nil, err
		}
		k.RequestID = &requestID
	}

	status, err := models.ParseKeyStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	k.Status = status

	var b bundle.Bundle
	if err := json.Unmarshal(userData, &b); err != nil {
		return nil, fmt.Errorf("decode key bundle: %w", err)
	}
	k.Bundle = b

	k.LastViewedAt = timePtr(lastViewed)
	return &k, nil
}

func nullUserID(userID id.UserID) sql.NullString {
	if userID.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: userID.String(), Valid: true}
}

func nullRequestID(requestID *id.RequestID) sql.NullString {
	if requestID == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: requestID.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
