package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	id "verikey/pkg/domain"
)

// PostgresList persists revocations in the revoked_tokens table. Entries
// past expires_at are treated as absent; a periodic DELETE keeps the table
// from growing, but correctness never depends on it.
type PostgresList struct {
	db    *sql.DB
	clock func() time.Time
}

type PostgresListOption func(*PostgresList)

// WithClock overrides the list's clock for tests.
func WithClock(clock func() time.Time) PostgresListOption {
	return func(l *PostgresList) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func NewPostgresList(db *sql.DB, opts ...PostgresListOption) *PostgresList {
	l := &PostgresList{
		db:    db,
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *PostgresList) Revoke(ctx context.Context, tokenID id.TokenID, userID id.UserID, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}

	now := l.clock()
	query := `
		INSERT INTO revoked_tokens (jti, user_id, revoked_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO UPDATE SET expires_at = EXCLUDED.expires_at`

	var user any
	if !userID.IsNil() {
		user = userID.String()
	}
	if _, err := l.db.ExecContext(ctx, query, tokenID.String(), user, now, now.Add(ttl)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (l *PostgresList) IsTokenRevoked(ctx context.Context, tokenID id.TokenID) (bool, error) {
	var expiresAt time.Time
	err := l.db.QueryRowContext(ctx,
		`SELECT expires_at FROM revoked_tokens WHERE jti = $1`, tokenID.String()).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return !l.clock().After(expiresAt), nil
}

// DeleteExpired drops aged-out entries. Housekeeping only.
func (l *PostgresList) DeleteExpired(ctx context.Context) (int, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at <= $1`, l.clock())
	if err != nil {
		return 0, fmt.Errorf("delete expired revocations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired revocations: %w", err)
	}
	return int(affected), nil
}
