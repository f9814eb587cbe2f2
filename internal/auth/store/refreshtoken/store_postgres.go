package refreshtoken

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"verikey/internal/auth/models"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
	txcontext "verikey/pkg/platform/tx"
)

const tokenColumns = `token, user_id, device_name, revoked, created_at, expires_at`

// PostgresStore persists refresh tokens in the refresh_tokens table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, t *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.execer(ctx).ExecContext(ctx, query,
		t.Token, t.UserID.String(), t.DeviceName, t.Revoked, t.CreatedAt, t.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token = $1`

	var (
		t       models.RefreshToken
		rawUser string
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, token).Scan(
		&t.Token, &rawUser, &t.DeviceName, &t.Revoked, &t.CreatedAt, &t.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}

	userID, err := id.ParseUserID(rawUser)
	if err != nil {
		return nil, err
	}
	t.UserID = userID
	return &t, nil
}

// Revoke marks one token unusable. The conditional update distinguishes a
// missing token from one already revoked, which rotation treats as replay.
func (s *PostgresStore) Revoke(ctx context.Context, token string) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1 AND NOT revoked`, token)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token = $1)`, token).Scan(&exists); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID id.UserID) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`, userID.String())
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) PurgeUser(ctx context.Context, userID id.UserID) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1`, userID.String())
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return int(affected), nil
}
