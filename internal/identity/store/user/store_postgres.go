package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"verikey/internal/identity/models"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
	txcontext "verikey/pkg/platform/tx"
)

const userColumns = `id, email, screen_name, password_hash, first_name, last_name,
	date_of_birth, notes, profile_image_url,
	verified_first_name, verified_last_name, verified_date_of_birth, verified_at,
	verification_level, verification_method, is_verified,
	is_active, last_screen_name_change, deleted_at, deletion_reason,
	created_at, updated_at`

// PostgresStore persists users in the users table. Writes join an ambient
// transaction when one is carried in the context.
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

func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err := s.execer(ctx).ExecContext(ctx, query, userArgs(u)...)
	if err != nil {
		return translateUserError(err, "create user")
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, userID.String()))
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) AND is_active`
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, email))
}

func (s *PostgresStore) GetByScreenName(ctx context.Context, screenName string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(screen_name) = LOWER($1) AND is_active`
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, screenName))
}

func (s *PostgresStore) Update(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users SET
			email = $2, screen_name = $3, password_hash = $4, first_name = $5, last_name = $6,
			date_of_birth = $7, notes = $8, profile_image_url = $9,
			verified_first_name = $10, verified_last_name = $11, verified_date_of_birth = $12, verified_at = $13,
			verification_level = $14, verification_method = $15, is_verified = $16,
			is_active = $17, last_screen_name_change = $18, deleted_at = $19, deletion_reason = $20,
			updated_at = $21
		WHERE id = $1`

	args := userArgs(u)
	// Drop created_at; it is immutable.
	args = args[:len(args)-2]
	args = append(args, u.UpdatedAt)

	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return translateUserError(err, "update user")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Execute runs a validate-then-mutate cycle on one user under a row lock.
// When the context already carries a transaction the row is locked there;
// otherwise a short transaction wraps the cycle.
func (s *PostgresStore) Execute(ctx context.Context, userID id.UserID, validate func(*models.User) error, mutate func(*models.User)) (*models.User, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, userID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("execute user: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	u, err := s.executeLocked(txcontext.WithTx(ctx, tx), userID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("execute user: commit: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, userID id.UserID, validate func(*models.User) error, mutate func(*models.User)) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	u, err := s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, userID.String()))
	if err != nil {
		return nil, err
	}
	if err := validate(u); err != nil {
		return nil, err
	}
	mutate(u)
	if err := s.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID.String())
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SearchByScreenNamePrefix(ctx context.Context, prefix string, limit int) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(screen_name) LIKE $1 ESCAPE '\' AND is_active
		ORDER BY screen_name
		LIMIT $2`

	rows, err := s.execer(ctx).QueryContext(ctx, query, escapeLike(strings.ToLower(prefix))+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("search users: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) scanOne(row *sql.Row) (*models.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// userArgs flattens a user into the column order of userColumns.
func userArgs(u *models.User) []any {
	return []any{
		u.ID.String(), u.Email, u.ScreenName, u.PasswordHash, u.FirstName, u.LastName,
		nullTime(u.DateOfBirth), u.Notes, u.ProfileImageURL,
		u.VerifiedFirstName, u.VerifiedLastName, nullTime(u.VerifiedDateOfBirth), nullTime(u.VerifiedAt),
		u.VerificationLevel, u.VerificationMethod, u.IsVerified,
		u.IsActive, nullTime(u.LastScreenNameChange), nullTime(u.DeletedAt), u.DeletionReason,
		u.CreatedAt, u.UpdatedAt,
	}
}

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	var (
		u          models.User
		rawID      string
		dob        sql.NullTime
		vdob       sql.NullTime
		vat        sql.NullTime
		lastChange sql.NullTime
		deleted    sql.NullTime
	)
	err := row.Scan(
		&rawID, &u.Email, &u.ScreenName, &u.PasswordHash, &u.FirstName, &u.LastName,
		&dob, &u.Notes, &u.ProfileImageURL,
		&u.VerifiedFirstName, &u.VerifiedLastName, &vdob, &vat,
		&u.VerificationLevel, &u.VerificationMethod, &u.IsVerified,
		&u.IsActive, &lastChange, &deleted, &u.DeletionReason,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	userID, err := id.ParseUserID(rawID)
	if err != nil {
		return nil, err
	}
	u.ID = userID
	u.DateOfBirth = timePtr(dob)
	u.VerifiedDateOfBirth = timePtr(vdob)
	u.VerifiedAt = timePtr(vat)
	u.LastScreenNameChange = timePtr(lastChange)
	u.DeletedAt = timePtr(deleted)
	return &u, nil
}

// translateUserError maps constraint violations onto the store's sentinel
// wrappers so services can tell which identifier collided.
func translateUserError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_email_active_uniq":
			return ErrEmailTaken
		case "users_screen_name_active_uniq":
			return ErrScreenNameTaken
		default:
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
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
