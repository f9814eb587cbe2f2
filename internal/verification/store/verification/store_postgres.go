package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"verikey/internal/verification/models"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
	txcontext "verikey/pkg/platform/tx"
)

const verificationColumns = `id, user_id, document_type, front_image_key, back_image_key,
	selfie_image_key, first_name, last_name, date_of_birth, status, reviewer,
	review_notes, submitted_at, reviewed_at, expires_at`

// PostgresStore persists verification records in the verifications table.
// Writes join an ambient transaction when one is carried in the context,
// which is how a review commits together with the identity update.
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

func (s *PostgresStore) Create(ctx context.Context, v *models.Verification) error {
	query := `
		INSERT INTO verifications (` + verificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.execer(ctx).ExecContext(ctx, query,
		v.ID.String(), v.UserID.String(), v.DocumentType.String(),
		v.FrontImageKey, v.BackImageKey, v.SelfieImageKey,
		v.Manual.FirstName, v.Manual.LastName, nullTime(v.Manual.DateOfBirth),
		v.Status.String(), v.Reviewer, v.ReviewNotes,
		v.SubmittedAt, nullTime(v.ReviewedAt), nullTime(v.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("create verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, verificationID id.VerificationID) (*models.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM verifications WHERE id = $1`
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, verificationID.String()))
}

func (s *PostgresStore) GetLatestByUser(ctx context.Context, userID id.UserID) (*models.Verification, error) {
	query := `
		SELECT ` + verificationColumns + `
		FROM verifications
		WHERE user_id = $1
		ORDER BY submitted_at DESC, id
		LIMIT 1`

	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, userID.String()))
}

func (s *PostgresStore) HasOpenOrApproved(ctx context.Context, userID id.UserID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM verifications
			WHERE user_id = $1
			  AND status IN ('pending', 'processing', 'needs_review', 'approved')
		)`

	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx, query, userID.String()).Scan(&exists); err != nil {
		return false, fmt.Errorf("check open verification: %w", err)
	}
	return exists, nil
}

// Execute runs a validate-then-mutate cycle on one record under a row lock.
// When the context already carries a transaction the row is locked there;
// otherwise a short transaction wraps the cycle.
func (s *PostgresStore) Execute(ctx context.Context, verificationID id.VerificationID, validate func(*models.Verification) error, mutate func(*models.Verification)) (*models.Verification, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, verificationID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("execute verification: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	v, err := s.executeLocked(txcontext.WithTx(ctx, tx), verificationID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("execute verification: commit: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, verificationID id.VerificationID, validate func(*models.Verification) error, mutate func(*models.Verification)) (*models.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM verifications WHERE id = $1 FOR UPDATE`
	v, err := s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, verificationID.String()))
	if err != nil {
		return nil, err
	}
	if err := validate(v); err != nil {
		return nil, err
	}
	mutate(v)
	if err := s.update(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *PostgresStore) update(ctx context.Context, v *models.Verification) error {
	query := `
		UPDATE verifications SET
			status = $2, reviewer = $3, review_notes = $4,
			reviewed_at = $5, expires_at = $6
		WHERE id = $1`

	res, err := s.execer(ctx).ExecContext(ctx, query,
		v.ID.String(), v.Status.String(), v.Reviewer, v.ReviewNotes,
		nullTime(v.ReviewedAt), nullTime(v.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PurgeUser(ctx context.Context, userID id.UserID) (int, error) {
	query := `DELETE FROM verifications WHERE user_id = $1`

	res, err := s.execer(ctx).ExecContext(ctx, query, userID.String())
	if err != nil {
		return 0, fmt.Errorf("purge verifications: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge verifications: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) scanOne(row *sql.Row) (*models.Verification, error) {
	v, err := scanVerification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan verification: %w", err)
	}
	return v, nil
}

func scanVerification(row interface{ Scan(dest ...any) error }) (*models.Verification, error) {
	var (
		v          models.Verification
		rawID      string
		rawUser    string
		rawDoc     string
		rawStatus  string
		dob        sql.NullTime
		reviewedAt sql.NullTime
		expiresAt  sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawUser, &rawDoc, &v.FrontImageKey, &v.BackImageKey,
		&v.SelfieImageKey, &v.Manual.FirstName, &v.Manual.LastName, &dob,
		&rawStatus, &v.Reviewer, &v.ReviewNotes, &v.SubmittedAt, &reviewedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	verificationID, err := id.ParseVerificationID(rawID)
	if err != nil {
		return nil, err
	}
	v.ID = verificationID

	userID, err := id.ParseUserID(rawUser)
	if err != nil {
		return nil, err
	}
	v.UserID = userID

	docType, err := models.ParseDocumentType(rawDoc)
	if err != nil {
		return nil, err
	}
	v.DocumentType = docType

	status, err := models.ParseVerificationStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	v.Status = status

	v.Manual.DateOfBirth = timePtr(dob)
	v.ReviewedAt = timePtr(reviewedAt)
	v.ExpiresAt = timePtr(expiresAt)
	return &v, nil
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
