package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"verikey/internal/request/models"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/sentinel"
	txcontext "verikey/pkg/platform/tx"
)

const requestColumns = `id, requester_id, target_user_id, target_email, label, notes,
	categories, status, created_at, updated_at, response_at`

// PostgresStore persists requests in the requests table. Writes join an
// ambient transaction when one is carried in the context, which is how the
// fulfillment transition commits together with the minted key.
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

func (s *PostgresStore) Create(ctx context.Context, r *models.Request) error {
	query := `
		INSERT INTO requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.execer(ctx).ExecContext(ctx, query,
		r.ID.String(), r.RequesterID.String(), nullUserID(r.Target.UserID), r.Target.Email,
		r.Label, r.Notes, pq.Array(id.CategoryStrings(r.Categories)), r.Status.String(),
		r.CreatedAt, r.UpdatedAt, nullTime(r.ResponseAt),
	)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, requestID.String()))
}

// Execute runs a validate-then-mutate cycle on one request under a row
// lock. When the context already carries a transaction the row is locked
// there; otherwise a short transaction wraps the cycle.
func (s *PostgresStore) Execute(ctx context.Context, requestID id.RequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, requestID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("execute request: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	r, err := s.executeLocked(txcontext.WithTx(ctx, tx), requestID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("execute request: commit: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, requestID id.RequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1 FOR UPDATE`
	r, err := s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, requestID.String()))
	if err != nil {
		return nil, err
	}
	if err := validate(r); err != nil {
		return nil, err
	}
	mutate(r)
	if err := s.update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) update(ctx context.Context, r *models.Request) error {
	query := `
		UPDATE requests SET
			label = $2, notes = $3, categories = $4, status = $5,
			updated_at = $6, response_at = $7
		WHERE id = $1`

	res, err := s.execer(ctx).ExecContext(ctx, query,
		r.ID.String(), r.Label, r.Notes, pq.Array(id.CategoryStrings(r.Categories)),
		r.Status.String(), r.UpdatedAt, nullTime(r.ResponseAt),
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) HasPendingDuplicate(ctx context.Context, requesterID id.UserID, target models.Target) (bool, error) {
	var (
		query string
		arg   any
	)
	if !target.UserID.IsNil() {
		query = `
			SELECT EXISTS (
				SELECT 1 FROM requests
				WHERE requester_id = $1 AND status = 'pending' AND target_user_id = $2
			)`
		arg = target.UserID.String()
	} else {
		query = `
			SELECT EXISTS (
				SELECT 1 FROM requests
				WHERE requester_id = $1 AND status = 'pending'
				  AND target_email <> '' AND LOWER(target_email) = LOWER($2)
			)`
		arg = target.Email
	}

	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx, query, requesterID.String(), arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("check pending duplicate: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListByRequester(ctx context.Context, requesterID id.UserID) ([]*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE requester_id = $1
		ORDER BY created_at DESC, id`

	return s.list(ctx, query, requesterID.String())
}

func (s *PostgresStore) ListForTarget(ctx context.Context, userID id.UserID, email string) ([]*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE target_user_id = $1 OR (target_email <> '' AND LOWER(target_email) = LOWER($2))
		ORDER BY created_at DESC, id`

	return s.list(ctx, query, userID.String(), email)
}

func (s *PostgresStore) CancelAllForUser(ctx context.Context, userID id.UserID, now time.Time) (int, error) {
	query := `
		UPDATE requests
		SET status = 'cancelled', updated_at = $2
		WHERE status = 'pending' AND (requester_id = $1 OR target_user_id = $1)`

	res, err := s.execer(ctx).ExecContext(ctx, query, userID.String(), now)
	if err != nil {
		return 0, fmt.Errorf("cancel requests: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel requests: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) PurgeUser(ctx context.Context, userID id.UserID) (int, error) {
	query := `DELETE FROM requests WHERE requester_id = $1 OR target_user_id = $1`

	res, err := s.execer(ctx).ExecContext(ctx, query, userID.String())
	if err != nil {
		return 0, fmt.Errorf("purge requests: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge requests: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Request, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("list requests: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (s *PostgresStore) scanOne(row *sql.Row) (*models.Request, error) {
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}
	return r, nil
}

func scanRequest(row interface{ Scan(dest ...any) error }) (*models.Request, error) {
	var (
		r          models.Request
		rawID      string
		rawReq     string
		rawTarget  sql.NullString
		rawCats    pq.StringArray
		rawStatus  string
		responseAt sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawReq, &rawTarget, &r.Target.Email, &r.Label, &r.Notes,
		&rawCats, &rawStatus, &r.CreatedAt, &r.UpdatedAt, &responseAt,
	)
	if err != nil {
		return nil, err
	}

	requestID, err := id.ParseRequestID(rawID)
	if err != nil {
		return nil, err
	}
	r.ID = requestID

	requesterID, err := id.ParseUserID(rawReq)
	if err != nil {
		return nil, err
	}
	r.RequesterID = requesterID

	if rawTarget.Valid {
		targetID, err := id.ParseUserID(rawTarget.String)
		if err != nil {
			return nil, err
		}
		r.Target.UserID = targetID
	}

	status, err := models.ParseRequestStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	r.Status = status

	categories := make([]id.InformationCategory, 0, len(rawCats))
	for _, raw := range rawCats {
		c, err := id.ParseInformationCategory(raw)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	r.Categories = categories

	r.ResponseAt = timePtr(responseAt)
	return &r, nil
}

func nullUserID(userID id.UserID) sql.NullString {
	if userID.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: userID.String(), Valid: true}
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
