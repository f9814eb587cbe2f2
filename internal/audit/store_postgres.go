package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "verikey/pkg/domain"
	txcontext "verikey/pkg/platform/tx"
)

// PostgresStore appends events to the audit_events table. Appends join an
// ambient transaction when one is carried in the context, so an audit row
// commits or rolls back with the action it records.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	var actorID sql.NullString
	if event.ActorID != "" {
		actorID = sql.NullString{String: event.ActorID, Valid: true}
	}

	query := `
		INSERT INTO audit_events (id, actor_id, action, resource_type, resource_id,
			request_id, client_ip, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.NewString(), actorID, string(event.Action), event.ResourceType, event.ResourceID,
		event.RequestID, event.ClientIP, event.UserAgent, metadataJSON, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByActor(ctx context.Context, actorID id.UserID, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT actor_id, action, resource_type, resource_id,
			request_id, client_ip, user_agent, metadata, created_at
		FROM audit_events
		WHERE actor_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.execer(ctx).QueryContext(ctx, query, actorID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			actor    sql.NullString
			action   string
			metadata []byte
		)
		if err := rows.Scan(&actor, &action, &e.ResourceType, &e.ResourceID,
			&e.RequestID, &e.ClientIP, &e.UserAgent, &metadata, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ActorID = actor.String
		e.Action = AuditEvent(action)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
