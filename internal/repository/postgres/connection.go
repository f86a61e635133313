package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/internal/repository"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

const connectionColumns = `
	id, user_id, source_kind, status, credentials, failure_message,
	last_sync_started_at, last_sync_failed_at, last_sync_failure,
	created_at, updated_at`

type connectionRepository struct {
	BaseRepository
}

func NewConnectionRepository(base BaseRepository) repository.ConnectionRepository {
	return &connectionRepository{base}
}

func (r *connectionRepository) Get(ctx context.Context, userID uuid.UUID, kind model.SourceKind) (*model.IntegrationConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM integration_connections
		WHERE user_id = $1 AND source_kind = $2
	`
	var conn model.IntegrationConnection
	if err := r.db.GetContext(ctx, &conn, query, userID, kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("integration connection", err)
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, nil
}

func (r *connectionRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.IntegrationConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM integration_connections
		WHERE user_id = $1
		ORDER BY source_kind ASC
	`
	var conns []*model.IntegrationConnection
	if err := r.db.SelectContext(ctx, &conns, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

func (r *connectionRepository) ListSyncable(ctx context.Context) ([]*model.IntegrationConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM integration_connections
		WHERE status = $1
		ORDER BY user_id, source_kind
	`
	var conns []*model.IntegrationConnection
	if err := r.db.SelectContext(ctx, &conns, query, model.ConnectionStatusValidated); err != nil {
		return nil, fmt.Errorf("failed to list syncable connections: %w", err)
	}
	return conns, nil
}

func (r *connectionRepository) MarkSyncStarted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE integration_connections
		SET last_sync_started_at = $1, updated_at = $1
		WHERE id = $2
	`
	return r.exec(ctx, query, time.Now(), id)
}

func (r *connectionRepository) RecordSyncFailure(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE integration_connections
		SET last_sync_failed_at = $1, last_sync_failure = $2, updated_at = $1
		WHERE id = $3
	`
	return r.exec(ctx, query, time.Now(), reason, id)
}

func (r *connectionRepository) ClearSyncFailure(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE integration_connections
		SET last_sync_failed_at = NULL, last_sync_failure = NULL, updated_at = $1
		WHERE id = $2
	`
	return r.exec(ctx, query, time.Now(), id)
}

func (r *connectionRepository) MarkFailing(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE integration_connections
		SET status = $1, failure_message = $2, updated_at = $3
		WHERE id = $4
	`
	return r.exec(ctx, query, model.ConnectionStatusFailing, reason, time.Now(), id)
}

func (r *connectionRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.ConnectionStatus) error {
	query := `
		UPDATE integration_connections
		SET status = $1, failure_message = NULL, updated_at = $2
		WHERE id = $3
	`
	return r.exec(ctx, query, status, time.Now(), id)
}

func (r *connectionRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("integration connection", nil)
	}
	return nil
}
