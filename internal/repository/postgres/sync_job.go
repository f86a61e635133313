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

const syncJobColumns = `
	id, user_id, source_kind, trigger, status, attempts, max_attempts,
	not_before, last_error, enqueued_at, started_at, finished_at`

type syncJobRepository struct {
	BaseRepository
}

func NewSyncJobRepository(base BaseRepository) repository.SyncJobRepository {
	return &syncJobRepository{base}
}

func (r *syncJobRepository) Create(ctx context.Context, job *model.SyncJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Status = model.JobStatusQueued
	job.EnqueuedAt = time.Now()

	query := `
		INSERT INTO sync_jobs (` + syncJobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := r.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.SourceKind, job.Trigger, job.Status,
		job.Attempts, job.MaxAttempts, job.NotBefore, job.LastError,
		job.EnqueuedAt, job.StartedAt, job.FinishedAt,
	); err != nil {
		return mapWriteError("insert sync job", err)
	}
	return nil
}

func (r *syncJobRepository) Get(ctx context.Context, id uuid.UUID) (*model.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE id = $1`
	var job model.SyncJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("sync job", err)
		}
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}
	return &job, nil
}

func (r *syncJobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sync_jobs
		SET status = $1, attempts = attempts + 1, started_at = $2
		WHERE id = $3
	`
	return r.exec(ctx, query, model.JobStatusRunning, time.Now(), id)
}

func (r *syncJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sync_jobs
		SET status = $1, finished_at = $2, last_error = NULL
		WHERE id = $3
	`
	return r.exec(ctx, query, model.JobStatusCompleted, time.Now(), id)
}

func (r *syncJobRepository) MarkRequeued(ctx context.Context, id uuid.UUID, lastError string, notBefore time.Time) error {
	query := `
		UPDATE sync_jobs
		SET status = $1, last_error = $2, not_before = $3
		WHERE id = $4
	`
	return r.exec(ctx, query, model.JobStatusQueued, lastError, notBefore, id)
}

func (r *syncJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `
		UPDATE sync_jobs
		SET status = $1, last_error = $2, finished_at = $3
		WHERE id = $4
	`
	return r.exec(ctx, query, model.JobStatusFailed, lastError, time.Now(), id)
}

func (r *syncJobRepository) MarkDeadLettered(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `
		UPDATE sync_jobs
		SET status = $1, last_error = $2, finished_at = $3
		WHERE id = $4 AND status <> $1
	`
	return r.exec(ctx, query, model.JobStatusDeadLettered, lastError, time.Now(), id)
}

func (r *syncJobRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM sync_jobs
		WHERE status IN ($1, $2) AND finished_at < $3
	`
	result, err := r.db.ExecContext(ctx, query, model.JobStatusCompleted, model.JobStatusFailed, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished jobs: %w", err)
	}
	return result.RowsAffected()
}

func (r *syncJobRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("sync job", nil)
	}
	return nil
}
