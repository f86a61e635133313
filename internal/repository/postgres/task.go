package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/internal/repository"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

const taskColumns = `
	id, user_id, title, body, status, priority, due_at, project,
	third_party_item_id, source_updated_at, created_at, updated_at`

type taskRepository struct {
	BaseRepository
}

func NewTaskRepository(base BaseRepository) repository.TaskRepository {
	return &taskRepository{base}
}

// UpsertFromThirdParty mirrors the notification upsert: savepoint per
// call so a unique violation does not poison the batch transaction.
func (r *taskRepository) UpsertFromThirdParty(ctx context.Context, tx *sqlx.Tx, userID, itemID uuid.UUID, draft *model.TaskDraft) (*model.Task, bool, error) {
	var (
		t       *model.Task
		changed bool
	)
	err := r.withSavepoint(ctx, tx, "upsert_task", func() error {
		var err error
		t, changed, err = r.upsertFromThirdParty(ctx, tx, userID, itemID, draft)
		return err
	})
	r.countOp("upsert_task", err)
	if err != nil {
		return nil, false, err
	}
	return t, changed, nil
}

func (r *taskRepository) upsertFromThirdParty(ctx context.Context, tx *sqlx.Tx, userID, itemID uuid.UUID, draft *model.TaskDraft) (*model.Task, bool, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1 AND third_party_item_id = $2 AND status <> $3
		FOR UPDATE
	`
	var existing model.Task
	err := tx.GetContext(ctx, &existing, query, userID, itemID, model.TaskStatusDeleted)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to look up task: %w", err)
		}
		created, err := r.insertFromDraft(ctx, tx, userID, itemID, draft)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	}

	status := model.ResolveTaskStatus(&existing, draft)
	sourceAdvanced := draft.SourceUpdatedAt.After(existing.SourceUpdatedAt)

	title, body, priority, project := existing.Title, existing.Body, existing.Priority, existing.Project
	dueAt := existing.DueAt
	if sourceAdvanced {
		title = draft.Title
		body = draft.Body
		priority = draft.Priority
		project = draft.Project
		if draft.DueAt.IsSet() {
			if v, ok := draft.DueAt.Get(); ok {
				dueAt = &v
			} else {
				dueAt = nil
			}
		}
	}

	if !sourceAdvanced && status == existing.Status {
		return &existing, false, nil
	}

	update := `
		UPDATE tasks
		SET title = $1, body = $2, status = $3, priority = $4, due_at = $5,
			project = $6, source_updated_at = $7, updated_at = $8
		WHERE id = $9
	`
	now := time.Now()
	if _, err := tx.ExecContext(ctx, update,
		title, body, status, priority, dueAt, project,
		maxTime(existing.SourceUpdatedAt, draft.SourceUpdatedAt), now,
		existing.ID,
	); err != nil {
		return nil, false, mapWriteError("update task", err)
	}

	existing.Title = title
	existing.Body = body
	existing.Status = status
	existing.Priority = priority
	existing.DueAt = dueAt
	existing.Project = project
	existing.UpdatedAt = now
	return &existing, true, nil
}

func (r *taskRepository) insertFromDraft(ctx context.Context, tx *sqlx.Tx, userID, itemID uuid.UUID, draft *model.TaskDraft) (*model.Task, error) {
	t := &model.Task{
		ID:               uuid.New(),
		UserID:           userID,
		Title:            draft.Title,
		Body:             draft.Body,
		Status:           draft.Status,
		Priority:         draft.Priority,
		DueAt:            draft.DueAt.Ptr(),
		Project:          draft.Project,
		ThirdPartyItemID: &itemID,
		SourceUpdatedAt:  draft.SourceUpdatedAt,
		CreatedAt:        time.Now(),
	}
	t.UpdatedAt = t.CreatedAt

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := tx.ExecContext(ctx, query,
		t.ID, t.UserID, t.Title, t.Body, t.Status, t.Priority, t.DueAt,
		t.Project, t.ThirdPartyItemID, t.SourceUpdatedAt, t.CreatedAt, t.UpdatedAt,
	); err != nil {
		return nil, mapWriteError("insert task", err)
	}
	return t, nil
}

// Create persists a user-created task with no source item behind it.
func (r *taskRepository) Create(ctx context.Context, task *model.Task) error {
	task.ID = uuid.New()
	if task.Status == "" {
		task.Status = model.TaskStatusActive
	}
	if task.Priority == 0 {
		task.Priority = model.PriorityP4
	}
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := r.db.ExecContext(ctx, query,
		task.ID, task.UserID, task.Title, task.Body, task.Status, task.Priority,
		task.DueAt, task.Project, task.ThirdPartyItemID, task.SourceUpdatedAt,
		task.CreatedAt, task.UpdatedAt,
	); err != nil {
		return mapWriteError("insert task", err)
	}
	return nil
}

// Patch applies a user edit. A terminal task is never resurrected
// unless the patch carries an explicit status.
func (r *taskRepository) Patch(ctx context.Context, id uuid.UUID, patch *model.TaskPatch) (*model.Task, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status.Terminal() && !patch.Status.IsSet() {
		return nil, apperrors.Conflict(
			fmt.Sprintf("task is %s; reopen it explicitly before editing", existing.Status), nil)
	}

	var sets []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if v, ok := patch.Title.Get(); ok {
		sets = append(sets, "title = "+arg(v))
	}
	if v, ok := patch.Body.Get(); ok {
		sets = append(sets, "body = "+arg(v))
	}
	if v, ok := patch.Status.Get(); ok {
		sets = append(sets, "status = "+arg(v))
	}
	if v, ok := patch.Priority.Get(); ok {
		sets = append(sets, "priority = "+arg(v))
	}
	if patch.DueAt.IsSet() {
		if v, ok := patch.DueAt.Get(); ok {
			sets = append(sets, "due_at = "+arg(v))
		} else {
			sets = append(sets, "due_at = NULL")
		}
	}
	if v, ok := patch.Project.Get(); ok {
		sets = append(sets, "project = "+arg(v))
	}
	if len(sets) == 0 {
		return existing, nil
	}

	sets = append(sets, "updated_at = "+arg(time.Now()))
	query := fmt.Sprintf(
		`UPDATE tasks SET %s WHERE id = %s RETURNING `+taskColumns,
		strings.Join(sets, ", "), arg(id))

	var t model.Task
	if err := r.db.GetContext(ctx, &t, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("task", err)
		}
		return nil, mapWriteError("patch task", err)
	}
	return &t, nil
}

func (r *taskRepository) Get(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	var t model.Task
	if err := r.db.GetContext(ctx, &t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("task", err)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &t, nil
}

func (r *taskRepository) List(ctx context.Context, userID uuid.UUID, filter repository.TaskFilter) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []interface{}{userID}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	} else {
		args = append(args, model.TaskStatusDeleted)
		query += fmt.Sprintf(" AND status <> $%d", len(args))
	}

	if filter.Project != nil {
		args = append(args, *filter.Project)
		query += fmt.Sprintf(" AND project = $%d", len(args))
	}

	query += " ORDER BY priority ASC, due_at ASC NULLS LAST"

	var tasks []*model.Task
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (r *taskRepository) MarkDeletedForItems(ctx context.Context, tx *sqlx.Tx, itemIDs []uuid.UUID) error {
	if len(itemIDs) == 0 {
		return nil
	}
	query := `
		UPDATE tasks
		SET status = $1, updated_at = $2
		WHERE third_party_item_id = ANY($3) AND status <> $1
	`
	if _, err := tx.ExecContext(ctx, query, model.TaskStatusDeleted, time.Now(), pq.Array(uuidStrings(itemIDs))); err != nil {
		return fmt.Errorf("failed to delete tasks for stale items: %w", err)
	}
	return nil
}
