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

const notificationColumns = `
	id, user_id, title, source_kind, third_party_item_id, status,
	snoozed_until, task_id, source_status, source_updated_at,
	created_at, updated_at`

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

// UpsertFromThirdParty inserts a notification for a new source item or
// merges a draft into the existing one. At most one non-deleted
// notification exists per (user, item); the partial unique index on
// that pair backs the invariant. Returns the row and whether anything
// was written. Runs under a savepoint so a unique violation leaves the
// caller's transaction usable for the immediate retry.
func (r *notificationRepository) UpsertFromThirdParty(ctx context.Context, tx *sqlx.Tx, userID, itemID uuid.UUID, draft *model.NotificationDraft) (*model.Notification, bool, error) {
	var (
		n       *model.Notification
		changed bool
	)
	err := r.withSavepoint(ctx, tx, "upsert_notification", func() error {
		var err error
		n, changed, err = r.upsertFromThirdParty(ctx, tx, userID, itemID, draft)
		return err
	})
	r.countOp("upsert_notification", err)
	if err != nil {
		return nil, false, err
	}
	return n, changed, nil
}

func (r *notificationRepository) upsertFromThirdParty(ctx context.Context, tx *sqlx.Tx, userID, itemID uuid.UUID, draft *model.NotificationDraft) (*model.Notification, bool, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1 AND third_party_item_id = $2 AND status <> $3
		FOR UPDATE
	`
	var existing model.Notification
	err := tx.GetContext(ctx, &existing, query, userID, itemID, model.NotificationStatusDeleted)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to look up notification: %w", err)
		}
		created, err := r.insertFromDraft(ctx, tx, userID, itemID, draft)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	}

	status := model.ResolveNotificationStatus(&existing, draft)
	sourceAdvanced := draft.SourceUpdatedAt.After(existing.SourceUpdatedAt)

	title := existing.Title
	if sourceAdvanced {
		title = draft.Title
	}
	taskID := existing.TaskID
	if draft.TaskID != nil {
		taskID = draft.TaskID
	}

	if status == existing.Status && title == existing.Title &&
		!sourceAdvanced && taskID == existing.TaskID {
		return &existing, false, nil
	}

	update := `
		UPDATE notifications
		SET title = $1, status = $2, task_id = $3,
			source_status = $4, source_updated_at = $5, updated_at = $6
		WHERE id = $7
	`
	now := time.Now()
	if _, err := tx.ExecContext(ctx, update,
		title, status, taskID,
		draft.Status, maxTime(existing.SourceUpdatedAt, draft.SourceUpdatedAt), now,
		existing.ID,
	); err != nil {
		return nil, false, mapWriteError("update notification", err)
	}

	existing.Title = title
	existing.Status = status
	existing.TaskID = taskID
	existing.SourceStatus = draft.Status
	existing.UpdatedAt = now
	return &existing, true, nil
}

func (r *notificationRepository) insertFromDraft(ctx context.Context, tx *sqlx.Tx, userID, itemID uuid.UUID, draft *model.NotificationDraft) (*model.Notification, error) {
	item, err := r.itemMeta(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	n := &model.Notification{
		ID:               uuid.New(),
		UserID:           userID,
		Title:            draft.Title,
		SourceKind:       item.SourceKind,
		ThirdPartyItemID: &itemID,
		Status:           draft.Status,
		TaskID:           draft.TaskID,
		SourceStatus:     draft.Status,
		SourceUpdatedAt:  draft.SourceUpdatedAt,
		CreatedAt:        time.Now(),
	}
	n.UpdatedAt = n.CreatedAt

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := tx.ExecContext(ctx, query,
		n.ID, n.UserID, n.Title, n.SourceKind, n.ThirdPartyItemID, n.Status,
		n.SnoozedUntil, n.TaskID, n.SourceStatus, n.SourceUpdatedAt,
		n.CreatedAt, n.UpdatedAt,
	); err != nil {
		return nil, mapWriteError("insert notification", err)
	}
	return n, nil
}

func (r *notificationRepository) itemMeta(ctx context.Context, tx *sqlx.Tx, itemID uuid.UUID) (*model.ThirdPartyItem, error) {
	var item model.ThirdPartyItem
	err := tx.GetContext(ctx, &item,
		`SELECT id, user_id, source_kind, external_id, source_updated_at FROM third_party_items WHERE id = $1`, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("third-party item", err)
		}
		return nil, fmt.Errorf("failed to load third-party item: %w", err)
	}
	return &item, nil
}

// Patch applies a user edit. Absent fields are untouched, explicit
// nulls clear.
func (r *notificationRepository) Patch(ctx context.Context, id uuid.UUID, patch *model.NotificationPatch) (*model.Notification, error) {
	var sets []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Status.IsSet() {
		if v, ok := patch.Status.Get(); ok {
			sets = append(sets, "status = "+arg(v))
		}
	}
	if patch.SnoozedUntil.IsSet() {
		if v, ok := patch.SnoozedUntil.Get(); ok {
			sets = append(sets, "snoozed_until = "+arg(v))
		} else {
			sets = append(sets, "snoozed_until = NULL")
		}
	}
	if patch.TaskID.IsSet() {
		if v, ok := patch.TaskID.Get(); ok {
			sets = append(sets, "task_id = "+arg(v))
		} else {
			sets = append(sets, "task_id = NULL")
		}
	}
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}

	sets = append(sets, "updated_at = "+arg(time.Now()))
	query := fmt.Sprintf(`
		UPDATE notifications
		SET %s
		WHERE id = %s AND status <> %s
		RETURNING `+notificationColumns,
		strings.Join(sets, ", "), arg(id), arg(model.NotificationStatusDeleted))

	var n model.Notification
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("notification", err)
		}
		return nil, mapWriteError("patch notification", err)
	}
	return &n, nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	var n model.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("notification", err)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) List(ctx context.Context, userID uuid.UUID, filter repository.NotificationFilter) ([]*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	args := []interface{}{userID}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	} else {
		args = append(args, model.NotificationStatusDeleted)
		query += fmt.Sprintf(" AND status <> $%d", len(args))
	}

	if filter.SourceKind != nil {
		args = append(args, *filter.SourceKind)
		query += fmt.Sprintf(" AND source_kind = $%d", len(args))
	}

	if !filter.IncludeSnoozed {
		// An expired snooze surfaces again; an active one hides the row.
		args = append(args, time.Now())
		query += fmt.Sprintf(" AND (snoozed_until IS NULL OR snoozed_until <= $%d)", len(args))
	}

	query += " ORDER BY updated_at DESC"

	var notifications []*model.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) MarkDeletedForItems(ctx context.Context, tx *sqlx.Tx, itemIDs []uuid.UUID) error {
	if len(itemIDs) == 0 {
		return nil
	}
	query := `
		UPDATE notifications
		SET status = $1, updated_at = $2
		WHERE third_party_item_id = ANY($3) AND status <> $1
	`
	if _, err := tx.ExecContext(ctx, query, model.NotificationStatusDeleted, time.Now(), pq.Array(uuidStrings(itemIDs))); err != nil {
		return fmt.Errorf("failed to delete notifications for stale items: %w", err)
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
