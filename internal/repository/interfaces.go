package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniboxhq/inbox-sync/internal/model"
)

// TxRunner executes a function inside a database transaction. The sync
// coordinator owns the transaction boundary; the stores never open
// their own.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// NotificationFilter narrows List results. Statuses empty means every
// non-deleted status. IncludeSnoozed false hides notifications whose
// snooze has not expired yet.
type NotificationFilter struct {
	Statuses       []model.NotificationStatus
	SourceKind     *model.SourceKind
	IncludeSnoozed bool
}

type TaskFilter struct {
	Statuses []model.TaskStatus
	Project  *string
}

type ThirdPartyItemRepository interface {
	// Upsert inserts or refreshes the row keyed by (user, source kind,
	// external id) and reports whether the stored payload actually
	// changed. Unchanged items short-circuit downstream normalization.
	Upsert(ctx context.Context, tx *sqlx.Tx, item *model.ThirdPartyItem) (bool, error)
	FindUnprocessed(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, kind model.SourceKind) ([]*model.ThirdPartyItem, error)
	MarkProcessed(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
	MarkDeleted(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
	// MarkStaleDeleted marks items the source stopped reporting as
	// deleted and returns their ids so derived entities can follow.
	MarkStaleDeleted(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, kind model.SourceKind, seenExternalIDs []string) ([]uuid.UUID, error)
}

type NotificationRepository interface {
	UpsertFromThirdParty(ctx context.Context, tx *sqlx.Tx, userID, itemID uuid.UUID, draft *model.NotificationDraft) (*model.Notification, bool, error)
	Patch(ctx context.Context, id uuid.UUID, patch *model.NotificationPatch) (*model.Notification, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	List(ctx context.Context, userID uuid.UUID, filter NotificationFilter) ([]*model.Notification, error)
	MarkDeletedForItems(ctx context.Context, tx *sqlx.Tx, itemIDs []uuid.UUID) error
}

type TaskRepository interface {
	UpsertFromThirdParty(ctx context.Context, tx *sqlx.Tx, userID, itemID uuid.UUID, draft *model.TaskDraft) (*model.Task, bool, error)
	Create(ctx context.Context, task *model.Task) error
	Patch(ctx context.Context, id uuid.UUID, patch *model.TaskPatch) (*model.Task, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Task, error)
	List(ctx context.Context, userID uuid.UUID, filter TaskFilter) ([]*model.Task, error)
	MarkDeletedForItems(ctx context.Context, tx *sqlx.Tx, itemIDs []uuid.UUID) error
}

type ConnectionRepository interface {
	Get(ctx context.Context, userID uuid.UUID, kind model.SourceKind) (*model.IntegrationConnection, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.IntegrationConnection, error)
	ListSyncable(ctx context.Context) ([]*model.IntegrationConnection, error)
	MarkSyncStarted(ctx context.Context, id uuid.UUID) error
	RecordSyncFailure(ctx context.Context, id uuid.UUID, reason string) error
	ClearSyncFailure(ctx context.Context, id uuid.UUID) error
	// MarkFailing flags expired credentials; the connection is skipped
	// until the user reconnects.
	MarkFailing(ctx context.Context, id uuid.UUID, reason string) error
	SetStatus(ctx context.Context, id uuid.UUID, status model.ConnectionStatus) error
}

type SyncJobRepository interface {
	Create(ctx context.Context, job *model.SyncJob) error
	Get(ctx context.Context, id uuid.UUID) (*model.SyncJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkRequeued(ctx context.Context, id uuid.UUID, lastError string, notBefore time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	MarkDeadLettered(ctx context.Context, id uuid.UUID, lastError string) error
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}
