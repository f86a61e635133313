package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

var notificationRows = []string{
	"id", "user_id", "title", "source_kind", "third_party_item_id", "status",
	"snoozed_until", "task_id", "source_status", "source_updated_at",
	"created_at", "updated_at",
}

// A unique violation aborts a Postgres transaction; the savepoint
// around each upsert must restore it so the immediate retry can read
// the winner's row instead of failing with "transaction is aborted".
func TestNotificationUpsertConflictKeepsTransactionUsable(t *testing.T) {
	sdb, mock := newMockDB(t)
	repo := NewNotificationRepository(NewBaseRepository(sdb, nil))

	userID, itemID := uuid.New(), uuid.New()
	now := time.Now()
	draft := &model.NotificationDraft{
		Title:           "CI failed on main",
		Status:          model.NotificationStatusUnread,
		SourceUpdatedAt: now,
	}

	mock.ExpectBegin()

	// First attempt: no row visible yet, the insert loses the race.
	mock.ExpectExec("SAVEPOINT upsert_notification").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM notifications").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM third_party_items").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "source_kind", "external_id", "source_updated_at"}).
			AddRow(itemID.String(), userID.String(), "github", "n-1", now))
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectExec("ROLLBACK TO SAVEPOINT upsert_notification").
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Retry on the same transaction: the winner's row is visible now.
	existingID := uuid.New()
	mock.ExpectExec("SAVEPOINT upsert_notification").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM notifications").
		WillReturnRows(sqlmock.NewRows(notificationRows).
			AddRow(existingID.String(), userID.String(), draft.Title, "github",
				itemID.String(), "unread", nil, nil, "unread", now, now, now))
	mock.ExpectExec("RELEASE SAVEPOINT upsert_notification").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	tx, err := sdb.BeginTxx(ctx, nil)
	require.NoError(t, err)

	_, _, err = repo.UpsertFromThirdParty(ctx, tx, userID, itemID, draft)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))

	got, changed, err := repo.UpsertFromThirdParty(ctx, tx, userID, itemID, draft)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, existingID, got.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskUpsertRunsUnderSavepoint(t *testing.T) {
	sdb, mock := newMockDB(t)
	repo := NewTaskRepository(NewBaseRepository(sdb, nil))

	userID, itemID := uuid.New(), uuid.New()
	draft := &model.TaskDraft{
		Title:           "Ship the release notes",
		Status:          model.TaskStatusActive,
		Priority:        model.PriorityP2,
		SourceUpdatedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT upsert_task").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM tasks").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO tasks").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("RELEASE SAVEPOINT upsert_task").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	tx, err := sdb.BeginTxx(ctx, nil)
	require.NoError(t, err)

	created, changed, err := repo.UpsertFromThirdParty(ctx, tx, userID, itemID, draft)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, draft.Title, created.Title)

	require.NoError(t, mock.ExpectationsWereMet())
}
