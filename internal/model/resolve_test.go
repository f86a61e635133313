package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveNotificationStatusSourceAdvances(t *testing.T) {
	existing := &Notification{
		Status:          NotificationStatusRead,
		SourceStatus:    NotificationStatusUnread,
		SourceUpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	draft := &NotificationDraft{
		Status:          NotificationStatusUnread,
		SourceUpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, NotificationStatusUnread, ResolveNotificationStatus(existing, draft))
}

func TestResolveNotificationStatusUserEditSticks(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := &Notification{
		Status:          NotificationStatusRead,
		SourceStatus:    NotificationStatusUnread,
		SourceUpdatedAt: ts,
	}
	// Re-sync reports the same source state it always has.
	draft := &NotificationDraft{
		Status:          NotificationStatusUnread,
		SourceUpdatedAt: ts,
	}

	assert.Equal(t, NotificationStatusRead, ResolveNotificationStatus(existing, draft))
}

func TestResolveNotificationStatusTerminalAlwaysWins(t *testing.T) {
	existing := &Notification{
		Status:          NotificationStatusRead,
		SourceUpdatedAt: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	draft := &NotificationDraft{
		Status: NotificationStatusDeleted,
		// Even an older source timestamp deletes.
		SourceUpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, NotificationStatusDeleted, ResolveNotificationStatus(existing, draft))
}

func TestResolveTaskStatusTerminalDraftWins(t *testing.T) {
	existing := &Task{
		Status:          TaskStatusActive,
		SourceUpdatedAt: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	draft := &TaskDraft{
		Status:          TaskStatusDone,
		SourceUpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, TaskStatusDone, ResolveTaskStatus(existing, draft))
}

func TestResolveTaskStatusLocalDoneSticks(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := &Task{Status: TaskStatusDone, SourceUpdatedAt: ts}
	draft := &TaskDraft{Status: TaskStatusActive, SourceUpdatedAt: ts}

	assert.Equal(t, TaskStatusDone, ResolveTaskStatus(existing, draft))
}

func TestResolveTaskStatusSourceReopens(t *testing.T) {
	existing := &Task{
		Status:          TaskStatusDone,
		SourceUpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	draft := &TaskDraft{
		Status:          TaskStatusActive,
		SourceUpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, TaskStatusActive, ResolveTaskStatus(existing, draft))
}

func TestNotificationDue(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := &Notification{Status: NotificationStatusRead, SnoozedUntil: &past}
	assert.True(t, expired.Due(now))

	pending := &Notification{Status: NotificationStatusRead, SnoozedUntil: &future}
	assert.False(t, pending.Due(now))

	deleted := &Notification{Status: NotificationStatusDeleted, SnoozedUntil: &past}
	assert.False(t, deleted.Due(now))
}

func TestParseSourceKind(t *testing.T) {
	kind, err := ParseSourceKind("github")
	assert.NoError(t, err)
	assert.Equal(t, SourceGithub, kind)

	_, err = ParseSourceKind("carrier_pigeon")
	assert.Error(t, err)
}

func TestTaskPriorityValid(t *testing.T) {
	assert.True(t, PriorityP1.Valid())
	assert.True(t, PriorityP4.Valid())
	assert.False(t, TaskPriority(0).Valid())
	assert.False(t, TaskPriority(5).Valid())
}
