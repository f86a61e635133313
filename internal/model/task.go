package model

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusActive  TaskStatus = "active"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusDeleted TaskStatus = "deleted"
)

// Terminal reports whether the status only leaves via an explicit
// status field in a patch.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusDeleted
}

// TaskPriority follows the 1 (highest) to 4 (lowest) convention of the
// task providers.
type TaskPriority int

const (
	PriorityP1 TaskPriority = 1
	PriorityP2 TaskPriority = 2
	PriorityP3 TaskPriority = 3
	PriorityP4 TaskPriority = 4
)

func (p TaskPriority) Valid() bool {
	return p >= PriorityP1 && p <= PriorityP4
}

// Task is a canonical to-do, either derived from a source item or
// created directly by the user (ThirdPartyItemID nil).
type Task struct {
	ID               uuid.UUID    `db:"id" json:"id"`
	UserID           uuid.UUID    `db:"user_id" json:"user_id"`
	Title            string       `db:"title" json:"title"`
	Body             string       `db:"body" json:"body"`
	Status           TaskStatus   `db:"status" json:"status"`
	Priority         TaskPriority `db:"priority" json:"priority"`
	DueAt            *time.Time   `db:"due_at" json:"due_at,omitempty"`
	Project          string       `db:"project" json:"project"`
	ThirdPartyItemID *uuid.UUID   `db:"third_party_item_id" json:"third_party_item_id,omitempty"`
	SourceUpdatedAt  time.Time    `db:"source_updated_at" json:"-"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// TaskDraft is a normalization candidate, not yet persisted. DueAt is
// three-state: a source that removed the due date clears it, a source
// that never reports one leaves it alone.
type TaskDraft struct {
	Title           string
	Body            string
	Status          TaskStatus
	Priority        TaskPriority
	DueAt           Field[time.Time]
	Project         string
	SourceUpdatedAt time.Time
}

// TaskPatch is a user-driven partial update with three-state fields.
type TaskPatch struct {
	Title    Field[string]       `json:"title"`
	Body     Field[string]       `json:"body"`
	Status   Field[TaskStatus]   `json:"status"`
	Priority Field[TaskPriority] `json:"priority"`
	DueAt    Field[time.Time]    `json:"due_at"`
	Project  Field[string]       `json:"project"`
}

// ResolveTaskStatus mirrors ResolveNotificationStatus for tasks: a
// terminal source transition always applies, a fresher source state
// wins, and an unchanged source never overrides a local edit. A task
// already terminal stays terminal unless the source itself reopened it
// with a newer state.
func ResolveTaskStatus(existing *Task, draft *TaskDraft) TaskStatus {
	if draft.Status.Terminal() {
		return draft.Status
	}
	if draft.SourceUpdatedAt.After(existing.SourceUpdatedAt) {
		return draft.Status
	}
	return existing.Status
}
