package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusRunning      JobStatus = "running"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
	JobStatusDeadLettered JobStatus = "dead_lettered"
)

type JobTrigger string

const (
	JobTriggerPeriodic JobTrigger = "periodic"
	JobTriggerWebhook  JobTrigger = "webhook"
	JobTriggerManual   JobTrigger = "manual"
)

// SyncJob is one unit of sync work for a (user, source) pair. The row
// is the durable record; the queue only carries its id.
type SyncJob struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	SourceKind  SourceKind `db:"source_kind" json:"source_kind"`
	Trigger     JobTrigger `db:"trigger" json:"trigger"`
	Status      JobStatus  `db:"status" json:"status"`
	Attempts    int        `db:"attempts" json:"attempts"`
	MaxAttempts int        `db:"max_attempts" json:"max_attempts"`
	NotBefore   *time.Time `db:"not_before" json:"not_before,omitempty"`
	LastError   *string    `db:"last_error" json:"last_error,omitempty"`
	EnqueuedAt  time.Time  `db:"enqueued_at" json:"enqueued_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// Key identifies the serialization domain: jobs sharing a key never run
// concurrently.
func (j *SyncJob) Key() string {
	return fmt.Sprintf("%s:%s", j.UserID, j.SourceKind)
}
