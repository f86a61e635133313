package model

import (
	"time"

	"github.com/google/uuid"
)

type ConnectionStatus string

const (
	ConnectionStatusCreated   ConnectionStatus = "created"
	ConnectionStatusValidated ConnectionStatus = "validated"
	ConnectionStatusFailing   ConnectionStatus = "failing"
	ConnectionStatusDisabled  ConnectionStatus = "disabled"
)

// IntegrationConnection is the per-user, per-source credential record.
// Credentials are stored encrypted; decryption happens just before a
// connector call.
type IntegrationConnection struct {
	ID                  uuid.UUID        `db:"id" json:"id"`
	UserID              uuid.UUID        `db:"user_id" json:"user_id"`
	SourceKind          SourceKind       `db:"source_kind" json:"source_kind"`
	Status              ConnectionStatus `db:"status" json:"status"`
	Credentials         []byte           `db:"credentials" json:"-"`
	FailureMessage      *string          `db:"failure_message" json:"failure_message,omitempty"`
	LastSyncStartedAt   *time.Time       `db:"last_sync_started_at" json:"last_sync_started_at,omitempty"`
	LastSyncFailedAt    *time.Time       `db:"last_sync_failed_at" json:"last_sync_failed_at,omitempty"`
	LastSyncFailure     *string          `db:"last_sync_failure" json:"last_sync_failure,omitempty"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

// Syncable reports whether the connection should be picked up by the
// periodic scheduler.
func (c *IntegrationConnection) Syncable() bool {
	return c.Status == ConnectionStatusValidated
}
