package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies which external provider an item came from.
type SourceKind string

const (
	SourceGithub         SourceKind = "github"
	SourceLinear         SourceKind = "linear"
	SourceSlack          SourceKind = "slack"
	SourceGoogleCalendar SourceKind = "google_calendar"
	SourceGoogleDrive    SourceKind = "google_drive"
	SourceTodoist        SourceKind = "todoist"
)

// SourceKinds lists every supported provider, in scheduling order.
var SourceKinds = []SourceKind{
	SourceGithub,
	SourceLinear,
	SourceSlack,
	SourceGoogleCalendar,
	SourceGoogleDrive,
	SourceTodoist,
}

func ParseSourceKind(s string) (SourceKind, error) {
	kind := SourceKind(s)
	for _, k := range SourceKinds {
		if kind == k {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

type ItemStatus string

const (
	ItemStatusNew       ItemStatus = "new"
	ItemStatusProcessed ItemStatus = "processed"
	ItemStatusDeleted   ItemStatus = "deleted"
)

// ThirdPartyItem is the raw, source-tagged payload persisted before any
// business-rule interpretation. (user_id, source_kind, external_id) is
// unique; re-ingesting the same external id updates the row.
type ThirdPartyItem struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	SourceKind      SourceKind      `db:"source_kind" json:"source_kind"`
	ExternalID      string          `db:"external_id" json:"external_id"`
	Payload         json.RawMessage `db:"payload" json:"payload"`
	ContentHash     string          `db:"content_hash" json:"-"`
	Status          ItemStatus      `db:"status" json:"status"`
	SourceUpdatedAt time.Time       `db:"source_updated_at" json:"source_updated_at"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// HashPayload returns the content hash used to detect unchanged items
// during re-sync.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
