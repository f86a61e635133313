package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusUnread       NotificationStatus = "unread"
	NotificationStatusRead         NotificationStatus = "read"
	NotificationStatusDeleted      NotificationStatus = "deleted"
	NotificationStatusUnsubscribed NotificationStatus = "unsubscribed"
)

// Notification is a unified inbox entry derived from a third-party
// item. ThirdPartyItemID is a weak reference: deleting the raw item
// severs provenance but keeps the notification.
type Notification struct {
	ID               uuid.UUID          `db:"id" json:"id"`
	UserID           uuid.UUID          `db:"user_id" json:"user_id"`
	Title            string             `db:"title" json:"title"`
	SourceKind       SourceKind         `db:"source_kind" json:"source_kind"`
	ThirdPartyItemID *uuid.UUID         `db:"third_party_item_id" json:"third_party_item_id,omitempty"`
	Status           NotificationStatus `db:"status" json:"status"`
	SnoozedUntil     *time.Time         `db:"snoozed_until" json:"snoozed_until,omitempty"`
	TaskID           *uuid.UUID         `db:"task_id" json:"task_id,omitempty"`
	SourceStatus     NotificationStatus `db:"source_status" json:"-"`
	SourceUpdatedAt  time.Time          `db:"source_updated_at" json:"-"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
}

// Due reports whether the notification should surface as unread again:
// a snooze that has expired is treated as unread by consumers, never
// rewritten by storage.
func (n *Notification) Due(now time.Time) bool {
	if n.Status != NotificationStatusUnread && n.Status != NotificationStatusRead {
		return false
	}
	return n.SnoozedUntil != nil && n.SnoozedUntil.Before(now)
}

// NotificationDraft is a normalization candidate, not yet persisted.
type NotificationDraft struct {
	Title           string
	Status          NotificationStatus
	TaskID          *uuid.UUID
	SourceUpdatedAt time.Time
}

// NotificationPatch is a user-driven partial update. Fields use
// three-state presence semantics.
type NotificationPatch struct {
	Status       Field[NotificationStatus] `json:"status"`
	SnoozedUntil Field[time.Time]          `json:"snoozed_until"`
	TaskID       Field[uuid.UUID]          `json:"task_id"`
}

// ResolveNotificationStatus decides the post-sync status of an existing
// notification given a freshly derived draft. The source wins only when
// its state actually advanced; otherwise a local edit stays in place.
// Terminal source transitions always apply.
func ResolveNotificationStatus(existing *Notification, draft *NotificationDraft) NotificationStatus {
	if draft.Status == NotificationStatusDeleted || draft.Status == NotificationStatusUnsubscribed {
		return draft.Status
	}
	if draft.SourceUpdatedAt.After(existing.SourceUpdatedAt) {
		return draft.Status
	}
	// Unchanged source state: the user's last edit is sticky.
	return existing.Status
}
