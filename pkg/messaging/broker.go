// Package messaging publishes inbox change events over pub/sub so
// companion processes (websocket fan-out, push gateways) can react to
// edits without polling the API.
package messaging

import (
	"context"
	"time"
)

// Channels events are published on.
const (
	ChannelNotificationUpdated = "inbox:events:notification_updated"
	ChannelTaskUpdated         = "inbox:events:task_updated"
	ChannelJobDeadLettered     = "inbox:events:job_dead_lettered"
)

// Event is the envelope for every published message. Payload carries
// channel-specific detail; subscribers that only route on Type and
// UserID can ignore it.
type Event struct {
	Type       string      `json:"type"`
	UserID     string      `json:"user_id"`
	EntityID   string      `json:"entity_id"`
	Source     string      `json:"source,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Broker is a fire-and-forget pub/sub fabric. Delivery is best effort;
// anything that must not be lost goes through the job queue instead.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}
