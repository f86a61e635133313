package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is the unit carried by the queue. The durable job record
// lives in the database; the queue only moves ids around.
type Message struct {
	JobID uuid.UUID `json:"job_id"`
	Key   string    `json:"key"`
	// Dedup is the dedup key the message was enqueued under, released
	// when the message is leased. Set by Enqueue.
	Dedup string `json:"dedup,omitempty"`

	// Raw is the wire form of the message as dequeued, needed to
	// release the lease. Not set on messages built for Enqueue.
	Raw []byte `json:"-"`
}

// Queue is a durable at-least-once job queue with leases. A dequeued
// message stays leased until Ack or Nack; consumers must tolerate
// redelivery.
type Queue interface {
	// Enqueue adds a message. A non-empty dedupKey collapses duplicate
	// enqueues while an identical message is still pending, not yet
	// leased by a worker; returns false when collapsed.
	Enqueue(ctx context.Context, msg Message, dedupKey string) (bool, error)
	// DequeueWithLease blocks up to timeout for the next message.
	// Returns (nil, nil) on timeout.
	DequeueWithLease(ctx context.Context, timeout time.Duration) (*Message, error)
	Ack(ctx context.Context, msg *Message) error
	// NackWithDelay releases the lease and makes the message visible
	// again after delay.
	NackWithDelay(ctx context.Context, msg *Message, delay time.Duration) error
	Depth(ctx context.Context) (int64, error)
	Close() error
}
