package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniboxhq/inbox-sync/pkg/queue"
)

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	logger := zerolog.Nop()

	q, err := NewRedisQueue(Config{URL: "redis://" + mr.Addr()}, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q, mr
}

func testMessage() queue.Message {
	return queue.Message{JobID: uuid.New(), Key: "user-1:github"}
}

func TestEnqueueDequeueAck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	msg := testMessage()
	ok, err := q.Enqueue(ctx, msg, "")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := q.DequeueWithLease(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, msg.JobID, got.JobID)
	assert.Equal(t, msg.Key, got.Key)

	require.NoError(t, q.Ack(ctx, got))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestEnqueueDedupCollapses(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := testMessage()
	ok, err := q.Enqueue(ctx, first, "user-1:github:scheduled")
	require.NoError(t, err)
	assert.True(t, ok)

	second := testMessage()
	ok, err = q.Enqueue(ctx, second, "user-1:github:scheduled")
	require.NoError(t, err)
	assert.False(t, ok)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestLeaseReleasesDedupKey(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	ok, err := q.Enqueue(ctx, testMessage(), "user-1:github:scheduled")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := q.DequeueWithLease(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)

	// The same dedup key is usable again as soon as the first message
	// is leased; acking is not required.
	ok, err = q.Enqueue(ctx, testMessage(), "user-1:github:scheduled")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnqueueDuringProcessingYieldsNewJob(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := testMessage()
	ok, err := q.Enqueue(ctx, first, "user-1:slack:webhook")
	require.NoError(t, err)
	require.True(t, ok)

	// Lease the first message and keep it mid-processing.
	leased, err := q.DequeueWithLease(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, leased)
	require.Equal(t, first.JobID, leased.JobID)

	// A webhook landing now must not be collapsed: the running job may
	// already have read its batch, so this event needs its own job.
	second := testMessage()
	ok, err = q.Enqueue(ctx, second, "user-1:slack:webhook")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, q.Ack(ctx, leased))

	next, err := q.DequeueWithLease(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.JobID, next.JobID)
}

func TestNackRedeliversAfterDelay(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	msg := testMessage()
	_, err := q.Enqueue(ctx, msg, "")
	require.NoError(t, err)

	got, err := q.DequeueWithLease(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, q.NackWithDelay(ctx, got, 10*time.Second))

	// Still delayed: nothing visible yet.
	redelivered, err := q.DequeueWithLease(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, redelivered)
}

func TestNackRedeliversWhenDue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	msg := testMessage()
	_, err := q.Enqueue(ctx, msg, "")
	require.NoError(t, err)

	got, err := q.DequeueWithLease(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, q.NackWithDelay(ctx, got, 20*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	redelivered, err := q.DequeueWithLease(ctx, 200*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, msg.JobID, redelivered.JobID)
}

func TestDequeueTimeout(t *testing.T) {
	q, _ := newTestQueue(t)

	got, err := q.DequeueWithLease(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDepthCountsPendingOnly(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testMessage(), "")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, testMessage(), "")
	require.NoError(t, err)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	// Leased messages no longer count toward depth.
	_, err = q.DequeueWithLease(ctx, 100*time.Millisecond)
	require.NoError(t, err)

	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}
