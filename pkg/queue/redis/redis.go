package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/uniboxhq/inbox-sync/pkg/queue"
)

const (
	queueKey      = "sync:jobs"
	processingKey = "sync:jobs:processing"
	delayedKey    = "sync:jobs:delayed"
	dedupPrefix   = "sync:jobs:dedup:"

	// dedupTTL bounds how long an orphaned key can suppress new
	// enqueues when its message is lost before ever being leased.
	dedupTTL = 30 * time.Minute
)

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

// RedisQueue implements queue.Queue on top of Redis lists: a pending
// list, a per-consumer-visible processing list for leases, and a
// sorted set for delayed redelivery.
type RedisQueue struct {
	client *redis.Client
	logger *zerolog.Logger
}

func NewRedisQueue(config Config, logger *zerolog.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	opts.PoolSize = config.PoolSize
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{client: client, logger: logger}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg queue.Message, dedupKey string) (bool, error) {
	msg.Dedup = dedupKey
	if dedupKey != "" {
		set, err := q.client.SetNX(ctx, dedupPrefix+dedupKey, msg.JobID.String(), dedupTTL).Result()
		if err != nil {
			return false, fmt.Errorf("failed to set dedup key: %w", err)
		}
		if !set {
			return false, nil
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, queueKey, payload).Err(); err != nil {
		return false, fmt.Errorf("failed to enqueue message: %w", err)
	}
	return true, nil
}

func (q *RedisQueue) DequeueWithLease(ctx context.Context, timeout time.Duration) (*queue.Message, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		q.logger.Warn().Err(err).Msg("failed to promote delayed messages")
	}

	raw, err := q.client.BLMove(ctx, queueKey, processingKey, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue message: %w", err)
	}

	var msg queue.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// Drop the poison entry so it cannot wedge the queue.
		q.client.LRem(ctx, processingKey, 1, raw)
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	msg.Raw = []byte(raw)

	// Release the dedup key as soon as the message is leased. Collapsing
	// only covers the window while the job is still pending: work arriving
	// during processing must yield a fresh job, or an item ingested after
	// the running job read its batch would sit unprocessed.
	if msg.Dedup != "" {
		if err := q.client.Del(ctx, dedupPrefix+msg.Dedup).Err(); err != nil {
			q.logger.Warn().Err(err).Str("dedup", msg.Dedup).Msg("failed to release dedup key")
		}
	}
	return &msg, nil
}

func (q *RedisQueue) Ack(ctx context.Context, msg *queue.Message) error {
	if err := q.client.LRem(ctx, processingKey, 1, string(msg.Raw)).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

func (q *RedisQueue) NackWithDelay(ctx context.Context, msg *queue.Message, delay time.Duration) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey, 1, string(msg.Raw))
	pipe.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: string(msg.Raw),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack message: %w", err)
	}
	return nil
}

// promoteDelayed moves due delayed messages back onto the pending list.
func (q *RedisQueue) promoteDelayed(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	due, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read delayed messages: %w", err)
	}

	for _, raw := range due {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, delayedKey, raw)
		pipe.LPush(ctx, queueKey, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to promote delayed message: %w", err)
		}
	}
	return nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return depth, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Client exposes the underlying connection for health checks.
func (q *RedisQueue) Client() *redis.Client {
	return q.client
}
