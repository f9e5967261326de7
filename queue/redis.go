package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list that holds pending dispatch tasks.
const DefaultRedisKey = "herald:queue:dispatch"

// RedisQueue is a queue backed by a Redis list (RPUSH / BLPOP), shared by
// every instance pointed at the same key.
type RedisQueue struct {
	client goredis.UniversalClient
	key    string
	block  time.Duration
	closed atomic.Bool
}

var _ Queue = (*RedisQueue)(nil)

// RedisOption configures a RedisQueue.
type RedisOption func(*RedisQueue)

// WithKey overrides the list key.
func WithKey(key string) RedisOption {
	return func(q *RedisQueue) { q.key = key }
}

// WithBlockTimeout sets how long one BLPOP waits before the closed flag is
// re-checked.
func WithBlockTimeout(d time.Duration) RedisOption {
	return func(q *RedisQueue) { q.block = d }
}

// NewRedis creates a queue on client. The client is owned by the caller.
func NewRedis(client goredis.UniversalClient, opts ...RedisOption) *RedisQueue {
	q := &RedisQueue{
		client: client,
		key:    DefaultRedisKey,
		block:  time.Second,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue appends a JSON-encoded task to the list.
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	if q.closed.Load() {
		return ErrClosed
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("herald/queue: marshal task: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("herald/queue: rpush: %w", err)
	}
	return nil
}

// Dequeue pops the head of the list, blocking in short BLPOP rounds.
func (q *RedisQueue) Dequeue(ctx context.Context) (Task, error) {
	for {
		if q.closed.Load() {
			return Task{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Task{}, err
		}

		res, err := q.client.BLPop(ctx, q.block, q.key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Task{}, ctxErr
			}
			return Task{}, fmt.Errorf("herald/queue: blpop: %w", err)
		}

		// BLPOP replies with [key, value].
		if len(res) != 2 {
			continue
		}

		var t Task
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			return Task{}, fmt.Errorf("herald/queue: unmarshal task: %w", err)
		}
		return t, nil
	}
}

// Len returns the length of the list.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("herald/queue: llen: %w", err)
	}
	return n, nil
}

// Close stops this instance from enqueueing and dequeueing. Tasks left in
// the list stay there for other instances.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
