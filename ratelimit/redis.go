package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces limiter keys.
const DefaultRedisPrefix = "herald:rl:"

// RedisLimiter counts requests per key in fixed windows. Each window is its
// own Redis key, incremented and given a TTL in one transaction, so the
// count is shared by every instance and expires on its own.
type RedisLimiter struct {
	client goredis.UniversalClient
	cfg    Config
	prefix string
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedis creates a RedisLimiter on client. The client is owned by the caller.
func NewRedis(client goredis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		cfg:    cfg.normalized(),
		prefix: DefaultRedisPrefix,
		now:    time.Now,
	}
}

// WithPrefix returns a copy of the limiter using prefix for its keys.
func (l *RedisLimiter) WithPrefix(prefix string) *RedisLimiter {
	cp := *l
	cp.prefix = prefix
	return &cp
}

// Allow increments key's counter for the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(l.cfg.Window)
	rkey := fmt.Sprintf("%s%s:%d", l.prefix, key, windowStart.UnixMilli())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.PExpire(ctx, rkey, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("herald: rate limit %s: %w", key, err)
	}

	count := int(incr.Val())
	return Decision{
		Allowed:   count <= l.cfg.Limit,
		Limit:     l.cfg.Limit,
		Remaining: max(l.cfg.Limit-count, 0),
		ResetAt:   windowStart.Add(l.cfg.Window),
	}, nil
}
