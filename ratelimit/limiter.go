// Package ratelimit provides keyed request limiting for the admin API.
//
// Two implementations share the Limiter contract: RedisLimiter counts
// requests in fixed windows held in Redis, so every instance sees the same
// budget; LocalLimiter keeps a token bucket per key in process.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the budget is next replenished.
	ResetAt time.Time
}

// RetryAfter returns how long a denied caller should wait, rounded up to
// whole seconds. It is zero for allowed decisions.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if rem := wait % time.Second; rem != 0 {
		wait += time.Second - rem
	}
	return wait
}

// Limiter decides whether a request keyed by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config is the budget shared by both limiters: Limit requests per Window.
type Config struct {
	Limit  int           `json:"limit" yaml:"limit" mapstructure:"limit"`
	Window time.Duration `json:"window" yaml:"window" mapstructure:"window"`
}

// DefaultConfig allows 120 requests per minute.
func DefaultConfig() Config {
	return Config{Limit: 120, Window: time.Minute}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Limit <= 0 {
		c.Limit = d.Limit
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	return c
}
