package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process token bucket per key. A bucket holds Limit
// tokens and refills at Limit per Window. Buckets idle for longer than
// IdleTTL are evicted by a background sweep.
type LocalLimiter struct {
	cfg     Config
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*localEntry

	stop chan struct{}
	once sync.Once
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var _ Limiter = (*LocalLimiter)(nil)

// NewLocal creates a LocalLimiter and starts its eviction sweep. Call Close
// to stop the sweep.
func NewLocal(cfg Config) *LocalLimiter {
	return newLocal(cfg, time.Now)
}

func newLocal(cfg Config, now func() time.Time) *LocalLimiter {
	cfg = cfg.normalized()
	l := &LocalLimiter{
		cfg:     cfg,
		idleTTL: max(10*cfg.Window, 5*time.Minute),
		now:     now,
		entries: make(map[string]*localEntry),
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow takes one token from key's bucket.
func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		every := l.cfg.Window / time.Duration(l.cfg.Limit)
		e = &localEntry{limiter: rate.NewLimiter(rate.Every(every), l.cfg.Limit)}
		l.entries[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)
	tokens := e.limiter.TokensAt(now)
	l.mu.Unlock()

	d := Decision{
		Allowed:   allowed,
		Limit:     l.cfg.Limit,
		Remaining: max(int(tokens), 0),
	}
	// Time until one whole token is available again.
	missing := 1 - tokens
	if missing < 0 {
		missing = 0
	}
	perToken := l.cfg.Window / time.Duration(l.cfg.Limit)
	d.ResetAt = now.Add(time.Duration(missing * float64(perToken)))
	return d, nil
}

// Len reports the number of tracked keys.
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the eviction sweep.
func (l *LocalLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *LocalLimiter) sweepLoop() {
	t := time.NewTicker(l.idleTTL / 2)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			l.sweep(l.now())
		}
	}
}

func (l *LocalLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.entries, key)
		}
	}
}
