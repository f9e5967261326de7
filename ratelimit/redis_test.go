package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// HERALD_TEST_REDIS points at a disposable Redis, e.g. localhost:6379.
func redisClient(t *testing.T) goredis.UniversalClient {
	t.Helper()
	addr := os.Getenv("HERALD_TEST_REDIS")
	if addr == "" {
		t.Skip("HERALD_TEST_REDIS not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisFixedWindow(t *testing.T) {
	client := redisClient(t)
	l := NewRedis(client, Config{Limit: 2, Window: time.Minute}).
		WithPrefix("herald:test:rl:" + t.Name() + ":")

	now := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 2 {
		d, err := l.Allow(ctx, "user-1")
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed || d.Remaining != 1-i {
			t.Fatalf("call %d: %+v", i+1, d)
		}
	}

	d, err := l.Allow(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("third call in window should be denied")
	}
	if want := time.Date(2025, 1, 1, 12, 1, 0, 0, time.UTC); !d.ResetAt.Equal(want) {
		t.Fatalf("reset = %v, want %v", d.ResetAt, want)
	}

	// Next window starts a fresh counter.
	now = now.Add(time.Minute)
	if d, _ := l.Allow(ctx, "user-1"); !d.Allowed {
		t.Fatal("new window should allow")
	}
}

func TestRedisKeyExpires(t *testing.T) {
	client := redisClient(t)
	prefix := "herald:test:rl:" + t.Name() + ":"
	l := NewRedis(client, Config{Limit: 5, Window: time.Minute}).WithPrefix(prefix)
	now := time.Now()
	l.now = func() time.Time { return now }

	if _, err := l.Allow(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}

	keys, err := client.Keys(context.Background(), prefix+"*").Result()
	if err != nil || len(keys) != 1 {
		t.Fatalf("keys = %v (%v)", keys, err)
	}
	ttl, err := client.PTTL(context.Background(), keys[0]).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}
	client.Del(context.Background(), keys...)
}
