package redis_test

import (
	"context"
	"os"
	"testing"

	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	"github.com/xraph/herald/store"
	"github.com/xraph/herald/store/redis"
	"github.com/xraph/herald/store/storetest"
)

// HERALD_TEST_REDIS points at a disposable Redis, e.g. localhost:6379.
func openStore(t *testing.T) store.Store {
	t.Helper()
	addr := os.Getenv("HERALD_TEST_REDIS")
	if addr == "" {
		t.Skip("HERALD_TEST_REDIS not set")
	}
	ctx := context.Background()

	drv := redisdriver.New()
	if err := drv.Open(ctx, "redis://"+addr); err != nil {
		t.Fatal(err)
	}
	kvs, err := kv.Open(drv)
	if err != nil {
		t.Fatal(err)
	}

	s := redis.New(kvs)
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, openStore)
}
