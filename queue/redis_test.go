package queue_test

import (
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/queue"
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

func TestRedisQueueRoundTrip(t *testing.T) {
	client := redisClient(t)
	key := "herald:test:queue:" + id.NewRecordID().String()
	t.Cleanup(func() { client.Del(ctx(), key) })

	q := queue.NewRedis(client, queue.WithKey(key))

	in := task("generation.completed")
	in.SubscriptionID = id.NewSubscriptionID()
	if err := q.Enqueue(ctx(), in); err != nil {
		t.Fatal(err)
	}

	n, err := q.Len(ctx())
	if err != nil || n != 1 {
		t.Fatalf("expected len 1, got %d (%v)", n, err)
	}

	out, err := q.Dequeue(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if out.Event != in.Event || string(out.Payload) != string(in.Payload) {
		t.Fatalf("task mismatch: %+v", out)
	}
	if out.SubscriptionID.String() != in.SubscriptionID.String() {
		t.Fatal("pinned subscription lost in transit")
	}
}
