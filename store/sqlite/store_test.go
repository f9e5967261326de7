package sqlite_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/store"
	"github.com/xraph/herald/store/sqlite"
	"github.com/xraph/herald/store/storetest"
	"github.com/xraph/herald/subscription"
)

// openStore returns a migrated store on a fresh database file.
func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	dsn := "file:" + filepath.Join(t.TempDir(), "herald.db") + "?_pragma=busy_timeout(5000)"
	drv := sqlitedriver.New()
	if err := drv.Open(ctx, dsn); err != nil {
		t.Fatal(err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		t.Fatal(err)
	}

	s := sqlite.New(db)
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openStore(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestDispatchSyncPersists(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	// Fail twice, then accept.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	h, err := herald.New(
		herald.WithStore(s),
		herald.WithClock(delivery.SystemClock{}, noSleep{}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.RegisterDefaultEventTypes(ctx); err != nil {
		t.Fatal(err)
	}

	sub, err := h.Subscriptions().Create(ctx, subscription.Input{
		UserID: "user-1",
		URL:    srv.URL,
		Events: []string{"generation.completed"},
		Secret: "whsec_test",
	})
	if err != nil {
		t.Fatal(err)
	}
	paused, err := h.Subscriptions().Create(ctx, subscription.Input{
		UserID: "user-1",
		URL:    srv.URL,
		Events: []string{"generation.completed"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Subscriptions().SetActive(ctx, paused.ID, false); err != nil {
		t.Fatal(err)
	}

	records, err := h.DispatchSync(ctx, "user-1", "generation.completed", map[string]any{"generation_id": "gen_1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if rec := records[0]; !rec.Success || rec.Attempts != 3 || rec.SubscriptionID.String() != sub.ID.String() {
		t.Fatalf("record = %+v", rec)
	}

	got, err := s.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalDeliveries != 1 || got.FailedDeliveries != 0 || got.LastStatusCode != http.StatusOK {
		t.Fatalf("counters = %d/%d last=%d", got.TotalDeliveries, got.FailedDeliveries, got.LastStatusCode)
	}
	if got.LastTriggeredAt == nil {
		t.Fatal("last_triggered_at not set")
	}

	stored, err := s.ListRecords(ctx, sub.ID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].ResponseStatus != http.StatusOK {
		t.Fatalf("stored records = %+v", stored)
	}

	none, err := s.ListRecords(ctx, paused.ID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("inactive subscription received %d deliveries", len(none))
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("target calls = %d, want 3", n)
	}
}
