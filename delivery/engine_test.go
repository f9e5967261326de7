package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/queue"
	"github.com/xraph/herald/signature"
	"github.com/xraph/herald/store/memory"
	"github.com/xraph/herald/subscription"
)

const testEvent = "generation.completed"

// receiver is an httptest target that replies with a scripted status sequence.
type receiver struct {
	srv     *httptest.Server
	calls   atomic.Int32
	mu      sync.Mutex
	headers []http.Header
	bodies  [][]byte
}

func newReceiver(t *testing.T, codes ...int) *receiver {
	t.Helper()
	r := &receiver{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		n := int(r.calls.Add(1))
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.headers = append(r.headers, req.Header.Clone())
		r.bodies = append(r.bodies, body)
		r.mu.Unlock()

		code := codes[len(codes)-1]
		if n <= len(codes) {
			code = codes[n-1]
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte("reply"))
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *receiver) header(i int, name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headers[i].Get(name)
}

func (r *receiver) hasHeader(i int, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.headers[i][name]
	return ok
}

func (r *receiver) body(i int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[i]
}

type fixture struct {
	store   *memory.Store
	engine  *delivery.Engine
	sleeper *recordingSleeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()
	sleeper := &recordingSleeper{}
	e := delivery.NewEngine(s, queue.NewMemory(16), delivery.EngineConfig{
		Concurrency: 2,
		FanOut:      4,
		Policy:      delivery.DefaultPolicy(),
		Sleeper:     sleeper,
	}, nil)
	return &fixture{store: s, engine: e, sleeper: sleeper}
}

func (f *fixture) subscribe(t *testing.T, url string, edit func(*subscription.Subscription)) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		Entity:         entity.New(),
		ID:             id.NewSubscriptionID(),
		UserID:         "user-1",
		URL:            url,
		Events:         []string{testEvent},
		RetryCount:     3,
		TimeoutSeconds: 5,
		Active:         true,
	}
	if edit != nil {
		edit(sub)
	}
	if err := f.store.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatal(err)
	}
	return sub
}

func (f *fixture) reload(t *testing.T, subID id.ID) *subscription.Subscription {
	t.Helper()
	sub, err := f.store.GetSubscription(context.Background(), subID)
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func (f *fixture) records(t *testing.T, subID id.ID) []*delivery.Record {
	t.Helper()
	recs, err := f.store.ListRecords(context.Background(), subID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func newTask(event string) queue.Task {
	return queue.Task{
		UserID:    "user-1",
		Event:     event,
		Payload:   json.RawMessage(`{"event":"` + event + `","timestamp":"2025-01-01T00:00:00Z","data":{"test_cases":3}}`),
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestEngineFirstAttemptSuccess(t *testing.T) {
	f := newFixture(t)
	rcv := newReceiver(t, 200)
	sub := f.subscribe(t, rcv.srv.URL, nil)

	recs, err := f.engine.Process(context.Background(), newTask(testEvent))
	if err != nil {
		t.Fatal(err)
	}

	if rcv.calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", rcv.calls.Load())
	}
	stored := f.records(t, sub.ID)
	if len(recs) != 1 || len(stored) != 1 {
		t.Fatalf("expected exactly one record, got %d returned / %d stored", len(recs), len(stored))
	}
	rec := stored[0]
	if !rec.Success || rec.ResponseStatus != 200 || rec.Attempts != 1 || rec.ErrorMessage != "" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if string(rec.Payload) != string(newTask(testEvent).Payload) {
		t.Fatal("record must hold the payload sent")
	}

	got := f.reload(t, sub.ID)
	if got.TotalDeliveries != 1 || got.FailedDeliveries != 0 {
		t.Fatalf("counters total=%d failed=%d", got.TotalDeliveries, got.FailedDeliveries)
	}
	if got.LastStatusCode != 200 || got.LastTriggeredAt == nil {
		t.Fatalf("expected last status and trigger time, got %+v", got)
	}
}

func TestEngineAlwaysFailingExhausts(t *testing.T) {
	f := newFixture(t)
	rcv := newReceiver(t, 500)
	sub := f.subscribe(t, rcv.srv.URL, func(s *subscription.Subscription) { s.RetryCount = 4 })

	if _, err := f.engine.Process(context.Background(), newTask(testEvent)); err != nil {
		t.Fatal(err)
	}

	if rcv.calls.Load() != 4 {
		t.Fatalf("expected retry_count=4 calls, got %d", rcv.calls.Load())
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if !slices.Equal(f.sleeper.Delays(), want) {
		t.Fatalf("backoff delays = %v, want %v", f.sleeper.Delays(), want)
	}

	recs := f.records(t, sub.ID)
	if len(recs) != 1 {
		t.Fatalf("expected one record per dispatch, got %d", len(recs))
	}
	if recs[0].Success || recs[0].ResponseStatus != 500 || recs[0].Attempts != 4 {
		t.Fatalf("unexpected record %+v", recs[0])
	}
	if recs[0].ErrorMessage == "" || recs[0].ResponseBody != "reply" {
		t.Fatalf("expected failure reason captured, got %+v", recs[0])
	}

	got := f.reload(t, sub.ID)
	if got.TotalDeliveries != 1 || got.FailedDeliveries != 1 || got.LastStatusCode != 500 {
		t.Fatalf("counters total=%d failed=%d last=%d", got.TotalDeliveries, got.FailedDeliveries, got.LastStatusCode)
	}
}

func TestEngineRecoversOnThirdAttempt(t *testing.T) {
	f := newFixture(t)
	rcv := newReceiver(t, 500, 500, 200)
	sub := f.subscribe(t, rcv.srv.URL, nil)

	if _, err := f.engine.Process(context.Background(), newTask(testEvent)); err != nil {
		t.Fatal(err)
	}

	if rcv.calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", rcv.calls.Load())
	}
	rec := f.records(t, sub.ID)[0]
	if !rec.Success || rec.ResponseStatus != 200 || rec.Attempts != 3 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if got := f.reload(t, sub.ID); got.FailedDeliveries != 0 || got.TotalDeliveries != 1 {
		t.Fatalf("counters total=%d failed=%d", got.TotalDeliveries, got.FailedDeliveries)
	}
}

func TestEngineDeliveryIDStableAcrossRetries(t *testing.T) {
	f := newFixture(t)
	rcv := newReceiver(t, 500, 500, 200)
	f.subscribe(t, rcv.srv.URL, nil)

	recs, err := f.engine.Process(context.Background(), newTask(testEvent))
	if err != nil {
		t.Fatal(err)
	}

	first := rcv.header(0, delivery.HeaderDelivery)
	if first == "" {
		t.Fatal("missing delivery id")
	}
	for i := 1; i < 3; i++ {
		if got := rcv.header(i, delivery.HeaderDelivery); got != first {
			t.Fatalf("attempt %d delivery id %q, want %q", i+1, got, first)
		}
	}
	if recs[0].DeliveryID != first {
		t.Fatal("record must carry the delivery id")
	}
}

func TestEngineSignatureOnlyWithSecret(t *testing.T) {
	f := newFixture(t)
	signed := newReceiver(t, 200)
	unsigned := newReceiver(t, 200)
	f.subscribe(t, signed.srv.URL, func(s *subscription.Subscription) { s.Secret = "abc" })
	f.subscribe(t, unsigned.srv.URL, nil)

	if _, err := f.engine.Process(context.Background(), newTask(testEvent)); err != nil {
		t.Fatal(err)
	}

	sig := signed.header(0, delivery.HeaderSignature)
	if !signature.Verify(signed.body(0), "abc", sig) {
		t.Fatalf("signature %q does not verify over the exact body", sig)
	}
	if unsigned.hasHeader(0, "X-Herald-Signature") {
		t.Fatal("unsigned subscription must not receive a signature header")
	}
}

func TestEngineNoSubscriptions(t *testing.T) {
	f := newFixture(t)
	rcv := newReceiver(t, 200)
	sub := f.subscribe(t, rcv.srv.URL, nil)

	recs, err := f.engine.Process(context.Background(), newTask("testcase.deleted"))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 || rcv.calls.Load() != 0 || len(f.records(t, sub.ID)) != 0 {
		t.Fatal("unmatched event must produce no calls and no records")
	}
}

func TestEngineSkipsInactive(t *testing.T) {
	f := newFixture(t)
	rcv := newReceiver(t, 200)
	f.subscribe(t, rcv.srv.URL, func(s *subscription.Subscription) { s.Active = false })

	if _, err := f.engine.Process(context.Background(), newTask(testEvent)); err != nil {
		t.Fatal(err)
	}
	if rcv.calls.Load() != 0 {
		t.Fatal("inactive subscription must never be delivered to")
	}
}

func TestEngineSkipsOtherUsers(t *testing.T) {
	f := newFixture(t)
	rcv := newReceiver(t, 200)
	f.subscribe(t, rcv.srv.URL, func(s *subscription.Subscription) { s.UserID = "user-2" })

	if _, err := f.engine.Process(context.Background(), newTask(testEvent)); err != nil {
		t.Fatal(err)
	}
	if rcv.calls.Load() != 0 {
		t.Fatal("another user's subscription must not be delivered to")
	}
}

func TestEngineFailingTargetDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	bad := newReceiver(t, 500)
	good := newReceiver(t, 200)
	badSub := f.subscribe(t, bad.srv.URL, func(s *subscription.Subscription) { s.RetryCount = 2 })
	goodSub := f.subscribe(t, good.srv.URL, nil)
	unreachable := f.subscribe(t, "http://127.0.0.1:1/hook", func(s *subscription.Subscription) { s.RetryCount = 1 })

	recs, err := f.engine.Process(context.Background(), newTask(testEvent))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected a record per subscription, got %d", len(recs))
	}
	if !f.records(t, goodSub.ID)[0].Success {
		t.Fatal("healthy subscription should succeed")
	}
	if f.records(t, badSub.ID)[0].Success {
		t.Fatal("failing subscription should be recorded as failed")
	}
	rec := f.records(t, unreachable.ID)[0]
	if rec.Success || rec.ResponseStatus != 0 || rec.ErrorMessage == "" {
		t.Fatalf("unreachable target should record a network error, got %+v", rec)
	}
}

func TestEngineAbandonedLoopWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cancel()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	sub := f.subscribe(t, srv.URL, nil)

	_, err := f.engine.Process(ctx, newTask(testEvent))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
	if len(f.records(t, sub.ID)) != 0 {
		t.Fatal("abandoned loop must not write a record")
	}
	if got := f.reload(t, sub.ID); got.TotalDeliveries != 0 {
		t.Fatal("abandoned loop must not update counters")
	}
}

func TestEnginePinnedTaskIgnoresFilter(t *testing.T) {
	f := newFixture(t)
	rcv := newReceiver(t, 200)
	sub := f.subscribe(t, rcv.srv.URL, nil)

	task := newTask("webhook.test")
	task.SubscriptionID = sub.ID
	recs, err := f.engine.Process(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || rcv.header(0, delivery.HeaderEvent) != "webhook.test" {
		t.Fatal("pinned task should reach its subscription")
	}
}

// failingStore wraps the memory store with injectable failures.
type failingStore struct {
	*memory.Store
	findErr        error
	appendFailures atomic.Int32
	appendCalls    atomic.Int32

	incrementErr      error
	incrementFailures atomic.Int32
	incrementCalls    atomic.Int32
}

func (s *failingStore) IncrementDeliveryCounters(ctx context.Context, subID id.ID, statusCode int, success bool, at time.Time) error {
	s.incrementCalls.Add(1)
	if s.incrementFailures.Add(-1) >= 0 {
		return s.incrementErr
	}
	return s.Store.IncrementDeliveryCounters(ctx, subID, statusCode, success, at)
}

func (s *failingStore) FindActiveByUserAndEvent(ctx context.Context, userID, event string) ([]*subscription.Subscription, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.Store.FindActiveByUserAndEvent(ctx, userID, event)
}

func (s *failingStore) AppendRecord(ctx context.Context, r *delivery.Record) error {
	s.appendCalls.Add(1)
	if s.appendFailures.Add(-1) >= 0 {
		return errors.New("store unavailable")
	}
	return s.Store.AppendRecord(ctx, r)
}

func TestEngineLookupFailureAborts(t *testing.T) {
	rcv := newReceiver(t, 200)
	fs := &failingStore{Store: memory.New(), findErr: errors.New("lookup down")}
	e := delivery.NewEngine(fs, queue.NewMemory(1), delivery.EngineConfig{Sleeper: &recordingSleeper{}}, nil)

	f := &fixture{store: fs.Store}
	f.subscribe(t, rcv.srv.URL, nil)

	_, err := e.Process(context.Background(), newTask(testEvent))
	if err == nil {
		t.Fatal("expected lookup error")
	}
	if rcv.calls.Load() != 0 {
		t.Fatal("nothing should be delivered when lookup fails")
	}
}

func TestEnginePersistenceIsBoundedBestEffort(t *testing.T) {
	rcv := newReceiver(t, 200)
	fs := &failingStore{Store: memory.New()}
	fs.appendFailures.Store(2)
	sleeper := &recordingSleeper{}
	e := delivery.NewEngine(fs, queue.NewMemory(1), delivery.EngineConfig{
		Sleeper:         sleeper,
		PersistAttempts: 3,
		PersistBackoff:  10 * time.Millisecond,
	}, nil)

	f := &fixture{store: fs.Store}
	sub := f.subscribe(t, rcv.srv.URL, nil)

	if _, err := e.Process(context.Background(), newTask(testEvent)); err != nil {
		t.Fatal(err)
	}
	if fs.appendCalls.Load() != 3 {
		t.Fatalf("expected 3 append attempts, got %d", fs.appendCalls.Load())
	}
	if len(f.records(t, sub.ID)) != 1 {
		t.Fatal("record should land after transient failures")
	}
	if rcv.calls.Load() != 1 {
		t.Fatal("persistence retries must not resend the webhook")
	}

	// Permanent failure gives up after PersistAttempts and still updates counters.
	fs.appendFailures.Store(100)
	fs.appendCalls.Store(0)
	if _, err := e.Process(context.Background(), newTask(testEvent)); err != nil {
		t.Fatal(err)
	}
	if fs.appendCalls.Load() != 3 {
		t.Fatalf("expected bounded attempts, got %d", fs.appendCalls.Load())
	}
	if got := f.reload(t, sub.ID); got.TotalDeliveries != 2 {
		t.Fatalf("expected counters updated for both dispatches, got %d", got.TotalDeliveries)
	}
}

func TestEngineCounterUpdateNotRetriedAfterAmbiguousError(t *testing.T) {
	rcv := newReceiver(t, 200)
	// The write may have committed before the error surfaced.
	fs := &failingStore{Store: memory.New(), incrementErr: errors.New("connection reset by peer")}
	fs.incrementFailures.Store(1)
	e := delivery.NewEngine(fs, queue.NewMemory(1), delivery.EngineConfig{
		Sleeper:         &recordingSleeper{},
		PersistAttempts: 3,
	}, nil)

	f := &fixture{store: fs.Store}
	sub := f.subscribe(t, rcv.srv.URL, nil)

	if _, err := e.Process(context.Background(), newTask(testEvent)); err != nil {
		t.Fatal(err)
	}
	if n := fs.incrementCalls.Load(); n != 1 {
		t.Fatalf("increment calls = %d, want 1", n)
	}
	if got := f.reload(t, sub.ID); got.TotalDeliveries != 0 {
		t.Fatalf("total = %d, want the dispatch left uncounted", got.TotalDeliveries)
	}
	if len(f.records(t, sub.ID)) != 1 {
		t.Fatal("record should still be written")
	}
}

func TestEngineCounterUpdateRetriedWhenNeverSent(t *testing.T) {
	rcv := newReceiver(t, 200)
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	fs := &failingStore{Store: memory.New(), incrementErr: fmt.Errorf("store: %w", refused)}
	fs.incrementFailures.Store(2)
	e := delivery.NewEngine(fs, queue.NewMemory(1), delivery.EngineConfig{
		Sleeper:         &recordingSleeper{},
		PersistAttempts: 3,
	}, nil)

	f := &fixture{store: fs.Store}
	sub := f.subscribe(t, rcv.srv.URL, nil)

	if _, err := e.Process(context.Background(), newTask(testEvent)); err != nil {
		t.Fatal(err)
	}
	if n := fs.incrementCalls.Load(); n != 3 {
		t.Fatalf("increment calls = %d, want 3", n)
	}
	if got := f.reload(t, sub.ID); got.TotalDeliveries != 1 {
		t.Fatalf("total = %d, want 1", got.TotalDeliveries)
	}
}

func TestEngineStartTwiceRunsOneLoop(t *testing.T) {
	s := memory.New()
	q := queue.NewMemory(8)
	e := delivery.NewEngine(s, q, delivery.EngineConfig{Concurrency: 1, Sleeper: &recordingSleeper{}}, nil)

	rcv := newReceiver(t, 200)
	f := &fixture{store: s}
	sub := f.subscribe(t, rcv.srv.URL, nil)

	e.Start(context.Background())
	e.Start(context.Background())
	if err := q.Enqueue(context.Background(), newTask(testEvent)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(f.records(t, sub.ID)) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("task not consumed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A leaked first loop would keep Stop waiting on it forever.
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}
	if err := e.Stop(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	// A stopped engine no longer consumes.
	if err := q.Enqueue(context.Background(), newTask(testEvent)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := rcv.calls.Load(); n != 1 {
		t.Fatalf("deliveries = %d, want 1 after stop", n)
	}

	// And can be started again.
	e.Start(context.Background())
	deadline = time.Now().Add(5 * time.Second)
	for len(f.records(t, sub.ID)) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("restarted engine did not consume")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := e.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}
}

func TestEngineWorkerPoolConsumesQueue(t *testing.T) {
	s := memory.New()
	q := queue.NewMemory(8)
	e := delivery.NewEngine(s, q, delivery.EngineConfig{Concurrency: 2, Sleeper: &recordingSleeper{}}, nil)

	rcv := newReceiver(t, 200)
	f := &fixture{store: s}
	sub := f.subscribe(t, rcv.srv.URL, nil)

	e.Start(context.Background())
	for range 3 {
		if err := q.Enqueue(context.Background(), newTask(testEvent)); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(f.records(t, sub.ID)) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 records, got %d", len(f.records(t, sub.ID)))
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}
	if got := f.reload(t, sub.ID); got.TotalDeliveries != 3 {
		t.Fatalf("expected 3 deliveries counted, got %d", got.TotalDeliveries)
	}
}
