package delivery_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/xraph/herald/delivery"
)

// recordingSleeper returns immediately and remembers every requested delay.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.delays)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func statuses(codes ...int) delivery.AttemptFunc {
	return func(_ context.Context, n int) delivery.Result {
		return delivery.Result{StatusCode: codes[n-1]}
	}
}

func TestMachineDeliveredFirstTry(t *testing.T) {
	sleeper := &recordingSleeper{}
	m := &delivery.Machine{Policy: delivery.DefaultPolicy(), MaxAttempts: 3, Sleeper: sleeper}

	out, err := m.Run(context.Background(), statuses(200))
	if err != nil {
		t.Fatal(err)
	}
	if out.State != delivery.StateDelivered || out.Attempts != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(sleeper.Delays()) != 0 {
		t.Fatal("no backoff expected after success")
	}
}

func TestMachineExhaustsWithBackoff(t *testing.T) {
	sleeper := &recordingSleeper{}
	m := &delivery.Machine{Policy: delivery.DefaultPolicy(), MaxAttempts: 4, Sleeper: sleeper}

	out, err := m.Run(context.Background(), statuses(500, 500, 500, 500))
	if err != nil {
		t.Fatal(err)
	}
	if out.State != delivery.StateExhausted || out.Attempts != 4 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if !slices.Equal(sleeper.Delays(), want) {
		t.Fatalf("delays = %v, want %v", sleeper.Delays(), want)
	}
}

func TestMachineRecoversOnThirdAttempt(t *testing.T) {
	m := &delivery.Machine{Policy: delivery.DefaultPolicy(), MaxAttempts: 3, Sleeper: &recordingSleeper{}}

	out, err := m.Run(context.Background(), statuses(500, 500, 200))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Success() || out.Attempts != 3 || out.Last.StatusCode != 200 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestMachineTransitions(t *testing.T) {
	var seen []delivery.State
	m := &delivery.Machine{
		Policy:      delivery.DefaultPolicy(),
		MaxAttempts: 2,
		Sleeper:     &recordingSleeper{},
		OnTransition: func(_, to delivery.State, _ int) {
			seen = append(seen, to)
		},
	}

	if _, err := m.Run(context.Background(), statuses(502, 502)); err != nil {
		t.Fatal(err)
	}

	want := []delivery.State{
		delivery.StateAttempting,
		delivery.StateRetry,
		delivery.StateAttempting,
		delivery.StateExhausted,
	}
	if !slices.Equal(seen, want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	if !seen[len(seen)-1].Terminal() {
		t.Fatal("last state must be terminal")
	}
}

func TestMachineFastFailKeepsAttemptsUsed(t *testing.T) {
	m := &delivery.Machine{
		Policy:      delivery.Policy{Backoff: delivery.DefaultBackoff(), FastFailClientErrors: true},
		MaxAttempts: 5,
		Sleeper:     &recordingSleeper{},
	}

	out, err := m.Run(context.Background(), statuses(500, 404))
	if err != nil {
		t.Fatal(err)
	}
	if out.State != delivery.StateExhausted || out.Attempts != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestMachineAbandonedDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	m := &delivery.Machine{Policy: delivery.DefaultPolicy(), MaxAttempts: 3, Sleeper: &recordingSleeper{}}

	_, err := m.Run(ctx, func(context.Context, int) delivery.Result {
		calls++
		cancel()
		return delivery.Result{StatusCode: 500}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected loop to stop after cancellation, got %d calls", calls)
	}
}

func TestMachineUsesClock(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &delivery.Machine{Policy: delivery.DefaultPolicy(), MaxAttempts: 1, Clock: fixedClock{at}}

	out, err := m.Run(context.Background(), statuses(200))
	if err != nil {
		t.Fatal(err)
	}
	if !out.StartedAt.Equal(at) || !out.FinishedAt.Equal(at) {
		t.Fatalf("expected clock times, got %v / %v", out.StartedAt, out.FinishedAt)
	}
}

func TestTimerSleeperCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := (delivery.TimerSleeper{}).Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
}
