package delivery

import (
	"context"
	"time"
)

// State is a step of the per-subscription attempt loop:
//
//	pending → (attempting → {success | retry})* → {delivered | exhausted}
//
// retry returns to attempting only while attempts remain.
type State string

const (
	StatePending    State = "pending"
	StateAttempting State = "attempting"
	StateRetry      State = "retry"
	StateDelivered  State = "delivered"
	StateExhausted  State = "exhausted"
)

// Terminal reports whether s ends the loop.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateExhausted
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Sleeper waits between attempts. Sleep returns ctx.Err() if ctx ends first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep waits for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AttemptFunc performs the n-th attempt (1-based).
type AttemptFunc func(ctx context.Context, n int) Result

// Outcome is the result of a concluded loop.
type Outcome struct {
	State      State
	Attempts   int
	Last       Result
	StartedAt  time.Time
	FinishedAt time.Time
}

// Success reports whether the loop ended delivered.
func (o Outcome) Success() bool { return o.State == StateDelivered }

// Machine runs the attempt loop for one subscription. Attempts are strictly
// sequential: attempt n+1 starts only after attempt n's result is known.
type Machine struct {
	Policy      Policy
	MaxAttempts int
	Clock       Clock
	Sleeper     Sleeper

	// OnTransition observes every state change. Optional.
	OnTransition func(from, to State, attempt int)
}

// Run drives the loop to a terminal state. If ctx ends first the loop is
// abandoned and Run returns ctx.Err() with a partial outcome.
func (m *Machine) Run(ctx context.Context, attempt AttemptFunc) (Outcome, error) {
	clock := m.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	sleeper := m.Sleeper
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	maxAttempts := max(m.MaxAttempts, 1)

	out := Outcome{State: StatePending, StartedAt: clock.Now()}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		m.move(&out, StateAttempting, n)

		res := attempt(ctx, n)
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Attempts = n
		out.Last = res

		switch m.Policy.Classify(res) {
		case VerdictSuccess:
			m.finish(&out, StateDelivered, clock)
			return out, nil
		case VerdictStop:
			m.finish(&out, StateExhausted, clock)
			return out, nil
		}

		if n >= maxAttempts {
			m.finish(&out, StateExhausted, clock)
			return out, nil
		}

		m.move(&out, StateRetry, n)
		if err := sleeper.Sleep(ctx, m.Policy.Backoff.Delay(n)); err != nil {
			return out, err
		}
	}
}

func (m *Machine) move(out *Outcome, to State, n int) {
	from := out.State
	out.State = to
	if m.OnTransition != nil {
		m.OnTransition(from, to, n)
	}
}

func (m *Machine) finish(out *Outcome, to State, clock Clock) {
	m.move(out, to, out.Attempts)
	out.FinishedAt = clock.Now()
}
