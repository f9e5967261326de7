package delivery

import "time"

// Backoff computes the wait between attempts: Base·2^(n-1) after attempt n,
// capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff waits 2s, 4s, 8s, ... up to 5 minutes.
func DefaultBackoff() Backoff {
	return Backoff{Base: 2 * time.Second, Max: 5 * time.Minute}
}

// Delay returns the wait after the given 1-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
		// Overflow guard when Max is unset.
		if d <= 0 {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Verdict is the policy's reading of one attempt.
type Verdict int

const (
	// VerdictSuccess ends the loop as delivered.
	VerdictSuccess Verdict = iota

	// VerdictRetry continues the loop while attempts remain.
	VerdictRetry

	// VerdictStop ends the loop as exhausted regardless of remaining attempts.
	VerdictStop
)

// Policy decides what follows an attempt.
//
// Decision matrix:
//   - 2xx → success
//   - anything else (network error, timeout, 4xx, 5xx) → retry
//   - with FastFailClientErrors, 4xx other than 408 and 429 → stop
type Policy struct {
	Backoff              Backoff
	FastFailClientErrors bool
}

// DefaultPolicy retries every failure with DefaultBackoff.
func DefaultPolicy() Policy {
	return Policy{Backoff: DefaultBackoff()}
}

// Classify maps an attempt result to a verdict.
func (p Policy) Classify(res Result) Verdict {
	if res.Success() {
		return VerdictSuccess
	}
	code := res.StatusCode
	if p.FastFailClientErrors && code >= 400 && code < 500 && code != 408 && code != 429 {
		return VerdictStop
	}
	return VerdictRetry
}
