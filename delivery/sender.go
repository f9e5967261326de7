package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBody = 1024 // 1KB cap on response body storage

// DefaultTimeout bounds an attempt when the subscription carries none.
const DefaultTimeout = 30 * time.Second

// Request is one fully-built outbound delivery.
type Request struct {
	URL    string
	Body   []byte
	Header http.Header
}

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Response   string
	LatencyMs  int
	Error      string
	TimedOut   bool
}

// Success reports whether the attempt received a 2xx response.
func (r Result) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Sender performs HTTP webhook delivery.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender on client. A nil client uses a fresh
// http.Client; deadlines come from the per-attempt context.
func NewSender(client *http.Client) *Sender {
	if client == nil {
		client = &http.Client{}
	}
	return &Sender{client: client}
}

// Send issues one POST bounded by timeout and returns its result. It never
// returns an error: failures are described in the Result.
func (s *Sender) Send(ctx context.Context, req Request, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header = req.Header.Clone()

	start := time.Now()
	resp, err := s.client.Do(httpReq) //nolint:gosec // URL is the user-configured webhook target.
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		if timedOut(ctx, attemptCtx) {
			return Result{
				Error:     fmt.Sprintf("request timed out after %s", timeout),
				LatencyMs: latency,
				TimedOut:  true,
			}
		}
		return Result{Error: err.Error(), LatencyMs: latency}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	res := Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  latency,
	}
	if readErr != nil && !res.Success() {
		res.Error = fmt.Sprintf("read response: %v", readErr)
		return res
	}
	if !res.Success() {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return res
}

// timedOut distinguishes our per-attempt deadline from the caller giving up.
func timedOut(parent, attempt context.Context) bool {
	return parent.Err() == nil && errors.Is(attempt.Err(), context.DeadlineExceeded)
}
