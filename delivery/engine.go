package delivery

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/queue"
	"github.com/xraph/herald/subscription"
)

// EngineStore is the interface the engine needs from persistence.
type EngineStore interface {
	FindActiveByUserAndEvent(ctx context.Context, userID, event string) ([]*subscription.Subscription, error)
	GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error)
	IncrementDeliveryCounters(ctx context.Context, subID id.ID, statusCode int, success bool, at time.Time) error
	AppendRecord(ctx context.Context, r *Record) error
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	// Concurrency is the number of dispatch tasks processed at once.
	Concurrency int

	// FanOut bounds the subscriptions delivered in parallel per task.
	FanOut int

	Policy Policy

	// RequestTimeout bounds an attempt when a subscription carries no timeout.
	RequestTimeout time.Duration

	// PersistAttempts bounds writes of the record and counters after a loop.
	// Record appends are retried on any error since a duplicate append fails
	// on the record ID. Counter increments are not idempotent, so they are
	// retried only when the error shows the write never reached the store
	// (a refused dial or a bad pooled connection). Any other counter failure
	// is logged and the dispatch is left uncounted rather than counted twice.
	PersistAttempts int

	// PersistBackoff is the initial wait between persistence attempts.
	PersistBackoff time.Duration

	// HTTPClient is used for deliveries. Nil uses a default client.
	HTTPClient *http.Client

	Clock   Clock
	Sleeper Sleeper

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Engine is the delivery worker pool. It consumes dispatch tasks from a
// queue and runs one attempt loop per matching subscription.
type Engine struct {
	store  EngineStore
	queue  queue.Queue
	sender *Sender
	config EngineConfig
	logger *slog.Logger

	mu         sync.Mutex
	cancelLoop context.CancelFunc
	cancelWork context.CancelFunc
	loopWG     sync.WaitGroup
	workWG     sync.WaitGroup
}

// NewEngine creates a delivery engine.
func NewEngine(store EngineStore, q queue.Queue, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = 1
	}
	if cfg.PersistAttempts <= 0 {
		cfg.PersistAttempts = 3
	}
	if cfg.PersistBackoff <= 0 {
		cfg.PersistBackoff = 100 * time.Millisecond
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = TimerSleeper{}
	}
	return &Engine{
		store:  store,
		queue:  q,
		sender: NewSender(cfg.HTTPClient),
		config: cfg,
		logger: logger,
	}
}

// Start begins consuming the queue. Calling Start on a running engine is a
// no-op; an engine may be started again after Stop returns.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelLoop != nil {
		return
	}

	loopCtx, cancelLoop := context.WithCancel(ctx)
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	e.cancelLoop = cancelLoop
	e.cancelWork = cancelWork

	e.loopWG.Add(1)
	go func() {
		defer e.loopWG.Done()
		e.consumeLoop(loopCtx, workCtx)
	}()
}

// Stop stops consuming and waits for in-flight tasks. If ctx ends first the
// remaining attempt loops are abandoned and ctx.Err() is returned.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancelLoop, cancelWork := e.cancelLoop, e.cancelWork
	e.cancelLoop, e.cancelWork = nil, nil
	e.mu.Unlock()
	if cancelLoop == nil {
		return nil
	}
	cancelLoop()
	e.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		e.workWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancelWork()
		return nil
	case <-ctx.Done():
		cancelWork()
		<-done
		return ctx.Err()
	}
}

// consumeLoop dequeues tasks and hands them to workers, at most Concurrency at once.
func (e *Engine) consumeLoop(loopCtx, workCtx context.Context) {
	sem := make(chan struct{}, e.config.Concurrency)

	for {
		task, err := e.queue.Dequeue(loopCtx)
		if err != nil {
			if loopCtx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			e.logger.ErrorContext(loopCtx, "dequeue failed", "error", err)
			if sleepErr := e.config.Sleeper.Sleep(loopCtx, time.Second); sleepErr != nil {
				return
			}
			continue
		}

		if n, lenErr := e.queue.Len(loopCtx); lenErr == nil {
			e.config.Metrics.SetQueueDepth(n)
		}

		select {
		case <-loopCtx.Done():
			// Put the task back for another instance or the next start.
			if requeueErr := e.queue.Enqueue(workCtx, task); requeueErr != nil {
				e.logger.ErrorContext(workCtx, "requeue on shutdown failed",
					"event", task.Event, "error", requeueErr)
			}
			return
		case sem <- struct{}{}:
		}

		e.workWG.Add(1)
		go func(t queue.Task) {
			defer e.workWG.Done()
			defer func() { <-sem }()
			if _, processErr := e.Process(workCtx, t); processErr != nil {
				e.logger.ErrorContext(workCtx, "dispatch failed",
					"user_id", t.UserID, "event", t.Event, "error", processErr)
			}
		}(task)
	}
}

// Process runs one dispatch task inline: it resolves the subscriptions and
// delivers to each, with at most FanOut loops in parallel. It returns the
// records written; a subscription lookup failure aborts the task.
func (e *Engine) Process(ctx context.Context, task queue.Task) ([]*Record, error) {
	ctx, span := e.config.Tracer.StartDispatchSpan(ctx, task.UserID, task.Event)
	e.config.Metrics.RecordDispatch()

	subs, err := e.resolve(ctx, task)
	if err != nil {
		e.config.Tracer.EndDispatchSpan(span, 0, err)
		return nil, fmt.Errorf("herald: resolve subscriptions: %w", err)
	}
	if len(subs) == 0 {
		e.config.Tracer.EndDispatchSpan(span, 0, nil)
		return nil, nil
	}

	records := make([]*Record, len(subs))
	var g errgroup.Group
	g.SetLimit(e.config.FanOut)
	for i, sub := range subs {
		g.Go(func() error {
			rec, deliverErr := e.deliver(ctx, task, sub)
			if deliverErr != nil {
				return deliverErr
			}
			records[i] = rec
			return nil
		})
	}
	waitErr := g.Wait()

	out := make([]*Record, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			out = append(out, rec)
		}
	}

	e.config.Tracer.EndDispatchSpan(span, len(subs), waitErr)
	return out, waitErr
}

// resolve returns the subscriptions a task reaches.
func (e *Engine) resolve(ctx context.Context, task queue.Task) ([]*subscription.Subscription, error) {
	if task.Pinned() {
		sub, err := e.store.GetSubscription(ctx, task.SubscriptionID)
		if err != nil {
			return nil, err
		}
		if sub.UserID != task.UserID {
			return nil, nil
		}
		return []*subscription.Subscription{sub}, nil
	}

	found, err := e.store.FindActiveByUserAndEvent(ctx, task.UserID, task.Event)
	if err != nil {
		return nil, err
	}

	subs := found[:0:0]
	for _, sub := range found {
		if sub.Matches(task.UserID, task.Event) {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// deliver runs the attempt loop for one subscription and persists its outcome.
// It returns ctx.Err() without writing anything when the loop is abandoned.
func (e *Engine) deliver(ctx context.Context, task queue.Task, sub *subscription.Subscription) (*Record, error) {
	deliveryID := uuid.NewString()
	req := Request{
		URL:    sub.URL,
		Body:   task.Payload,
		Header: BuildHeaders(task.Event, deliveryID, task.Timestamp, task.Payload, sub.Secret, sub.Headers),
	}

	e.config.Metrics.DeliveryStarted()
	defer e.config.Metrics.DeliveryFinished()

	ctx, span := e.config.Tracer.StartDeliverySpan(ctx, deliveryID, task.Event, sub.ID.String())
	log := e.logger.With(
		"subscription_id", sub.ID.String(),
		"delivery_id", deliveryID,
		"event", task.Event,
	)

	m := &Machine{
		Policy:      e.config.Policy,
		MaxAttempts: sub.RetryCount,
		Clock:       e.config.Clock,
		Sleeper:     e.config.Sleeper,
		OnTransition: func(from, to State, attempt int) {
			log.DebugContext(ctx, "delivery transition", "from", from, "to", to, "attempt", attempt)
		},
	}

	timeout := sub.Timeout()
	if timeout <= 0 {
		timeout = e.config.RequestTimeout
	}

	out, err := m.Run(ctx, func(ctx context.Context, n int) Result {
		res := e.sender.Send(ctx, req, timeout)
		switch {
		case res.Success():
			e.config.Metrics.RecordAttempt(observability.AttemptSuccess)
		case res.TimedOut:
			e.config.Metrics.RecordAttempt(observability.AttemptTimeout)
		default:
			e.config.Metrics.RecordAttempt(observability.AttemptFailure)
		}
		log.DebugContext(ctx, "delivery attempt",
			"attempt", n,
			"status", res.StatusCode,
			"latency_ms", res.LatencyMs,
			"error", res.Error,
		)
		return res
	})
	if err != nil {
		e.config.Metrics.RecordDelivery(observability.StatusAbandoned, 0)
		e.config.Tracer.EndDeliverySpan(span, out.Last.StatusCode, out.Last.LatencyMs, out.Attempts, err.Error())
		log.WarnContext(ctx, "delivery abandoned", "attempt", out.Attempts, "error", err)
		return nil, err
	}

	rec := newRecord(task, sub, deliveryID, out)
	e.persist(ctx, log, rec, out)

	latency := float64(out.Last.LatencyMs) / 1000.0
	if out.Success() {
		e.config.Metrics.RecordDelivery(observability.StatusDelivered, latency)
		log.DebugContext(ctx, "delivered",
			"status", out.Last.StatusCode, "attempt", out.Attempts, "latency_ms", out.Last.LatencyMs)
	} else {
		e.config.Metrics.RecordDelivery(observability.StatusExhausted, latency)
		log.WarnContext(ctx, "delivery exhausted",
			"status", out.Last.StatusCode, "attempt", out.Attempts, "error", rec.ErrorMessage)
	}
	e.config.Tracer.EndDeliverySpan(span, out.Last.StatusCode, out.Last.LatencyMs, out.Attempts, rec.ErrorMessage)

	return rec, nil
}

func newRecord(task queue.Task, sub *subscription.Subscription, deliveryID string, out Outcome) *Record {
	rec := &Record{
		Entity:         entity.Entity{CreatedAt: out.FinishedAt, UpdatedAt: out.FinishedAt},
		ID:             id.NewRecordID(),
		SubscriptionID: sub.ID,
		UserID:         task.UserID,
		DeliveryID:     deliveryID,
		EventType:      task.Event,
		Payload:        task.Payload,
		ResponseStatus: out.Last.StatusCode,
		ResponseBody:   out.Last.Response,
		ResponseTimeMs: out.Last.LatencyMs,
		Attempts:       out.Attempts,
		Success:        out.Success(),
	}
	if !rec.Success {
		rec.ErrorMessage = out.Last.Error
	}
	return rec
}

// persist writes the record and the counters, each with bounded retries.
// The loop has concluded, so cancellation of ctx no longer applies.
func (e *Engine) persist(ctx context.Context, log *slog.Logger, rec *Record, out Outcome) {
	ctx = context.WithoutCancel(ctx)

	appendRecord := func() error { return e.store.AppendRecord(ctx, rec) }
	if err := e.retryStore(ctx, anyError, appendRecord); err != nil {
		log.ErrorContext(ctx, "append delivery record failed", "error", err)
	}

	err := e.retryStore(ctx, notSent, func() error {
		return e.store.IncrementDeliveryCounters(ctx, rec.SubscriptionID, out.Last.StatusCode, rec.Success, out.FinishedAt)
	})
	if err != nil {
		log.ErrorContext(ctx, "update subscription counters failed", "error", err)
	}
}

// retryStore runs op up to PersistAttempts times while retryable accepts
// the error it returns.
func (e *Engine) retryStore(ctx context.Context, retryable func(error) bool, op func() error) error {
	wait := e.config.PersistBackoff
	var err error
	for i := range e.config.PersistAttempts {
		if err = op(); err == nil || !retryable(err) {
			return err
		}
		if i+1 < e.config.PersistAttempts {
			_ = e.config.Sleeper.Sleep(ctx, wait) //nolint:errcheck // ctx is detached
			wait *= 2
		}
	}
	return err
}

func anyError(error) bool { return true }

// notSent reports whether err proves the request never reached the store.
func notSent(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
