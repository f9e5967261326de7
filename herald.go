package herald

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/queue"
	"github.com/xraph/herald/store"
	"github.com/xraph/herald/subscription"
)

// Herald is the root webhook dispatcher.
type Herald struct {
	config     Config
	store      store.Store
	queue      queue.Queue
	ownsQueue  bool
	logger     *slog.Logger
	httpClient *http.Client
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	clock      delivery.Clock
	sleeper    delivery.Sleeper

	catalog         *catalog.Catalog
	validator       *catalog.Validator
	subscriptionSvc *subscription.Service
	engine          *delivery.Engine
}

// Envelope is the JSON document POSTed to subscribers.
type Envelope struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New creates a Herald instance with the given options.
func New(opts ...Option) (*Herald, error) {
	h := &Herald{
		config: DefaultConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}

	if h.store == nil {
		return nil, ErrNoStore
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.clock == nil {
		h.clock = delivery.SystemClock{}
	}
	if h.queue == nil {
		h.queue = queue.NewMemory(h.config.QueueSize)
		h.ownsQueue = true
	}

	h.wireServices()

	return h, nil
}

// wireServices initializes the internal services after options have been applied.
func (h *Herald) wireServices() {
	h.catalog = catalog.NewCatalog(h.store, catalog.Config{
		CacheTTL: h.config.CacheTTL,
	}, h.logger)

	h.validator = catalog.NewValidator()

	h.subscriptionSvc = subscription.NewService(h.store, h, h.logger)

	h.engine = delivery.NewEngine(h.store, h.queue, delivery.EngineConfig{
		Concurrency: h.config.Concurrency,
		FanOut:      h.config.FanOut,
		Policy: delivery.Policy{
			Backoff: delivery.Backoff{
				Base: h.config.BackoffBase,
				Max:  h.config.BackoffMax,
			},
			FastFailClientErrors: h.config.FastFailClientErrors,
		},
		RequestTimeout: h.config.RequestTimeout,
		HTTPClient:     h.httpClient,
		Clock:          h.clock,
		Sleeper:        h.sleeper,
		Metrics:        h.metrics,
		Tracer:         h.tracer,
	}, h.logger)
}

// Start begins consuming the dispatch queue.
func (h *Herald) Start(ctx context.Context) {
	h.engine.Start(ctx)
}

// Stop stops the workers and waits up to ShutdownTimeout for in-flight
// deliveries. Loops still running after that are abandoned without a record.
func (h *Herald) Stop(ctx context.Context) error {
	if h.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.ShutdownTimeout)
		defer cancel()
	}

	err := h.engine.Stop(ctx)
	if h.ownsQueue {
		if closeErr := h.queue.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	return err
}

// RegisterEventType registers a webhook event type definition in the catalog.
func (h *Herald) RegisterEventType(ctx context.Context, def catalog.WebhookDefinition, opts ...catalog.RegisterOption) (*catalog.EventType, error) {
	return h.catalog.RegisterType(ctx, def, opts...)
}

// RegisterDefaultEventTypes registers the built-in event taxonomy.
func (h *Herald) RegisterDefaultEventTypes(ctx context.Context) error {
	return h.catalog.RegisterDefaults(ctx)
}

// KnownEvent reports whether name is a registered, non-deprecated event type.
func (h *Herald) KnownEvent(ctx context.Context, name string) (bool, error) {
	et, err := h.catalog.GetType(ctx, name)
	if errors.Is(err, ErrEventTypeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !et.IsDeprecated, nil
}

// Dispatch validates an event and queues it for delivery to every active
// subscription of userID that lists it.
//
// The critical path:
//  1. Look up the event type (reject unknown and deprecated types).
//  2. Validate data against the type's JSON Schema, if one is set.
//  3. Build and serialize the envelope once.
//  4. Enqueue the task.
//
// Only input and enqueue errors are returned. Delivery outcomes are recorded
// in the store and never reach the caller.
func (h *Herald) Dispatch(ctx context.Context, userID, event string, data any) error {
	task, err := h.prepare(ctx, userID, event, data)
	if err != nil {
		return err
	}

	if err := h.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("herald: enqueue %s: %w", event, err)
	}

	h.logger.DebugContext(ctx, "event dispatched", "user_id", userID, "event", event)
	return nil
}

// DispatchSync validates an event like Dispatch and then delivers it inline,
// returning one record per subscription reached.
func (h *Herald) DispatchSync(ctx context.Context, userID, event string, data any) ([]*delivery.Record, error) {
	task, err := h.prepare(ctx, userID, event, data)
	if err != nil {
		return nil, err
	}
	return h.engine.Process(ctx, task)
}

// SendTest delivers a webhook.test event to one subscription inline, whether
// or not the subscription lists that event or is active.
func (h *Herald) SendTest(ctx context.Context, subID id.ID) (*delivery.Record, error) {
	sub, err := h.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	data := map[string]string{
		"message":         "This is a test webhook from Herald.",
		"subscription_id": sub.ID.String(),
	}
	ts := h.clock.Now()
	payload, err := buildEnvelope(catalog.EventWebhookTest, ts, data)
	if err != nil {
		return nil, err
	}

	records, err := h.engine.Process(ctx, queue.Task{
		UserID:         sub.UserID,
		Event:          catalog.EventWebhookTest,
		Payload:        payload,
		Timestamp:      ts,
		SubscriptionID: sub.ID,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrSubscriptionNotFound
	}
	return records[0], nil
}

// prepare runs the synchronous part of a dispatch and returns the task.
func (h *Herald) prepare(ctx context.Context, userID, event string, data any) (queue.Task, error) {
	if userID == "" || event == "" {
		return queue.Task{}, ErrInvalidDispatch
	}

	et, err := h.catalog.GetType(ctx, event)
	if err != nil {
		if errors.Is(err, ErrEventTypeNotFound) {
			return queue.Task{}, fmt.Errorf("%w: %s", ErrEventTypeNotFound, event)
		}
		return queue.Task{}, err
	}
	if et.IsDeprecated {
		return queue.Task{}, fmt.Errorf("%w: %s", ErrEventTypeDeprecated, event)
	}

	raw, err := marshalData(data)
	if err != nil {
		return queue.Task{}, err
	}

	if len(et.Definition.Schema) > 0 {
		if err := h.validator.ValidateJSON(et.Definition.Schema, raw); err != nil {
			return queue.Task{}, fmt.Errorf("%w: %w", ErrPayloadValidationFailed, err)
		}
	}

	ts := h.clock.Now()
	payload, err := buildEnvelope(event, ts, json.RawMessage(raw))
	if err != nil {
		return queue.Task{}, err
	}

	return queue.Task{
		UserID:    userID,
		Event:     event,
		Payload:   payload,
		Timestamp: ts,
	}, nil
}

func marshalData(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: data is not valid JSON", ErrPayloadValidationFailed)
		}
		return v, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("herald: marshal data: %w", err)
	}
	return raw, nil
}

func buildEnvelope(event string, ts time.Time, data any) (json.RawMessage, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(Envelope{
		Event:     event,
		Timestamp: ts.UTC().Format(delivery.TimestampFormat),
		Data:      raw,
	})
	if err != nil {
		return nil, fmt.Errorf("herald: marshal envelope: %w", err)
	}
	return b, nil
}

// Catalog returns the event type catalog.
func (h *Herald) Catalog() *catalog.Catalog { return h.catalog }

// Subscriptions returns the subscription service.
func (h *Herald) Subscriptions() *subscription.Service { return h.subscriptionSvc }

// Records returns the delivery record store.
func (h *Herald) Records() delivery.Store { return h.store }

// Store returns the underlying composite store.
func (h *Herald) Store() store.Store { return h.store }

// Engine returns the delivery engine.
func (h *Herald) Engine() *delivery.Engine { return h.engine }

// Queue returns the dispatch queue.
func (h *Herald) Queue() queue.Queue { return h.queue }
