package herald

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/queue"
	"github.com/xraph/herald/store"
)

// Option configures a Herald instance.
type Option func(*Herald) error

// WithStore sets the persistence backend for the Herald instance.
func WithStore(s store.Store) Option {
	return func(h *Herald) error {
		h.store = s
		return nil
	}
}

// WithQueue sets the dispatch queue. The default is an in-memory queue of
// Config.QueueSize tasks.
func WithQueue(q queue.Queue) Option {
	return func(h *Herald) error {
		h.queue = q
		return nil
	}
}

// WithLogger sets the structured logger for the Herald instance.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Herald) error {
		h.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(h *Herald) error {
		h.config = cfg
		return nil
	}
}

// WithConcurrency sets the number of dispatch tasks processed at once.
func WithConcurrency(n int) Option {
	return func(h *Herald) error {
		h.config.Concurrency = n
		return nil
	}
}

// WithFanOut sets how many subscriptions of one dispatch are delivered in parallel.
func WithFanOut(n int) Option {
	return func(h *Herald) error {
		h.config.FanOut = n
		return nil
	}
}

// WithQueueSize sets the capacity of the default in-memory queue.
func WithQueueSize(n int) Option {
	return func(h *Herald) error {
		h.config.QueueSize = n
		return nil
	}
}

// WithRequestTimeout sets the fallback per-attempt timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Herald) error {
		h.config.RequestTimeout = d
		return nil
	}
}

// WithBackoff sets the exponential backoff base and cap.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(h *Herald) error {
		h.config.BackoffBase = base
		h.config.BackoffMax = maxDelay
		return nil
	}
}

// WithFastFailClientErrors stops retrying on non-retryable 4xx responses.
func WithFastFailClientErrors(on bool) Option {
	return func(h *Herald) error {
		h.config.FastFailClientErrors = on
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight deliveries on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Herald) error {
		h.config.ShutdownTimeout = d
		return nil
	}
}

// WithCacheTTL sets the TTL for the catalog's in-memory event type cache.
func WithCacheTTL(d time.Duration) Option {
	return func(h *Herald) error {
		h.config.CacheTTL = d
		return nil
	}
}

// WithHTTPClient sets the client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Herald) error {
		h.httpClient = c
		return nil
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Herald) error {
		h.metrics = m
		return nil
	}
}

// WithTracer enables OpenTelemetry spans.
func WithTracer(t *observability.Tracer) Option {
	return func(h *Herald) error {
		h.tracer = t
		return nil
	}
}

// WithClock overrides the delivery clock and sleeper, for deterministic tests.
func WithClock(c delivery.Clock, s delivery.Sleeper) Option {
	return func(h *Herald) error {
		h.clock = c
		h.sleeper = s
		return nil
	}
}
