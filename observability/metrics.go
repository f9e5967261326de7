package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcome labels.
const (
	StatusDelivered = "delivered"
	StatusExhausted = "exhausted"
	StatusAbandoned = "abandoned"
)

// Attempt outcome labels.
const (
	AttemptSuccess = "success"
	AttemptFailure = "failure"
	AttemptTimeout = "timeout"
)

// Metrics holds the Prometheus instruments for Herald. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	DispatchesTotal       prometheus.Counter
	DeliveriesTotal       *prometheus.CounterVec
	DeliveryAttemptsTotal *prometheus.CounterVec
	DeliveryLatency       prometheus.Histogram
	QueueDepth            prometheus.Gauge
	InflightDeliveries    prometheus.Gauge
}

// NewMetrics creates Herald metric instruments and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DispatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "herald_dispatches_total",
			Help: "Dispatch tasks processed.",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_deliveries_total",
			Help: "Per-subscription deliveries by final status.",
		}, []string{"status"}),
		DeliveryAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_delivery_attempts_total",
			Help: "HTTP delivery attempts by outcome.",
		}, []string{"outcome"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "herald_delivery_latency_seconds",
			Help:    "Latency of the attempt that decided a delivery.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "herald_queue_depth",
			Help: "Dispatch tasks waiting in the queue.",
		}),
		InflightDeliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "herald_inflight_deliveries",
			Help: "Delivery loops currently running.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.DispatchesTotal,
			m.DeliveriesTotal,
			m.DeliveryAttemptsTotal,
			m.DeliveryLatency,
			m.QueueDepth,
			m.InflightDeliveries,
		)
	}
	return m
}

// RecordDispatch counts one processed dispatch task.
func (m *Metrics) RecordDispatch() {
	if m == nil {
		return
	}
	m.DispatchesTotal.Inc()
}

// RecordDelivery records a finished delivery with the given status and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	if status != StatusAbandoned {
		m.DeliveryLatency.Observe(latencySeconds)
	}
}

// RecordAttempt counts one HTTP attempt.
func (m *Metrics) RecordAttempt(outcome string) {
	if m == nil {
		return
	}
	m.DeliveryAttemptsTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth reports the current queue length.
func (m *Metrics) SetQueueDepth(n int64) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// DeliveryStarted and DeliveryFinished bracket one delivery loop.
func (m *Metrics) DeliveryStarted() {
	if m == nil {
		return
	}
	m.InflightDeliveries.Inc()
}

// DeliveryFinished decrements the in-flight gauge.
func (m *Metrics) DeliveryFinished() {
	if m == nil {
		return
	}
	m.InflightDeliveries.Dec()
}
