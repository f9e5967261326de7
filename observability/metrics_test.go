package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m.DispatchesTotal == nil || m.DeliveriesTotal == nil || m.DeliveryAttemptsTotal == nil {
		t.Fatal("counters should not be nil")
	}
	if m.DeliveryLatency == nil {
		t.Fatal("DeliveryLatency should not be nil")
	}
	if m.QueueDepth == nil || m.InflightDeliveries == nil {
		t.Fatal("gauges should not be nil")
	}
}

func TestRecordDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDelivery(StatusDelivered, 0.5)
	m.RecordDelivery(StatusDelivered, 1.2)
	m.RecordDelivery(StatusExhausted, 0.3)

	f, ok := gather(t, reg)["herald_deliveries_total"]
	if !ok {
		t.Fatal("herald_deliveries_total metric not found")
	}
	if len(f.GetMetric()) != 2 { // delivered + exhausted
		t.Fatalf("expected 2 label combinations, got %d", len(f.GetMetric()))
	}

	h := gather(t, reg)["herald_delivery_latency_seconds"]
	if got := h.GetMetric()[0].GetHistogram().GetSampleCount(); got != 3 {
		t.Fatalf("expected 3 latency samples, got %d", got)
	}
}

func TestRecordDispatchAndAttempts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDispatch()
	m.RecordDispatch()
	m.RecordAttempt(AttemptFailure)
	m.RecordAttempt(AttemptFailure)
	m.RecordAttempt(AttemptSuccess)

	families := gather(t, reg)

	if v := families["herald_dispatches_total"].GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Fatalf("expected 2 dispatches, got %f", v)
	}

	byOutcome := map[string]float64{}
	for _, metric := range families["herald_delivery_attempts_total"].GetMetric() {
		for _, l := range metric.GetLabel() {
			if l.GetName() == "outcome" {
				byOutcome[l.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	if byOutcome[AttemptFailure] != 2 || byOutcome[AttemptSuccess] != 1 {
		t.Fatalf("unexpected attempt counts %v", byOutcome)
	}
}

func TestGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetQueueDepth(42)
	m.DeliveryStarted()
	m.DeliveryStarted()
	m.DeliveryFinished()

	gauges := map[string]float64{
		"herald_queue_depth":         42,
		"herald_inflight_deliveries": 1,
	}

	for name, expected := range gauges {
		f, ok := gather(t, reg)[name]
		if !ok {
			t.Fatalf("%s not found", name)
		}
		if val := f.GetMetric()[0].GetGauge().GetValue(); val != expected {
			t.Fatalf("%s: expected %f, got %f", name, expected, val)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordDispatch()
	m.RecordDelivery(StatusDelivered, 1)
	m.RecordAttempt(AttemptSuccess)
	m.SetQueueDepth(1)
	m.DeliveryStarted()
	m.DeliveryFinished()
}
