package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/herald"

// Tracer provides OpenTelemetry tracing for Herald. A nil *Tracer starts
// no spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return NewTracerWithProvider(otel.GetTracerProvider())
}

// NewTracerWithProvider creates a tracer from tp.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// StartDispatchSpan starts the span covering one dispatch task.
func (t *Tracer) StartDispatchSpan(ctx context.Context, userID, event string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "herald.dispatch",
		trace.WithAttributes(
			attribute.String("herald.user_id", userID),
			attribute.String("herald.event", event),
		),
	)
}

// EndDispatchSpan ends a dispatch span.
func (t *Tracer) EndDispatchSpan(span trace.Span, subscriptions int, err error) {
	if t == nil {
		return
	}
	span.SetAttributes(attribute.Int("herald.subscriptions", subscriptions))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartDeliverySpan starts the span covering one subscription's attempt loop.
func (t *Tracer) StartDeliverySpan(ctx context.Context, deliveryID, event, subscriptionID string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "herald.delivery",
		trace.WithAttributes(
			attribute.String("herald.delivery_id", deliveryID),
			attribute.String("herald.event", event),
			attribute.String("herald.subscription_id", subscriptionID),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs, attempts int, errMsg string) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("herald.latency_ms", latencyMs),
		attribute.Int("herald.attempts", attempts),
	)
	if errMsg != "" {
		span.SetAttributes(attribute.String("herald.error", errMsg))
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()
}
