package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracerSpans(t *testing.T) {
	tr := NewTracerWithProvider(noop.NewTracerProvider())

	ctx, span := tr.StartDispatchSpan(context.Background(), "user-1", "generation.completed")
	_, child := tr.StartDeliverySpan(ctx, "d-1", "generation.completed", "wh_1")
	tr.EndDeliverySpan(child, 500, 12, 3, "unexpected status 500")
	tr.EndDispatchSpan(span, 1, errors.New("boom"))
}

func TestNilTracerIsNoop(t *testing.T) {
	var tr *Tracer
	ctx, span := tr.StartDispatchSpan(context.Background(), "u", "e")
	if ctx == nil || span == nil {
		t.Fatal("nil tracer must still return a usable context and span")
	}
	tr.EndDispatchSpan(span, 0, nil)
}
