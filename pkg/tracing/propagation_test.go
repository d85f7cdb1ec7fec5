package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceparentRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	const tp = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := WithTraceparent(context.Background(), tp)

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		t.Fatal("span context not extracted")
	}
	if got := sc.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s", got)
	}
	if got := Traceparent(ctx); got != tp {
		t.Errorf("Traceparent() = %q, want %q", got, tp)
	}
}

func TestTraceparentEmptyWithoutSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if got := Traceparent(context.Background()); got != "" {
		t.Errorf("Traceparent() = %q, want empty", got)
	}
	ctx := context.Background()
	if WithTraceparent(ctx, "") != ctx {
		t.Error("WithTraceparent(\"\") should return ctx unchanged")
	}
}
