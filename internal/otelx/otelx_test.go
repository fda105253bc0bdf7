package otelx

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: false})
	if err != nil {
		t.Fatalf("Init disabled: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	// safe to call repeatedly
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestInitDisabledSetsProvider(t *testing.T) {
	_, _ = Init(context.Background(), Options{Enabled: false})

	tp := otel.GetTracerProvider()
	if _, ok := tp.(*sdktrace.TracerProvider); !ok {
		t.Fatalf("TracerProvider type = %T, want *sdktrace.TracerProvider", tp)
	}

	// spans must be usable without panic
	_, span := otel.Tracer("test").Start(context.Background(), "test-span")
	span.SetName("renamed")
	span.End()
}

func TestInitDisabledSetsPropagator(t *testing.T) {
	_, _ = Init(context.Background(), Options{Enabled: false})

	fieldSet := make(map[string]bool)
	for _, f := range otel.GetTextMapPropagator().Fields() {
		fieldSet[f] = true
	}
	if !fieldSet["traceparent"] {
		t.Error("propagator missing traceparent field")
	}
	if !fieldSet["baggage"] {
		t.Error("propagator missing baggage field")
	}
}

func TestInitEnabledReturnsPromptly(t *testing.T) {
	// gRPC defers connection establishment, so Init returns quickly even
	// with an unreachable endpoint; the dial timeout bounds the worst case
	start := time.Now()
	shutdown, err := Init(context.Background(), Options{
		Enabled:   true,
		Endpoint:  "localhost:1",
		Insecure:  true,
		Sample:    1.0,
		Service:   "test",
		Component: "test",
		Version:   "v0.0.0-test",
	})
	elapsed := time.Since(start)

	if elapsed > 15*time.Second {
		t.Fatalf("Init took %v, expected bounded by dial timeout", elapsed)
	}
	if err != nil {
		return
	}
	if shutdown == nil {
		t.Fatal("shutdown func is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Logf("shutdown error (expected with no collector): %v", err)
	}
}
