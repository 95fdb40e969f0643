package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the rollsync tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("rollsync")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartTickSpan starts a span for one driver tick.
	// Returns the context with span and the span itself.
	StartTickSpan(ctx context.Context, runID string, frame int64) (context.Context, trace.Span)

	// StartActionSpan starts a span for one session action.
	// The action span should be a child of the tick span.
	StartActionSpan(ctx context.Context, kind string, frame int64) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartTickSpan starts a span for one driver tick.
func (m *otelSpanManager) StartTickSpan(ctx context.Context, runID string, frame int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "rollsync.tick",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int64("frame", frame),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartActionSpan starts a span for one session action.
func (m *otelSpanManager) StartActionSpan(ctx context.Context, kind string, frame int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "rollsync.action."+kind,
		trace.WithAttributes(
			attribute.String("action.kind", kind),
			attribute.Int64("frame", frame),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Convenience functions that operate on the global tracer.
// These are useful for simple cases where you don't need the interface.

// StartTickSpan starts a span for one driver tick.
// Uses the global OTel tracer.
func StartTickSpan(ctx context.Context, runID string, frame int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "rollsync.tick",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int64("frame", frame),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartActionSpan starts a span for one session action.
// Uses the global OTel tracer.
func StartActionSpan(ctx context.Context, kind string, frame int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "rollsync.action."+kind,
		trace.WithAttributes(
			attribute.String("action.kind", kind),
			attribute.Int64("frame", frame),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
