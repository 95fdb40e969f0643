package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records rollsync metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordTick records one Advance call with its duration and error status.
	RecordTick(ctx context.Context, sessionKind string, duration time.Duration, err error)

	// RecordAdvance records simulated frames, including resimulated ones.
	RecordAdvance(ctx context.Context, frames int)

	// RecordRollback records a rollback and its depth in frames.
	RecordRollback(ctx context.Context, depth int)

	// RecordStall records a tick that could not advance.
	RecordStall(ctx context.Context)

	// RecordSnapshot records a snapshot operation and its size.
	RecordSnapshot(ctx context.Context, op string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	ticks          metric.Int64Counter
	tickLatency    metric.Float64Histogram
	tickErrors     metric.Int64Counter
	framesAdvanced metric.Int64Counter
	rollbacks      metric.Int64Counter
	rollbackDepth  metric.Int64Histogram
	stalls         metric.Int64Counter
	snapshotSize   metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("rollsync")

	ticks, err := meter.Int64Counter("rollsync.ticks",
		metric.WithDescription("Number of Advance calls"),
	)
	if err != nil {
		return nil, err
	}

	tickLatency, err := meter.Float64Histogram("rollsync.tick.latency_ms",
		metric.WithDescription("Tick latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	tickErrors, err := meter.Int64Counter("rollsync.tick.errors",
		metric.WithDescription("Number of failed ticks"),
	)
	if err != nil {
		return nil, err
	}

	framesAdvanced, err := meter.Int64Counter("rollsync.frames.advanced",
		metric.WithDescription("Number of simulated frames, including resimulation"),
	)
	if err != nil {
		return nil, err
	}

	rollbacks, err := meter.Int64Counter("rollsync.rollbacks",
		metric.WithDescription("Number of rollbacks"),
	)
	if err != nil {
		return nil, err
	}

	rollbackDepth, err := meter.Int64Histogram("rollsync.rollback.depth",
		metric.WithDescription("Rollback depth in frames"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return nil, err
	}

	stalls, err := meter.Int64Counter("rollsync.stalls",
		metric.WithDescription("Number of ticks stalled on the prediction window"),
	)
	if err != nil {
		return nil, err
	}

	snapshotSize, err := meter.Int64Histogram("rollsync.snapshot.size_bytes",
		metric.WithDescription("Snapshot size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		ticks:          ticks,
		tickLatency:    tickLatency,
		tickErrors:     tickErrors,
		framesAdvanced: framesAdvanced,
		rollbacks:      rollbacks,
		rollbackDepth:  rollbackDepth,
		stalls:         stalls,
		snapshotSize:   snapshotSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordTick records one Advance call.
func (m *otelMetrics) RecordTick(ctx context.Context, sessionKind string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("session", sessionKind),
	}

	m.ticks.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.tickLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.tickErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordAdvance records simulated frames.
func (m *otelMetrics) RecordAdvance(ctx context.Context, frames int) {
	m.framesAdvanced.Add(ctx, int64(frames))
}

// RecordRollback records a rollback.
func (m *otelMetrics) RecordRollback(ctx context.Context, depth int) {
	m.rollbacks.Add(ctx, 1)
	m.rollbackDepth.Record(ctx, int64(depth))
}

// RecordStall records a stalled tick.
func (m *otelMetrics) RecordStall(ctx context.Context) {
	m.stalls.Add(ctx, 1)
}

// RecordSnapshot records a snapshot operation.
func (m *otelMetrics) RecordSnapshot(ctx context.Context, op string, sizeBytes int64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", op),
	}
	m.snapshotSize.Record(ctx, sizeBytes, metric.WithAttributes(attrs...))
}
