package rollsync

import (
	"log/slog"

	"github.com/outrunlabs/rollsync/pkg/rollsync/checksum"
	"github.com/outrunlabs/rollsync/pkg/rollsync/event"
	"github.com/outrunlabs/rollsync/pkg/rollsync/observability"
	"github.com/outrunlabs/rollsync/pkg/rollsync/replay"
)

// DefaultSnapshotMargin is the number of snapshot slots kept beyond the
// session's prediction window.
const DefaultSnapshotMargin = 2

// driverConfig holds configuration for a driver.
type driverConfig struct {
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
	checksum       checksum.Engine
	snapshotMargin int
	bus            event.Bus
	recorder       *replay.Recorder
	runID          string
}

// defaultDriverConfig returns the default driver configuration.
func defaultDriverConfig() driverConfig {
	return driverConfig{
		metrics:        observability.NoopMetrics{},
		spans:          observability.NewSpanManager(),
		checksum:       checksum.New(),
		snapshotMargin: DefaultSnapshotMargin,
	}
}

// Option configures driver behavior.
type Option func(*driverConfig)

// WithLogger enables structured logging. The driver enriches the logger with
// run_id and session fields.
// Default: no logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *driverConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
// Default: NoopMetrics.
//
// Example:
//
//	driver, err := rollsync.NewDriver(sess, reg, collect, advance,
//	    rollsync.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *driverConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables OpenTelemetry spans: one per tick, with a child span
// per executed action.
// Default: disabled.
func WithTracing(enabled bool) Option {
	return func(c *driverConfig) {
		c.tracingEnabled = enabled
	}
}

// WithChecksum sets the engine that digests saved snapshots for desync
// detection. Passing nil disables checksumming entirely; saved snapshots
// then carry a zero checksum and nothing is reported to the session.
// Default: the xxHash64 engine.
func WithChecksum(e checksum.Engine) Option {
	return func(c *driverConfig) {
		c.checksum = e
	}
}

// WithSnapshotMargin sets how many snapshot slots are kept beyond the
// session's prediction window. Larger margins tolerate deeper store lag at
// the cost of memory.
// Default: DefaultSnapshotMargin.
func WithSnapshotMargin(n int) Option {
	return func(c *driverConfig) {
		if n >= 0 {
			c.snapshotMargin = n
		}
	}
}

// WithEventBus publishes driver notifications (synchronized, rollback,
// stall, desync, peer loss, close) to the bus. Configure the bus
// non-blocking: the driver publishes from the simulation goroutine and never
// waits for handlers.
// Default: no bus.
func WithEventBus(bus event.Bus) Option {
	return func(c *driverConfig) {
		c.bus = bus
	}
}

// WithRecorder records every simulated frame's input vector to a replay
// store. Frames resimulated by a rollback overwrite their first recording,
// so a finished run holds the final version of each frame.
// Default: no recording.
func WithRecorder(rec *replay.Recorder) Option {
	return func(c *driverConfig) {
		c.recorder = rec
	}
}

// WithRunID sets the run identifier used for logs, spans, and events.
// Default: a random UUID.
func WithRunID(id string) Option {
	return func(c *driverConfig) {
		if id != "" {
			c.runID = id
		}
	}
}
