// Package observability provides production-grade observability features
// for rollsync: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds rollsync context to a logger.
// Returns a new logger with run_id and session fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "p2p")
//	enriched.Info("doing work") // includes run_id, session
func EnrichLogger(logger *slog.Logger, runID, sessionKind string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("session", sessionKind),
	)
}

// LogRunStart logs the start of a driver run.
func LogRunStart(logger *slog.Logger, runID string, players, inputBytes int) {
	if logger == nil {
		return
	}
	logger.Info("session run starting",
		slog.String("run_id", runID),
		slog.Int("players", players),
		slog.Int("input_bytes", inputBytes),
	)
}

// LogSynchronized logs that every peer completed the handshake.
func LogSynchronized(logger *slog.Logger, frame int64) {
	if logger == nil {
		return
	}
	logger.Info("session synchronized",
		slog.Int64("frame", frame),
	)
}

// LogRollback logs a completed rollback.
func LogRollback(logger *slog.Logger, resimFrom, target int64, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("rollback resimulated",
		slog.Int64("resim_from", resimFrom),
		slog.Int64("target", target),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStall logs a tick that could not advance.
func LogStall(logger *slog.Logger, confirmed int64) {
	if logger == nil {
		return
	}
	logger.Warn("prediction window exhausted, stalling",
		slog.Int64("confirmed", confirmed),
	)
}

// LogDesync logs a checksum mismatch.
func LogDesync(logger *slog.Logger, frame int64, player int, local, remote uint64) {
	if logger == nil {
		return
	}
	logger.Error("state desync detected",
		slog.Int64("frame", frame),
		slog.Int("player", player),
		slog.Uint64("local_checksum", local),
		slog.Uint64("remote_checksum", remote),
	)
}

// LogPeerDisconnected logs a lost peer.
func LogPeerDisconnected(logger *slog.Logger, player int, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("peer disconnected",
			slog.Int("player", player),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Warn("peer disconnected",
		slog.Int("player", player),
	)
}

// LogSnapshot logs a state snapshot save.
func LogSnapshot(logger *slog.Logger, frame int64, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("snapshot saved",
		slog.Int64("frame", frame),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogSnapshotError logs a snapshot failure.
func LogSnapshotError(logger *slog.Logger, frame int64, op string, err error) {
	if logger == nil {
		return
	}
	logger.Error("snapshot failed",
		slog.Int64("frame", frame),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogReplayError logs a replay recording failure. Recording is diagnostics
// only, so the simulation keeps running.
func LogReplayError(logger *slog.Logger, frame int64, err error) {
	if logger == nil {
		return
	}
	logger.Warn("replay record failed",
		slog.Int64("frame", frame),
		slog.String("error", err.Error()),
	)
}

// LogRunComplete logs driver shutdown.
func LogRunComplete(logger *slog.Logger, runID string, frame int64, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("session run completed",
		slog.String("run_id", runID),
		slog.Int64("frame", frame),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRunError logs driver failure.
func LogRunError(logger *slog.Logger, runID string, err error, frame int64) {
	if logger == nil {
		return
	}
	logger.Error("session run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Int64("frame", frame),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
