// Package observability provides structured logging, metrics and tracing
// helpers for graph runs.
//
// Logging uses log/slog; metrics and tracing use OpenTelemetry and read the
// global providers. Every helper is nil-safe and each concern has a no-op
// implementation for when it is disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds node context to a logger.
// Returns a new logger with session_id, node_id, and step fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "sess-1", "router", 3)
//	enriched.Info("classified") // includes session_id, node_id, step
func EnrichLogger(logger *slog.Logger, sessionID, nodeID string, step int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("session_id", sessionID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogRunStart logs the start of a run. mode is "invoke" or "resume".
func LogRunStart(logger *slog.Logger, sessionID, mode string) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("session_id", sessionID),
		slog.String("mode", mode),
	)
}

// LogRunComplete logs a run that reached a terminal node or suspended.
func LogRunComplete(logger *slog.Logger, sessionID, status string, durationMs float64, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("graph run completed",
		slog.String("session_id", sessionID),
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodeCount),
	)
}

// LogRunError logs run failure.
func LogRunError(logger *slog.Logger, sessionID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("graph run failed",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting", slog.String("node_id", nodeID))
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogInterrupt logs a node suspending the run.
func LogInterrupt(logger *slog.Logger, sessionID, nodeID string, step int) {
	if logger == nil {
		return
	}
	logger.Info("run suspended",
		slog.String("session_id", sessionID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogInterruptAbandoned logs a pending interrupt discarded by a fresh submit.
func LogInterruptAbandoned(logger *slog.Logger, sessionID, nodeID string, step int) {
	if logger == nil {
		return
	}
	logger.Warn("pending interrupt abandoned",
		slog.String("session_id", sessionID),
		slog.String("node_id", nodeID),
		slog.Int("suspended_step", step),
	)
}

// LogCheckpoint logs checkpoint persistence.
func LogCheckpoint(logger *slog.Logger, sessionID string, step, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("session_id", sessionID),
		slog.Int("step", step),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs checkpoint failure.
func LogCheckpointError(logger *slog.Logger, sessionID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Error("checkpoint failed",
		slog.String("session_id", sessionID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
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
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
