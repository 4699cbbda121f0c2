// Package observability provides logging, metrics and tracing hooks for the
// event bus.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//   - A Prometheus collector over bus statistics
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// ListenerFields identifies a listener invocation in log records.
type ListenerFields struct {
	ListenerID string
	Listener   string
	EventType  string
	EventID    string
	Priority   int
	Variant    string
}

func (f ListenerFields) attrs() []any {
	attrs := []any{
		slog.String("listener_id", f.ListenerID),
		slog.String("listener", f.Listener),
		slog.String("event_type", f.EventType),
		slog.Int("priority", f.Priority),
		slog.String("variant", f.Variant),
	}
	if f.EventID != "" {
		attrs = append(attrs, slog.String("event_id", f.EventID))
	}
	return attrs
}

// EnrichLogger scopes a logger to one fire. eventID is omitted when empty.
func EnrichLogger(logger *slog.Logger, eventType, eventID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	logger = logger.With(slog.String("event_type", eventType))
	if eventID != "" {
		logger = logger.With(slog.String("event_id", eventID))
	}
	return logger
}

// LogListenerFailure logs a listener that returned an error or panicked.
// Dispatch continues after this is logged.
func LogListenerFailure(logger *slog.Logger, f ListenerFields, err error, panicked bool) {
	if logger == nil {
		return
	}
	attrs := append(f.attrs(),
		slog.String("error", err.Error()),
		slog.Bool("panicked", panicked),
	)
	logger.Error("listener failed", attrs...)
}

// LogResumeMisuse logs a continuation resumed more than once.
func LogResumeMisuse(logger *slog.Logger, f ListenerFields, position int) {
	if logger == nil {
		return
	}
	attrs := append(f.attrs(), slog.Int("position", position))
	logger.Error("continuation resumed more than once", attrs...)
}

// LogChainStalled logs an async chain left waiting at a failed listener.
func LogChainStalled(logger *slog.Logger, f ListenerFields, position, remaining int) {
	if logger == nil {
		return
	}
	attrs := append(f.attrs(),
		slog.Int("position", position),
		slog.Int("remaining", remaining),
	)
	logger.Warn("async chain stalled at failed listener", attrs...)
}

// LogFireComplete logs the end of a fire. logger is expected to come from
// EnrichLogger.
func LogFireComplete(logger *slog.Logger, mode string, listeners int, duration time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("fire completed",
		slog.String("mode", mode),
		slog.Int("listeners", listeners),
		slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
	)
}

// LogRegistration logs a listener added to or removed from the bus.
func LogRegistration(logger *slog.Logger, op string, f ListenerFields) {
	if logger == nil {
		return
	}
	attrs := append([]any{slog.String("op", op)}, f.attrs()...)
	logger.Debug("listener registration changed", attrs...)
}

// LogAdapterRejected logs a handler object the listener adapter refused.
func LogAdapterRejected(logger *slog.Logger, objectType string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("listener object rejected",
		slog.String("object_type", objectType),
		slog.String("error", err.Error()),
	)
}

// LogFailureStoreError logs a failure journal write that did not succeed (non-fatal).
func LogFailureStoreError(logger *slog.Logger, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("failure journal write failed",
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// TimedOperation starts timing on clk. The returned function reports the
// time elapsed since.
func TimedOperation(clk clock.Clock) func() time.Duration {
	start := clk.Now()
	return func() time.Duration {
		return clk.Since(start)
	}
}
