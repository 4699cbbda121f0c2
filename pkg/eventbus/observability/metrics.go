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

// MetricsRecorder records event bus metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordFire records a finished fire with the size of its listener chain.
	RecordFire(ctx context.Context, eventType, mode string, listeners int, duration time.Duration)

	// RecordListener records one listener invocation and whether it failed.
	RecordListener(ctx context.Context, eventType, variant string, err error)

	// RecordResolve records a listener resolution and whether the cache served it.
	RecordResolve(ctx context.Context, eventType string, cacheHit bool)

	// RecordResumeMisuse records a continuation resumed more than once.
	RecordResumeMisuse(ctx context.Context, eventType string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	fires            metric.Int64Counter
	fireLatency      metric.Float64Histogram
	chainLength      metric.Int64Histogram
	invocations      metric.Int64Counter
	listenerFailures metric.Int64Counter
	resolves         metric.Int64Counter
	resumeMisuse     metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventbus")

	fires, err := meter.Int64Counter("eventbus.fires",
		metric.WithDescription("Number of completed fires"),
	)
	if err != nil {
		return nil, err
	}

	fireLatency, err := meter.Float64Histogram("eventbus.fire.latency_ms",
		metric.WithDescription("Time from fire to chain completion in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	chainLength, err := meter.Int64Histogram("eventbus.fire.listeners",
		metric.WithDescription("Listeners in the resolved chain of a fire"),
	)
	if err != nil {
		return nil, err
	}

	invocations, err := meter.Int64Counter("eventbus.listener.invocations",
		metric.WithDescription("Number of listener invocations"),
	)
	if err != nil {
		return nil, err
	}

	listenerFailures, err := meter.Int64Counter("eventbus.listener.failures",
		metric.WithDescription("Number of listener invocations that returned an error or panicked"),
	)
	if err != nil {
		return nil, err
	}

	resolves, err := meter.Int64Counter("eventbus.resolve",
		metric.WithDescription("Listener resolutions, split by cache hit"),
	)
	if err != nil {
		return nil, err
	}

	resumeMisuse, err := meter.Int64Counter("eventbus.resume.misuse",
		metric.WithDescription("Continuations resumed more than once"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		fires:            fires,
		fireLatency:      fireLatency,
		chainLength:      chainLength,
		invocations:      invocations,
		listenerFailures: listenerFailures,
		resolves:         resolves,
		resumeMisuse:     resumeMisuse,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
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

// RecordFire records a completed fire.
func (m *otelMetrics) RecordFire(ctx context.Context, eventType, mode string, listeners int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("mode", mode),
	)
	m.fires.Add(ctx, 1, attrs)
	m.fireLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.chainLength.Record(ctx, int64(listeners), attrs)
}

// RecordListener records a listener invocation.
func (m *otelMetrics) RecordListener(ctx context.Context, eventType, variant string, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("variant", variant),
	)
	m.invocations.Add(ctx, 1, attrs)
	if err != nil {
		m.listenerFailures.Add(ctx, 1, attrs)
	}
}

// RecordResolve records a resolution.
func (m *otelMetrics) RecordResolve(ctx context.Context, eventType string, cacheHit bool) {
	m.resolves.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.Bool("cache_hit", cacheHit),
	))
}

// RecordResumeMisuse records a repeated resume.
func (m *otelMetrics) RecordResumeMisuse(ctx context.Context, eventType string) {
	m.resumeMisuse.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}
