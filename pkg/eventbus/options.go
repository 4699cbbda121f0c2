package eventbus

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/randalmurphal/eventbus/pkg/eventbus/failures"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// busConfig holds configuration for a Bus.
type busConfig struct {
	logger         *slog.Logger
	metricsEnabled bool
	metrics        observability.MetricsRecorder
	tracingEnabled bool
	spans          observability.SpanManager
	cacheSize      int
	policy         AsyncFailurePolicy
	store          failures.Store
	clock          clock.Clock
	extractor      Extractor
}

// defaultBusConfig returns the default bus configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
		cacheSize: DefaultCacheSize,
		policy:    AsyncFailureStall,
		clock:     clock.New(),
		extractor: ReflectExtractor{},
	}
}

// Option configures a Bus.
type Option func(*busConfig)

// WithLogger sets the logger for listener failures and protocol misuse.
// A nil logger disables logging. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *busConfig) {
		c.logger = logger
	}
}

// WithMetrics enables or disables OpenTelemetry metrics collection.
// Default: false (disabled).
//
// Metrics recorded:
//   - eventbus.fires (counter): completed fires by event type and mode
//   - eventbus.fire.latency_ms (histogram): fire to completion latency
//   - eventbus.fire.listeners (histogram): resolved chain length
//   - eventbus.listener.invocations / eventbus.listener.failures (counters)
//   - eventbus.resolve (counter): resolutions by cache hit
//   - eventbus.resume.misuse (counter): continuations resumed twice
//
// Configure the global OTel meter provider before creating the bus.
func WithMetrics(enabled bool) Option {
	return func(c *busConfig) {
		c.metricsEnabled = enabled
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables or disables OpenTelemetry tracing. Each fire gets a
// span; async spans end when the chain completes. Default: false.
func WithTracing(enabled bool) Option {
	return func(c *busConfig) {
		c.tracingEnabled = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithCacheSize bounds the number of cached listener chains.
// Default: DefaultCacheSize.
func WithCacheSize(n int) Option {
	return func(c *busConfig) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// WithAsyncFailurePolicy sets what happens when an async listener fails
// without resuming. Default: AsyncFailureStall.
func WithAsyncFailurePolicy(p AsyncFailurePolicy) Option {
	return func(c *busConfig) {
		c.policy = p
	}
}

// WithFailureStore journals every listener failure to store. The bus does
// not close the store.
//
// Records are written on the goroutine running the chain, before the next
// listener starts, so a slow store delays the rest of that fire. Wrap the
// store to buffer writes when that matters, for example a SQLiteStore on
// slow disks.
func WithFailureStore(store failures.Store) Option {
	return func(c *busConfig) {
		c.store = store
	}
}

// WithClock sets the clock used for failure timestamps and fire durations.
func WithClock(clk clock.Clock) Option {
	return func(c *busConfig) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithExtractor replaces the extractor used by RegisterListeningMethods.
// Default: ReflectExtractor.
func WithExtractor(e Extractor) Option {
	return func(c *busConfig) {
		if e != nil {
			c.extractor = e
		}
	}
}

// WithMetricsRecorder records metrics to r instead of the global OTel
// meter provider.
func WithMetricsRecorder(r observability.MetricsRecorder) Option {
	return func(c *busConfig) {
		if r != nil {
			c.metricsEnabled = true
			c.metrics = r
		}
	}
}
