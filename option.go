package chatman

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"chatman/snapshot"
	"chatman/store"
)

// Default configuration values.
const (
	DefaultShutdownTimeout = 30 * time.Second // default graceful shutdown timeout
	MinShutdownTimeout     = 1 * time.Second  // minimum shutdown timeout

	// Message limits
	DefaultMaxMessageLength = 64 * 1024 // 64 KB per message body

	// Concurrency limits
	DefaultMaxConcurrentSends = 32 // max concurrent send operations per service

	// Snapshot persistence
	DefaultSnapshotInterval = 5 * time.Minute // periodic snapshot save interval
)

// options holds engine configuration.
type options struct {
	store     store.Store
	persister snapshot.Persister
	logger    *slog.Logger

	// Message limits
	maxMessageLength int

	// Concurrency limits
	maxConcurrentSends int

	// Shutdown
	shutdownTimeout time.Duration

	// Snapshot persistence
	snapshotInterval time.Duration

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event handling
	eventErrorsFatal      bool                    // if true, event publish failures fail the operation
	eventTransport        transport.Transport     // event transport (optional, noop if nil)
	redisClient           redis.UniversalClient   // redis client for event transport (optional)
	onEventPublishFailure EventPublishFailureFunc // callback for event publish failures (always set)
}

// EventPublishFailureFunc is called when an event fails to publish.
// The eventName is the name of the event (e.g. "MessageQueued"), and
// err is the publish error.
type EventPublishFailureFunc func(eventName string, err error)

// safeEventPublishFailure calls the event failure callback with panic
// recovery. A panicking callback is logged and suppressed so it cannot
// take down the operation that triggered it.
func (o *options) safeEventPublishFailure(eventName string, err error) {
	if o.onEventPublishFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventPublishFailure(eventName, err)
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:             slog.Default(),
		maxMessageLength:   DefaultMaxMessageLength,
		maxConcurrentSends: DefaultMaxConcurrentSends,
		shutdownTimeout:    DefaultShutdownTimeout,
		snapshotInterval:   DefaultSnapshotInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	// Ensure event failure callback is always set
	if o.onEventPublishFailure == nil {
		o.onEventPublishFailure = func(eventName string, err error) {
			o.logger.Error("failed to publish event", "event", eventName, "error", err)
		}
	}

	return o
}

// Option configures the engine.
type Option func(*options)

// --- Core Options ---

// WithStore sets the storage backend (required).
func WithStore(s store.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithSnapshotPersister sets a durable snapshot backend. When set,
// Connect() restores the latest snapshot, a background ticker saves
// periodically, and Close() saves a final snapshot.
func WithSnapshotPersister(p snapshot.Persister) Option {
	return func(o *options) {
		if p != nil {
			o.persister = p
		}
	}
}

// WithSnapshotInterval sets how often the background snapshot save
// runs. Zero or negative disables periodic saves (the final save on
// Close still happens). Default is 5 minutes.
func WithSnapshotInterval(d time.Duration) Option {
	return func(o *options) {
		o.snapshotInterval = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// --- Message Limit Options ---

// WithMaxMessageLength sets the maximum message body length in bytes.
// Default is 64 KB.
func WithMaxMessageLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMessageLength = n
		}
	}
}

// --- Concurrency Options ---

// WithMaxConcurrentSends sets the maximum number of concurrent send
// operations. This prevents resource exhaustion when many messages are
// being sent simultaneously. Default is 32.
func WithMaxConcurrentSends(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentSends = n
		}
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight
// operations during graceful shutdown. When Close() is called, the
// service waits up to this duration for ongoing sends to complete.
// Default is 30 seconds. Minimum is 1 second.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= MinShutdownTimeout {
			o.shutdownTimeout = d
		}
	}
}

// --- OTel Options ---

// WithTracing enables or disables OpenTelemetry tracing.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables both OpenTelemetry tracing and metrics. Equivalent
// to WithTracing(true) plus WithMetrics(true).
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name for OpenTelemetry telemetry
// and the event bus name prefix. Default is "chatman".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
// Default uses the global provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
// Default uses the global provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Event Options ---

// WithEventErrorsFatal configures whether event publishing failures
// should fail the operation. By default failures are logged and the
// operation succeeds (the message is still queued).
func WithEventErrorsFatal(fatal bool) Option {
	return func(o *options) {
		o.eventErrorsFatal = fatal
	}
}

// WithEventTransport sets the event transport for publishing and
// subscribing. If not provided, a noop transport is used and events
// are silently dropped.
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient sets a Redis client for the event transport. When
// provided, events are published to Redis Streams.
//
// Compatible with *redis.Client, *redis.ClusterClient, and
// redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventPublishFailureHandler sets a callback for event publishing
// failures (invoked when eventErrorsFatal is false). Use this for
// custom logging, metrics, or alerting.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventPublishFailure = fn
		}
	}
}
