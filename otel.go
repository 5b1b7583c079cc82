package chatman

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "chatman"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the engine.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	// Message operations
	sendLatency    metric.Float64Histogram
	sendCount      metric.Int64Counter
	sendErrors     metric.Int64Counter
	deliverLatency metric.Float64Histogram
	deliverCount   metric.Int64Counter
	deliverErrors  metric.Int64Counter
	deliveredMsgs  metric.Int64Counter
	ackLatency     metric.Float64Histogram
	ackCount       metric.Int64Counter
	ackErrors      metric.Int64Counter
	ackedMsgs      metric.Int64Counter

	// Account operations
	accountLatency metric.Float64Histogram
	accountCount   metric.Int64Counter
	accountErrors  metric.Int64Counter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	// Send metrics
	o.sendLatency, err = meter.Float64Histogram(
		"chatman.send.duration",
		metric.WithDescription("Duration of send operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.sendCount, err = meter.Int64Counter(
		"chatman.send.count",
		metric.WithDescription("Number of messages sent"),
	)
	if err != nil {
		return err
	}

	o.sendErrors, err = meter.Int64Counter(
		"chatman.send.errors",
		metric.WithDescription("Number of send errors"),
	)
	if err != nil {
		return err
	}

	// Deliver metrics
	o.deliverLatency, err = meter.Float64Histogram(
		"chatman.deliver.duration",
		metric.WithDescription("Duration of deliver operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.deliverCount, err = meter.Int64Counter(
		"chatman.deliver.count",
		metric.WithDescription("Number of deliver operations"),
	)
	if err != nil {
		return err
	}

	o.deliverErrors, err = meter.Int64Counter(
		"chatman.deliver.errors",
		metric.WithDescription("Number of deliver errors"),
	)
	if err != nil {
		return err
	}

	o.deliveredMsgs, err = meter.Int64Counter(
		"chatman.deliver.messages",
		metric.WithDescription("Number of messages handed to recipients"),
	)
	if err != nil {
		return err
	}

	// Acknowledge metrics
	o.ackLatency, err = meter.Float64Histogram(
		"chatman.acknowledge.duration",
		metric.WithDescription("Duration of acknowledge operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.ackCount, err = meter.Int64Counter(
		"chatman.acknowledge.count",
		metric.WithDescription("Number of acknowledge operations"),
	)
	if err != nil {
		return err
	}

	o.ackErrors, err = meter.Int64Counter(
		"chatman.acknowledge.errors",
		metric.WithDescription("Number of acknowledge errors"),
	)
	if err != nil {
		return err
	}

	o.ackedMsgs, err = meter.Int64Counter(
		"chatman.acknowledge.messages",
		metric.WithDescription("Number of messages acknowledged and removed"),
	)
	if err != nil {
		return err
	}

	// Account metrics (one set with an operation attribute)
	o.accountLatency, err = meter.Float64Histogram(
		"chatman.account.duration",
		metric.WithDescription("Duration of account operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.accountCount, err = meter.Int64Counter(
		"chatman.account.count",
		metric.WithDescription("Number of account operations"),
	)
	if err != nil {
		return err
	}

	o.accountErrors, err = meter.Int64Counter(
		"chatman.account.errors",
		metric.WithDescription("Number of account operation errors"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled.
// Caller must call the returned function with the operation error.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordSend records send operation metrics.
func (o *otelInstrumentation) recordSend(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.sendLatency.Record(ctx, duration.Seconds())
	o.sendCount.Add(ctx, 1)
	if err != nil {
		o.sendErrors.Add(ctx, 1)
	}
}

// recordDeliver records deliver operation metrics.
func (o *otelInstrumentation) recordDeliver(ctx context.Context, duration time.Duration, messageCount int, err error) {
	if !o.metricsEnabled {
		return
	}

	o.deliverLatency.Record(ctx, duration.Seconds())
	o.deliverCount.Add(ctx, 1)
	if err != nil {
		o.deliverErrors.Add(ctx, 1)
		return
	}
	o.deliveredMsgs.Add(ctx, int64(messageCount))
}

// recordAcknowledge records acknowledge operation metrics.
func (o *otelInstrumentation) recordAcknowledge(ctx context.Context, duration time.Duration, removed int64, err error) {
	if !o.metricsEnabled {
		return
	}

	o.ackLatency.Record(ctx, duration.Seconds())
	o.ackCount.Add(ctx, 1)
	if err != nil {
		o.ackErrors.Add(ctx, 1)
		return
	}
	o.ackedMsgs.Add(ctx, removed)
}

// recordAccount records account operation metrics.
func (o *otelInstrumentation) recordAccount(ctx context.Context, duration time.Duration, operation string, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
	)

	o.accountLatency.Record(ctx, duration.Seconds(), attrs)
	o.accountCount.Add(ctx, 1, attrs)
	if err != nil {
		o.accountErrors.Add(ctx, 1, attrs)
	}
}
