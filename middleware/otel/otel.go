package otel

import (
	"fmt"
	"time"

	fbq "github.com/fbqueue/fbq-go-sdk"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fbqueue/fbq-go-sdk/middleware/otel"

// --- Options ---

// Option configures the OTel middleware.
type Option func(*config)

type config struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithTracerProvider sets a custom TracerProvider. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

// WithMeterProvider sets a custom MeterProvider. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) { c.meterProvider = mp }
}

// --- Tracing Middleware ---

// Tracing returns middleware that creates a span for every job execution.
//
// Span attributes include:
//   - fbq.job.id
//   - fbq.job.owner
//
// On error, the span status is set to Error with the error message recorded.
func Tracing(opts ...Option) fbq.MiddlewareFunc {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	tp := cfg.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(instrumentationName)

	return func(ctx fbq.JobContext, next fbq.HandlerFunc) error {
		spanCtx, span := tracer.Start(ctx.Context(),
			fmt.Sprintf("fbq.job %d", ctx.ID),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(jobAttributes(ctx)...),
		)
		_ = spanCtx // span carries its own context; JobContext.ctx is not reassignable
		defer span.End()

		err := next(ctx)

		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}

// --- Metrics Middleware ---

// Metrics returns middleware that records job execution metrics via OTel.
//
// Recorded instruments:
//   - fbq.job.started (counter): incremented when a job begins
//   - fbq.job.completed (counter): incremented on success
//   - fbq.job.failed (counter): incremented on failure
//   - fbq.job.duration (histogram, milliseconds): execution duration
func Metrics(opts ...Option) fbq.MiddlewareFunc {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	mp := cfg.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	jobStarted, _ := meter.Int64Counter("fbq.job.started",
		metric.WithDescription("Number of jobs started"),
	)
	jobCompleted, _ := meter.Int64Counter("fbq.job.completed",
		metric.WithDescription("Number of jobs completed successfully"),
	)
	jobFailed, _ := meter.Int64Counter("fbq.job.failed",
		metric.WithDescription("Number of jobs that failed"),
	)
	jobDuration, _ := meter.Float64Histogram("fbq.job.duration",
		metric.WithDescription("Job execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return func(ctx fbq.JobContext, next fbq.HandlerFunc) error {
		attrs := metric.WithAttributes(
			attribute.String("fbq.job.owner", ctx.Owner),
		)

		jobStarted.Add(ctx.Context(), 1, attrs)

		start := time.Now()
		err := next(ctx)
		durationMS := float64(time.Since(start).Microseconds()) / 1000.0

		jobDuration.Record(ctx.Context(), durationMS, attrs)

		if err != nil {
			jobFailed.Add(ctx.Context(), 1, attrs)
		} else {
			jobCompleted.Add(ctx.Context(), 1, attrs)
		}

		return err
	}
}

// jobAttributes returns the standard OTel attributes for a job.
func jobAttributes(ctx fbq.JobContext) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("fbq.job.id", ctx.ID),
		attribute.String("fbq.job.owner", ctx.Owner),
	}
}
