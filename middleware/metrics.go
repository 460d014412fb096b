package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/formdispatch/job"
)

// meterName is the instrumentation scope name for formdispatch metrics.
const meterName = "github.com/xraph/formdispatch"

// Metrics returns middleware that records per-attempt enqueue metrics using
// the global OTel MeterProvider.
//
// Instruments:
//   - formdispatch.enqueue.duration (Float64Histogram): add call time in
//     seconds, with attributes: job_name, status ("ok" or "error")
//   - formdispatch.enqueue.attempts (Int64Counter): total add calls,
//     with attributes: job_name, status ("ok" or "error")
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API hands back noop instruments.
	duration, _ := meter.Float64Histogram(
		"formdispatch.enqueue.duration",
		metric.WithDescription("Duration of a queue add call in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"formdispatch.enqueue.attempts",
		metric.WithDescription("Total number of queue add calls"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, run *job.RunObject, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("job_name", run.Name()),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)

		return err
	}
}
