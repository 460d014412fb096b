package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/formdispatch/job"
)

// tracerName is the instrumentation scope name for formdispatch tracing.
const tracerName = "github.com/xraph/formdispatch"

// Tracing returns middleware that wraps each enqueue attempt in an
// OpenTelemetry span using the global TracerProvider. Without one configured
// the noop tracer is used and the middleware is a pass-through.
//
// Span attributes include: formdispatch.run.id, formdispatch.job.name,
// formdispatch.response.id, formdispatch.attempt.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, run *job.RunObject, next Handler) error {
		ctx, span := tracer.Start(ctx, "formdispatch.enqueue",
			trace.WithAttributes(
				attribute.String("formdispatch.run.id", run.ID),
				attribute.String("formdispatch.job.name", run.Name()),
				attribute.String("formdispatch.response.id", run.ResponseID.String()),
				attribute.Int("formdispatch.attempt", Attempt(ctx)),
			),
			trace.WithSpanKind(trace.SpanKindProducer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
