package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
)

// tracerName is the instrumentation scope name for pipeline tracing.
const tracerName = "github.com/DecentralizedGeo/stac-manager-sub002"

// Tracing returns middleware that wraps record processing in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: pipeline.step, pipeline.record.id. On error, the
// span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, stepID string, rec *pipeline.Record, next Handler) error {
		ctx, span := tracer.Start(ctx, "pipeline.record.process",
			trace.WithAttributes(
				attribute.String("pipeline.step", stepID),
				attribute.String("pipeline.record.id", rec.ID()),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
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
