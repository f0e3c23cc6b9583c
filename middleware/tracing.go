package middleware

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/strata"
)

// tracerName is the instrumentation scope name for strata tracing.
const tracerName = "github.com/xraph/strata"

// Tracing returns middleware that wraps each operation in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop tracer
// is used and this middleware becomes a pass-through.
//
// Span attributes: strata.op, strata.entity, strata.collection,
// strata.tenant. On error other than strata.ErrNotFound the span status is
// set to codes.Error.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		ctx, span := tracer.Start(ctx, "strata."+op.Name,
			trace.WithAttributes(
				attribute.String("strata.op", op.Name),
				attribute.String("strata.entity", op.Entity),
				attribute.String("strata.collection", op.Collection),
				attribute.String("strata.tenant", op.Tenant),
			),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()

		err := next(ctx)
		switch {
		case err == nil, errors.Is(err, strata.ErrNotFound):
			span.SetStatus(codes.Ok, "")
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}
