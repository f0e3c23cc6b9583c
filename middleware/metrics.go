package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/strata"
)

// meterName is the instrumentation scope name for strata metrics.
const meterName = "github.com/xraph/strata"

// Metrics returns middleware that records per-operation metrics using the
// global OTel MeterProvider.
//
// Instruments:
//   - strata.op.duration (Float64Histogram): operation time in seconds
//   - strata.op.calls (Int64Counter): total operations
//
// Both carry the attributes op, entity and status ("ok", "not_found" or
// "error").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"strata.op.duration",
		metric.WithDescription("Duration of repository operations in seconds"),
		metric.WithUnit("s"),
	)
	calls, _ := meter.Int64Counter(
		"strata.op.calls",
		metric.WithDescription("Total number of repository operations"),
		metric.WithUnit("{call}"),
	)

	return func(ctx context.Context, op *Op, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		switch {
		case errors.Is(err, strata.ErrNotFound):
			status = "not_found"
		case err != nil:
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("op", op.Name),
			attribute.String("entity", op.Entity),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		calls.Add(ctx, 1, attrs)
		return err
	}
}
