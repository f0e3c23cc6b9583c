package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/strata"
)

// Logging returns middleware that logs each operation at Debug and failures
// at Error. Not-found results are expected outcomes and stay at Debug.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		attrs := []any{
			slog.String("op", op.Name),
			slog.String("entity", op.Entity),
			slog.String("collection", op.Collection),
			slog.Duration("elapsed", elapsed),
		}
		if op.Tenant != "" {
			attrs = append(attrs, slog.String("tenant", op.Tenant))
		}

		switch {
		case err == nil:
			logger.DebugContext(ctx, "repository operation completed", attrs...)
		case errors.Is(err, strata.ErrNotFound):
			logger.DebugContext(ctx, "repository operation found nothing", attrs...)
		default:
			logger.ErrorContext(ctx, "repository operation failed",
				append(attrs, slog.String("error", err.Error()))...,
			)
		}
		return err
	}
}
