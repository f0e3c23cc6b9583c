package middleware

import (
	"context"

	"github.com/xraph/strata/scope"
)

// Scope returns middleware that attaches captured ambient values to every
// operation context. Values already present on the context win. Use it for
// repositories driven from background work that has no request context.
func Scope(vals scope.Values) Middleware {
	return func(ctx context.Context, _ *Op, next Handler) error {
		current := scope.From(ctx)
		missing := make(scope.Values, len(vals))
		for k, v := range vals {
			if _, ok := current[k]; !ok {
				missing[k] = v
			}
		}
		return next(scope.Restore(ctx, missing))
	}
}
