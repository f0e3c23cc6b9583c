// Package middleware provides composable middleware for repository
// operations.
//
// A [Middleware] is a function that wraps a single repository call (find,
// save, update, ...). Middleware are composed into a chain using [Chain] and
// applied around every operation a repository runs. They are applied
// right-to-left: the first middleware in the slice is the outermost wrapper.
//
//	// logging → recover → driver call
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs operation, entity, collection, duration and outcome
//   - [Recover] catches panics and converts them to errors
//   - [Tracing] wraps the operation in an OpenTelemetry span
//   - [Metrics] records per-operation duration and outcome counters
//   - [Scope] attaches captured ambient values to the operation context
//   - [RateLimit] applies per-tenant rate and concurrency limits
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, op *middleware.Op, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
