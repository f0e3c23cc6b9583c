package middleware

import (
	"context"
)

// Handler is the terminal function that performs the storage call.
type Handler func(ctx context.Context) error

// Op describes the repository operation being executed.
type Op struct {
	// Name is the facade operation, e.g. "find" or "softDelete".
	Name string

	// Entity is the descriptor name.
	Entity string

	// Collection is the physical collection or table.
	Collection string

	// Tenant is the ambient primary tenant, empty when absent.
	Tenant string
}

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the operation being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, op *Op, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, tracing) executes as:
//
//	logging → recover → tracing → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, op, prev)
			}
		}
		return h(ctx)
	}
}
