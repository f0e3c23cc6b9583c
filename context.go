package strata

import "context"

// Resolver exposes ambient, request-scoped values such as tenant ids, the
// acting user and the correlation id. Implementations must be pure reads and
// must report absence (not an error) for contexts that carry no values, such
// as background jobs.
type Resolver interface {
	Lookup(ctx context.Context, key string) (string, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, key string) (string, bool)

// Lookup implements Resolver.
func (f ResolverFunc) Lookup(ctx context.Context, key string) (string, bool) {
	return f(ctx, key)
}

type noopResolver struct{}

func (noopResolver) Lookup(context.Context, string) (string, bool) { return "", false }
