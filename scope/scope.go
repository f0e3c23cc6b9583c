// Package scope carries ambient, request-scoped values (tenant ids, acting
// user, correlation id) on context.Context and resolves them for the rest of
// strata.
//
// Values are set once per request by Middleware and read through Resolver.
// Contexts without values are valid: every lookup reports absence so callers
// fall back to the system identity. Capture and Restore bridge values into
// background work that outlives the request.
package scope

import (
	"context"
	"maps"

	"github.com/xraph/strata"
)

// Values is a set of ambient values keyed by lookup key.
type Values map[string]string

type ctxKey struct{}

// Ensure Resolver implements strata.Resolver at compile time.
var _ strata.Resolver = Resolver{}

// Resolver reads ambient values from the context.
type Resolver struct{}

// NewResolver returns a context-backed Resolver.
func NewResolver() Resolver { return Resolver{} }

// Lookup implements strata.Resolver.
func (Resolver) Lookup(ctx context.Context, key string) (string, bool) {
	if ctx == nil {
		return "", false
	}
	vals, _ := ctx.Value(ctxKey{}).(Values)
	v, ok := vals[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// With returns a context carrying key=value in addition to any values
// already present. The parent's values are never mutated.
func With(ctx context.Context, key, value string) context.Context {
	return WithValues(ctx, Values{key: value})
}

// WithValues returns a context carrying vals merged over the parent's values.
// Empty values are dropped.
func WithValues(ctx context.Context, vals Values) context.Context {
	merged := From(ctx)
	if merged == nil {
		merged = make(Values, len(vals))
	}
	for k, v := range vals {
		if v == "" {
			continue
		}
		merged[k] = v
	}
	return context.WithValue(ctx, ctxKey{}, merged)
}

// From returns a copy of the values carried by ctx, or nil.
func From(ctx context.Context) Values {
	if ctx == nil {
		return nil
	}
	vals, _ := ctx.Value(ctxKey{}).(Values)
	if vals == nil {
		return nil
	}
	return maps.Clone(vals)
}

// Capture extracts the given keys from ctx. Absent keys are omitted.
// With no keys, every value is captured.
func Capture(ctx context.Context, keys ...string) Values {
	all := From(ctx)
	if len(keys) == 0 {
		return all
	}
	out := make(Values, len(keys))
	for _, k := range keys {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Restore attaches captured values to ctx. An empty set returns ctx unchanged.
func Restore(ctx context.Context, vals Values) context.Context {
	if len(vals) == 0 {
		return ctx
	}
	return WithValues(ctx, vals)
}

// CaptureTenancy captures the hierarchy, user and correlation values named by
// the layer configuration.
func CaptureTenancy(ctx context.Context, cfg *strata.Config) Values {
	keys := make([]string, 0, len(cfg.Levels())+2)
	for _, l := range cfg.Levels() {
		keys = append(keys, l.Key())
	}
	keys = append(keys, cfg.Audit.UserIDKey(), cfg.Audit.CorrelationIDKey())
	return Capture(ctx, keys...)
}
