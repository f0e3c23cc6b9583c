package strata

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Option configures a Layer.
type Option func(*Layer) error

// Layer is the process-wide handle every strata component receives. It holds
// the immutable configuration, the ambient context resolver, the logger and
// the clock used for audit timestamps.
//
// Create one with New() at startup and pass it by pointer; there is no
// package-level configuration.
type Layer struct {
	config   Config
	logger   *slog.Logger
	resolver Resolver
	now      func() time.Time
}

// New builds a Layer from the given options. Tenant-scoped modes require a
// Resolver; omitting one fails with ErrConfiguration.
func New(opts ...Option) (*Layer, error) {
	l := &Layer{
		config: DefaultConfig(),
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	l.config = l.config.withDefaults()
	if err := l.config.Validate(); err != nil {
		return nil, err
	}

	if l.resolver == nil {
		if !l.config.Regular() {
			return nil, fmt.Errorf("%w: tenancy mode %q requires an ambient context resolver",
				ErrConfiguration, l.config.Tenancy.Mode)
		}
		l.resolver = noopResolver{}
	}
	return l, nil
}

// MustNew is like New but panics on error. Intended for tests and examples.
func MustNew(opts ...Option) *Layer {
	l, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return l
}

// Config returns the layer configuration. Callers must not mutate it.
func (l *Layer) Config() *Config { return &l.config }

// Logger returns the layer's logger.
func (l *Layer) Logger() *slog.Logger { return l.logger }

// Resolver returns the ambient context resolver.
func (l *Layer) Resolver() Resolver { return l.resolver }

// Now returns the current time from the layer clock.
func (l *Layer) Now() time.Time { return l.now() }

// SystemID returns the configured system identity.
func (l *Layer) SystemID() string { return l.config.SystemID() }

// Lookup resolves an ambient value. Empty values are reported as absent.
func (l *Layer) Lookup(ctx context.Context, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	v, ok := l.resolver.Lookup(ctx, key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// UserID returns the acting user, falling back to the system identity.
func (l *Layer) UserID(ctx context.Context) string {
	if v, ok := l.Lookup(ctx, l.config.Audit.UserIDKey()); ok {
		return v
	}
	return l.SystemID()
}

// CorrelationID returns the ambient correlation id, if any.
func (l *Layer) CorrelationID(ctx context.Context) (string, bool) {
	return l.Lookup(ctx, l.config.Audit.CorrelationIDKey())
}

// TenantValue returns the ambient value for a hierarchy level.
func (l *Layer) TenantValue(ctx context.Context, level HierarchyLevel) (string, bool) {
	return l.Lookup(ctx, level.Key())
}

// WithConfig sets the tenancy and audit configuration.
func WithConfig(cfg Config) Option {
	return func(l *Layer) error {
		l.config = cfg
		return nil
	}
}

// WithResolver sets the ambient context resolver.
func WithResolver(r Resolver) Option {
	return func(l *Layer) error {
		if r == nil {
			return fmt.Errorf("%w: nil resolver", ErrConfiguration)
		}
		l.resolver = r
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Layer) error {
		l.logger = logger
		return nil
	}
}

// WithClock overrides the clock used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Layer) error {
		l.now = now
		return nil
	}
}
