package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ErrThrottled is returned when a tenant is at its concurrency limit.
var ErrThrottled = errors.New("strata/middleware: tenant concurrency limit reached")

// TenantLimit bounds the operations of one tenant. Zero fields disable the
// corresponding limit.
type TenantLimit struct {
	// Rate is the sustained operations per second.
	Rate float64

	// Burst is the token-bucket burst size. Defaults to 1 when Rate is set.
	Burst int

	// MaxConcurrency caps simultaneous operations.
	MaxConcurrency int
}

type tenantState struct {
	limiter *rate.Limiter
	max     int
	active  int
}

// Limiter tracks per-tenant rate and concurrency state. Tenants without an
// override share the default limit, each with its own bucket. Operations
// without an ambient tenant are keyed under "". Safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	def       TenantLimit
	overrides map[string]TenantLimit
	states    map[string]*tenantState
}

// NewLimiter creates a Limiter applying def to every tenant.
func NewLimiter(def TenantLimit) *Limiter {
	return &Limiter{
		def:       def,
		overrides: make(map[string]TenantLimit),
		states:    make(map[string]*tenantState),
	}
}

// SetTenant replaces the limit for one tenant. In-flight operations keep
// counting against the new concurrency cap.
func (l *Limiter) SetTenant(tenantID string, lim TenantLimit) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.overrides[tenantID] = lim
	ts := newTenantState(lim)
	if existing := l.states[tenantID]; existing != nil {
		ts.active = existing.active
	}
	l.states[tenantID] = ts
}

// Active returns the number of in-flight operations for a tenant.
func (l *Limiter) Active(tenantID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts := l.states[tenantID]; ts != nil {
		return ts.active
	}
	return 0
}

func newTenantState(lim TenantLimit) *tenantState {
	ts := &tenantState{max: lim.MaxConcurrency}
	if lim.Rate > 0 {
		burst := lim.Burst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(lim.Rate), burst)
	}
	return ts
}

func (l *Limiter) state(tenantID string) *tenantState {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts, ok := l.states[tenantID]
	if !ok {
		lim, hasOverride := l.overrides[tenantID]
		if !hasOverride {
			lim = l.def
		}
		ts = newTenantState(lim)
		l.states[tenantID] = ts
	}
	return ts
}

func (l *Limiter) acquire(tenantID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.states[tenantID]
	if ts.max > 0 && ts.active >= ts.max {
		return false
	}
	ts.active++
	return true
}

func (l *Limiter) release(tenantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts := l.states[tenantID]; ts != nil && ts.active > 0 {
		ts.active--
	}
}

// RateLimit returns middleware that waits for the tenant's rate limiter
// and rejects operations beyond its concurrency cap with ErrThrottled.
// Waiting honors context cancellation.
func RateLimit(l *Limiter) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		ts := l.state(op.Tenant)
		if ts.limiter != nil {
			if err := ts.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("strata/middleware: %s %s: rate limit: %w", op.Name, op.Entity, err)
			}
		}
		if !l.acquire(op.Tenant) {
			return fmt.Errorf("%w: tenant %q, %s %s", ErrThrottled, op.Tenant, op.Name, op.Entity)
		}
		defer l.release(op.Tenant)
		return next(ctx)
	}
}
