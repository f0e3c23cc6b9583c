package middleware_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/strata/middleware"
)

func TestRateLimit_ConcurrencyCap(t *testing.T) {
	l := middleware.NewLimiter(middleware.TenantLimit{MaxConcurrency: 1})
	mw := middleware.RateLimit(l)
	op := &middleware.Op{Name: "find", Entity: "orders", Tenant: "acme"}

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- mw(context.Background(), op, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	if got := l.Active("acme"); got != 1 {
		t.Errorf("Active = %d, want 1", got)
	}
	err := mw(context.Background(), op, func(context.Context) error { return nil })
	if !errors.Is(err, middleware.ErrThrottled) {
		t.Fatalf("second call err = %v, want ErrThrottled", err)
	}

	// Other tenants have their own budget.
	other := &middleware.Op{Name: "find", Entity: "orders", Tenant: "globex"}
	if err := mw(context.Background(), other, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("other tenant: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first call: %v", err)
	}
	if got := l.Active("acme"); got != 0 {
		t.Errorf("Active after release = %d, want 0", got)
	}
}

func TestRateLimit_ReleasesOnError(t *testing.T) {
	l := middleware.NewLimiter(middleware.TenantLimit{MaxConcurrency: 1})
	mw := middleware.RateLimit(l)
	boom := errors.New("boom")

	for range 3 {
		err := mw(context.Background(), newTestOp(), func(context.Context) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want boom", err)
		}
	}
}

func TestRateLimit_WaitHonorsContext(t *testing.T) {
	l := middleware.NewLimiter(middleware.TenantLimit{})
	l.SetTenant("acme", middleware.TenantLimit{Rate: 0.001, Burst: 1})
	mw := middleware.RateLimit(l)
	op := &middleware.Op{Name: "save", Entity: "orders", Tenant: "acme"}
	noop := func(context.Context) error { return nil }

	if err := mw(context.Background(), op, noop); err != nil {
		t.Fatalf("first call within burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := mw(ctx, op, func(context.Context) error { called = true; return nil })
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if called {
		t.Error("handler ran despite rate limit")
	}

	// Unlimited default for tenants without an override.
	free := &middleware.Op{Name: "save", Entity: "orders", Tenant: "globex"}
	for range 5 {
		if err := mw(context.Background(), free, noop); err != nil {
			t.Fatalf("default tenant: %v", err)
		}
	}
}
