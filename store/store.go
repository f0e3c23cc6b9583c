package store

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/strata/driver"
)

// Store is the contract every backend under store/ satisfies.
type Store interface {
	driver.Driver

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
}

// Ping checks every backend concurrently and returns the first failure,
// annotated with the failing backend's family and position.
func Ping(ctx context.Context, stores ...Store) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, s := range stores {
		g.Go(func() error {
			if err := s.Ping(ctx); err != nil {
				return fmt.Errorf("strata/store: ping %s backend #%d: %w", s.Family(), i, err)
			}
			return nil
		})
	}
	return g.Wait()
}
