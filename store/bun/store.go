package bunstore

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/id"
	"github.com/xraph/strata/store"
)

// Ensure Store implements the driver contract at compile time.
var (
	_ store.Store       = (*Store)(nil)
	_ driver.Driver     = (*Store)(nil)
	_ driver.Collection = (*table)(nil)
)

// Store is a Bun ORM driver using the PostgreSQL dialect.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	codec  id.Codec
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithCodec sets the identifier codec. Defaults to id.UUIDCodec.
func WithCodec(c id.Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// New creates a new Bun store. The caller owns the db lifecycle; the Store
// will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		codec:  id.UUIDCodec{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Family implements driver.Driver.
func (s *Store) Family() driver.Family { return driver.FamilyRelational }

// Codec implements driver.Driver.
func (s *Store) Codec() id.Codec { return s.codec }

// Collection implements driver.Driver.
func (s *Store) Collection(name string) driver.Collection {
	return &table{store: s, name: name}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}
