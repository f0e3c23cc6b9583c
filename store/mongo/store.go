package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/id"
	"github.com/xraph/strata/store"
)

// Ensure Store implements the driver contract at compile time.
var (
	_ store.Store        = (*Store)(nil)
	_ driver.Driver      = (*Store)(nil)
	_ driver.Provisioner = (*Store)(nil)
	_ driver.Collection  = (*collection)(nil)
)

// Store is a MongoDB driver. When built with NewFromDatabase or NewFromGrove
// the caller owns the connection lifecycle; Close only disconnects clients
// opened by New.
type Store struct {
	db     *mongod.Database
	client *mongod.Client
	grove  *grove.DB
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

// WithCodec sets the identifier codec. Defaults to ObjectIDCodec.
func WithCodec(c id.Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// New connects to uri and uses the named database.
func New(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("strata/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("strata/mongo: ping: %w", err)
	}
	s := NewFromDatabase(client.Database(database), opts...)
	s.client = client
	return s, nil
}

// NewFromDatabase creates a store over an existing database handle.
func NewFromDatabase(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		codec:  ObjectIDCodec{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromGrove creates a store over a grove database opened with the mongo
// driver. The caller owns the *grove.DB lifecycle.
func NewFromGrove(db *grove.DB, opts ...Option) (*Store, error) {
	if name := db.Driver().Name(); name != "mongo" {
		return nil, fmt.Errorf("strata/mongo: unsupported grove driver %q", name)
	}
	// Any collection handle leads back to the database the grove DSN selected.
	database := mongodriver.Unwrap(db).Collection(anchorCollection).Database()
	s := NewFromDatabase(database, opts...)
	s.grove = db
	return s, nil
}

// anchorCollection names the handle used to reach the database. No I/O is
// performed on it.
const anchorCollection = "strata"

// Grove returns the *grove.DB the store was built from, or nil.
func (s *Store) Grove() *grove.DB {
	return s.grove
}

// Database returns the underlying *mongo.Database for advanced usage.
func (s *Store) Database() *mongod.Database {
	return s.db
}

// Family implements driver.Driver.
func (s *Store) Family() driver.Family { return driver.FamilyDocument }

// Codec implements driver.Driver.
func (s *Store) Codec() id.Codec { return s.codec }

// Collection implements driver.Driver.
func (s *Store) Collection(name string) driver.Collection {
	return &collection{store: s, coll: s.db.Collection(name)}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.grove != nil {
		return s.grove.Ping(ctx)
	}
	return s.db.Client().Ping(ctx, nil)
}

// Close disconnects the client when the store opened it.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// ──────────────────────────────────────────────────
// Provisioner
// ──────────────────────────────────────────────────

// HasCollection implements driver.Provisioner.
func (s *Store) HasCollection(ctx context.Context, name string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, fmt.Errorf("strata/mongo: list collections: %w", err)
	}
	return len(names) > 0, nil
}

// CreateIndexes implements driver.Provisioner. Creating an index also
// creates the collection.
func (s *Store) CreateIndexes(ctx context.Context, name string, indexes []entity.Index) error {
	if len(indexes) == 0 {
		return nil
	}
	models := make([]mongod.IndexModel, 0, len(indexes))
	for _, idx := range indexes {
		models = append(models, indexModel(idx))
	}
	if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("strata/mongo: create indexes on %s: %w", name, err)
	}
	s.logger.Debug("created indexes", "collection", name, "count", len(models))
	return nil
}

// DropCollection implements driver.Provisioner.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	ok, err := s.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("strata/mongo: drop %s: %w", name, driver.ErrNoCollection)
	}
	if err := s.db.Collection(name).Drop(ctx); err != nil {
		return fmt.Errorf("strata/mongo: drop %s: %w", name, err)
	}
	return nil
}

func indexModel(idx entity.Index) mongod.IndexModel {
	keys := make(bson.D, 0, len(idx.Keys))
	for _, k := range idx.Keys {
		var v any = 1
		switch {
		case idx.Text:
			v = "text"
		case k.Direction < 0:
			v = -1
		}
		keys = append(keys, bson.E{Key: k.Field, Value: v})
	}

	opts := options.Index()
	if idx.Name != "" {
		opts.SetName(idx.Name)
	}
	if idx.Unique {
		opts.SetUnique(true)
	}
	if idx.Sparse {
		opts.SetSparse(true)
	}
	return mongod.IndexModel{Keys: keys, Options: opts}
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	return err != nil && mongod.IsDuplicateKeyError(err)
}
