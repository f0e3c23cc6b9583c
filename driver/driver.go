// Package driver defines the contract between the repository facade and a
// storage backend.
//
// A backend belongs to one of two families. Document backends receive
// filters already translated to the document dialect (see
// operator.ToDocument). Relational backends receive where-objects whose
// values may be operator.Node trees and compile them to SQL themselves.
package driver

import (
	"context"
	"errors"

	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/id"
)

// Family identifies the filter dialect a backend consumes.
type Family int

// Backend families.
const (
	FamilyRelational Family = iota
	FamilyDocument
)

func (f Family) String() string {
	if f == FamilyDocument {
		return "document"
	}
	return "relational"
}

// Document is one stored record, keyed by field name with storage-native
// values.
type Document = map[string]any

// Filter is a where-object. Document backends get the translated dialect;
// relational backends get plain values and operator nodes.
type Filter = map[string]any

// ErrNoCollection is returned by Provisioner.DropCollection when the
// collection does not exist.
var ErrNoCollection = errors.New("driver: collection does not exist")

// ErrDuplicateKey is returned when a write violates the primary key or a
// unique index.
var ErrDuplicateKey = errors.New("driver: duplicate key")

// Sort orders query results by one field.
type Sort struct {
	Field string
	Desc  bool
}

// Query selects documents.
type Query struct {
	// Where is OR-combined. Empty matches everything.
	Where []Filter
	Sort  []Sort
	Skip  int
	// Limit of zero means no limit.
	Limit int
}

// Aggregation is a numeric aggregate function.
type Aggregation string

// Supported aggregations.
const (
	Sum     Aggregation = "sum"
	Average Aggregation = "avg"
	Minimum Aggregation = "min"
	Maximum Aggregation = "max"
)

// Collection is a physical collection or table.
type Collection interface {
	// Name returns the physical name.
	Name() string

	// Insert stores new documents. Duplicate identifiers fail.
	Insert(ctx context.Context, docs []Document) error

	// Save upserts documents by identifier and returns them as stored.
	Save(ctx context.Context, docs []Document) ([]Document, error)

	Find(ctx context.Context, q Query) ([]Document, error)
	Count(ctx context.Context, q Query) (int64, error)

	// Update sets fields on every matching document and returns the number
	// of documents matched.
	Update(ctx context.Context, where []Filter, set Document) (int64, error)

	Delete(ctx context.Context, where []Filter) (int64, error)

	// Increment adds by to a numeric field and applies set on every matching
	// document.
	Increment(ctx context.Context, where []Filter, field string, by float64, set Document) (int64, error)

	// Aggregate computes fn over field. It returns nil when no document
	// matches.
	Aggregate(ctx context.Context, fn Aggregation, field string, where []Filter) (*float64, error)
}

// Driver is a storage backend.
type Driver interface {
	Family() Family

	// Codec converts identifiers to the backend's native representation.
	Codec() id.Codec

	// Collection returns a handle for the named collection. Handles are
	// cheap; no I/O happens until an operation runs.
	Collection(name string) Collection
}

// Provisioner is implemented by backends whose collections are created and
// indexed at runtime.
type Provisioner interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateIndexes(ctx context.Context, name string, indexes []entity.Index) error

	// DropCollection returns ErrNoCollection when the collection is absent.
	DropCollection(ctx context.Context, name string) error
}
