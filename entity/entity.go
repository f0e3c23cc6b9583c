// Package entity describes persisted record types: their storage name,
// tenancy, soft-delete behaviour, declared fields and indexes, and, for
// tenant-partitioned document data, how to route records to per-tenant
// collections.
//
// Descriptors are registered once at startup in a Registry and are read-only
// afterwards.
package entity

import (
	"errors"
	"fmt"
)

// Field names shared by every aggregate.
const (
	FieldID        = "id"
	FieldCreatedBy = "createdBy"
	FieldCreatedAt = "createdAt"
	FieldUpdatedBy = "updatedBy"
	FieldUpdatedAt = "updatedAt"
	FieldDeletedBy = "deletedBy"
	FieldDeletedAt = "deletedAt"
)

// TextSearchIndex is the name of the text index built over TextSearchFields.
const TextSearchIndex = "text_search_idx"

// Index is a secondary index declaration. Keys are applied in order; a
// negative direction sorts descending.
type Index struct {
	Name   string
	Keys   []IndexKey
	Unique bool
	Sparse bool
	Text   bool
}

// IndexKey is one component of an Index.
type IndexKey struct {
	Field     string
	Direction int
}

// Descriptor is the metadata of one record type.
type Descriptor struct {
	// Name is the storage collection or table name.
	Name string

	// TenantAware enables tenant contextualization for the entity.
	TenantAware bool

	// SoftDelete makes reads skip records carrying deletedAt when the layer
	// enables soft delete.
	SoftDelete bool

	// Fields lists the declared column names.
	Fields []string

	// Unique lists fields that get a unique index.
	Unique []string

	Indexes []Index

	// Dynamic routes records to per-tenant collections. Nil for static
	// entities.
	Dynamic *Dynamic
}

// HasField reports whether name is a declared field.
func (d *Descriptor) HasField(name string) bool {
	for _, f := range d.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Validate checks the descriptor for structural errors.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return errors.New("entity: descriptor needs a name")
	}
	if d.Dynamic != nil {
		if err := d.Dynamic.validate(); err != nil {
			return fmt.Errorf("entity %q: %w", d.Name, err)
		}
	}
	return nil
}

// Dynamic routes a tenant-owned entity to a collection derived from a routing
// id found in the payload or filter.
type Dynamic struct {
	// BaseName prefixes the collection name: "<BaseName>_<id>".
	BaseName string

	// IDField names the routing id field, e.g. "creditcardId".
	IDField string

	// CollectionName overrides BaseName when set.
	CollectionName func(id string) string

	// TextSearchFields are covered by a text index named TextSearchIndex.
	TextSearchFields []string
}

// Collection returns the physical collection name for a routing id.
func (d *Dynamic) Collection(id string) string {
	if d.CollectionName != nil {
		return d.CollectionName(id)
	}
	return d.BaseName + "_" + id
}

func (d *Dynamic) validate() error {
	if d.IDField == "" {
		return errors.New("dynamic descriptor needs an id field")
	}
	if d.BaseName == "" && d.CollectionName == nil {
		return errors.New("dynamic descriptor needs a base name or a collection name function")
	}
	return nil
}

// IndexPlan returns every index a runtime-provisioned collection of this
// entity needs: declared indexes, one unique index per unique field, the
// text index over the dynamic text-search fields, and the audit indexes
// (sparse deletedAt, descending createdAt and updatedAt) for declared audit
// fields.
func (d *Descriptor) IndexPlan() []Index {
	plan := make([]Index, 0, len(d.Indexes)+len(d.Unique)+4)
	plan = append(plan, d.Indexes...)

	for _, f := range d.Unique {
		plan = append(plan, Index{Keys: []IndexKey{{Field: f, Direction: 1}}, Unique: true})
	}

	if d.Dynamic != nil && len(d.Dynamic.TextSearchFields) > 0 {
		keys := make([]IndexKey, len(d.Dynamic.TextSearchFields))
		for i, f := range d.Dynamic.TextSearchFields {
			keys[i] = IndexKey{Field: f}
		}
		plan = append(plan, Index{Name: TextSearchIndex, Keys: keys, Text: true})
	}

	if d.HasField(FieldDeletedAt) {
		plan = append(plan, Index{Keys: []IndexKey{{Field: FieldDeletedAt, Direction: 1}}, Sparse: true})
	}
	if d.HasField(FieldCreatedAt) {
		plan = append(plan, Index{Keys: []IndexKey{{Field: FieldCreatedAt, Direction: -1}}})
	}
	if d.HasField(FieldUpdatedAt) {
		plan = append(plan, Index{Keys: []IndexKey{{Field: FieldUpdatedAt, Direction: -1}}})
	}
	return plan
}
