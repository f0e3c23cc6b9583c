// Package aggregate provides the domain-side aggregate root that every
// persisted type embeds.
//
// A Root is a schema-driven property bag: each field has a declared Kind
// that drives marshalling, and values distinguish "absent" (never set) from
// "null" (set to nil). Changing the access mode of a root stamps the audit
// fields with the acting user and the layer clock. Tenant-aware roots carry
// one identifier field per configured hierarchy level, initialised from the
// ambient value or the system identity.
//
//	type Order struct{ *aggregate.Root }
//
//	var OrderSchema = aggregate.Schema{"amount": aggregate.Plain, "dueOn": aggregate.Date}
//
//	func NewOrder(r *aggregate.Root) *Order { return &Order{Root: r} }
package aggregate

import (
	"context"
	"maps"
	"sort"
	"time"

	"github.com/xraph/strata"
	"github.com/xraph/strata/entity"
)

// Kind classifies a property for marshalling.
type Kind int

// Property kinds.
const (
	Plain Kind = iota
	Identifier
	Date
	DateTime
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Identifier:
		return "identifier"
	case Date:
		return "date"
	case DateTime:
		return "datetime"
	default:
		return "plain"
	}
}

// Schema maps property names to their kinds.
type Schema map[string]Kind

// BaseSchema declares the fields every aggregate carries.
var BaseSchema = Schema{
	entity.FieldID:        Identifier,
	entity.FieldCreatedBy: Identifier,
	entity.FieldCreatedAt: DateTime,
	entity.FieldUpdatedBy: Identifier,
	entity.FieldUpdatedAt: DateTime,
	entity.FieldDeletedBy: Identifier,
	entity.FieldDeletedAt: DateTime,
}

// Access is the mode an aggregate is being handled in.
type Access int

// Access modes.
const (
	Create Access = iota
	Read
	Update
	Delete
	Sync
)

// String returns the access name.
func (a Access) String() string {
	switch a {
	case Create:
		return "create"
	case Read:
		return "read"
	case Update:
		return "update"
	case Delete:
		return "delete"
	case Sync:
		return "sync"
	default:
		return "unknown"
	}
}

// TimeLayout is the domain representation of date and datetime values:
// ISO-8601 in UTC with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// Aggregate is implemented by every domain type persisted through strata,
// usually by embedding *Root.
type Aggregate interface {
	Base() *Root
}

// Factory wraps a fresh root in the application's aggregate type.
type Factory[M Aggregate] func(*Root) M

// Options configure New.
type Options struct {
	// Schema declares the application properties.
	Schema Schema

	// TenantAware adds one identifier field per hierarchy level.
	TenantAware bool
}

// Root is the state shared by all aggregates.
type Root struct {
	layer  *strata.Layer
	schema Schema
	values map[string]any
	access Access
}

// New creates a root in the given access mode, stamping audit fields and
// initialising tenant fields from ctx.
func New(ctx context.Context, layer *strata.Layer, opts Options, access Access) *Root {
	schema := make(Schema, len(BaseSchema)+len(opts.Schema))
	maps.Copy(schema, BaseSchema)
	maps.Copy(schema, opts.Schema)

	r := &Root{
		layer:  layer,
		schema: schema,
		values: make(map[string]any),
	}

	if opts.TenantAware {
		for _, level := range layer.Config().Levels() {
			r.schema[level.FieldName] = Identifier
			if v, ok := layer.TenantValue(ctx, level); ok {
				r.values[level.FieldName] = v
			} else {
				r.values[level.FieldName] = layer.SystemID()
			}
		}
	}

	r.SetAccess(ctx, access)
	return r
}

// Base implements Aggregate.
func (r *Root) Base() *Root { return r }

// Layer returns the layer the root was built with.
func (r *Root) Layer() *strata.Layer { return r.layer }

// Schema returns the declared kinds, including base and tenant fields.
func (r *Root) Schema() Schema { return r.schema }

// Kind returns the declared kind of field.
func (r *Root) Kind(field string) (Kind, bool) {
	k, ok := r.schema[field]
	return k, ok
}

// Fields returns the declared field names, sorted.
func (r *Root) Fields() []string {
	out := make([]string, 0, len(r.schema))
	for f := range r.schema {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Get returns a property value. The second result is false when the property
// was never set.
func (r *Root) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Set assigns a property. A nil value marks the property as null.
func (r *Root) Set(field string, v any) { r.values[field] = v }

// Unset removes a property, making it absent.
func (r *Root) Unset(field string) { delete(r.values, field) }

// String returns a property as a string, or "" when absent, null or not a
// string.
func (r *Root) String(field string) string {
	s, _ := r.values[field].(string)
	return s
}

// Values returns a copy of the set properties.
func (r *Root) Values() map[string]any { return maps.Clone(r.values) }

// ID returns the aggregate id.
func (r *Root) ID() string { return r.String(entity.FieldID) }

// SetID assigns the aggregate id.
func (r *Root) SetID(id string) { r.values[entity.FieldID] = id }

// CreatedBy returns the creating user.
func (r *Root) CreatedBy() string { return r.String(entity.FieldCreatedBy) }

// CreatedAt returns the creation timestamp.
func (r *Root) CreatedAt() string { return r.String(entity.FieldCreatedAt) }

// UpdatedBy returns the last modifying user.
func (r *Root) UpdatedBy() string { return r.String(entity.FieldUpdatedBy) }

// UpdatedAt returns the last modification timestamp.
func (r *Root) UpdatedAt() string { return r.String(entity.FieldUpdatedAt) }

// DeletedBy returns the deleting user, "" when not deleted.
func (r *Root) DeletedBy() string { return r.String(entity.FieldDeletedBy) }

// DeletedAt returns the deletion timestamp, "" when not deleted.
func (r *Root) DeletedAt() string { return r.String(entity.FieldDeletedAt) }

// Access returns the current access mode.
func (r *Root) Access() Access { return r.access }

// SetAccess changes the access mode and stamps audit fields:
// Create sets createdBy/createdAt when unset and refreshes updatedBy/updatedAt,
// Update refreshes updatedBy/updatedAt, Delete sets deletedBy/deletedAt.
func (r *Root) SetAccess(ctx context.Context, access Access) {
	r.access = access

	switch access {
	case Create, Update, Delete:
	default:
		return
	}

	user := r.layer.UserID(ctx)
	now := FormatTime(r.layer.Now())

	switch access {
	case Create:
		if r.String(entity.FieldCreatedBy) == "" {
			r.values[entity.FieldCreatedBy] = user
		}
		if r.String(entity.FieldCreatedAt) == "" {
			r.values[entity.FieldCreatedAt] = now
		}
		r.values[entity.FieldUpdatedBy] = user
		r.values[entity.FieldUpdatedAt] = now
	case Update:
		r.values[entity.FieldUpdatedBy] = user
		r.values[entity.FieldUpdatedAt] = now
	case Delete:
		r.values[entity.FieldDeletedBy] = user
		r.values[entity.FieldDeletedAt] = now
	}
}

// TenantFields returns the tenant field values carried by the root.
func (r *Root) TenantFields() map[string]string {
	levels := r.layer.Config().Levels()
	out := make(map[string]string, len(levels))
	for _, level := range levels {
		if _, declared := r.schema[level.FieldName]; !declared {
			continue
		}
		out[level.FieldName] = r.String(level.FieldName)
	}
	return out
}

// Restore builds a root in Read mode around already-stored values. Used by
// unmarshalling; no audit stamping happens.
func Restore(layer *strata.Layer, opts Options, values map[string]any) *Root {
	schema := make(Schema, len(BaseSchema)+len(opts.Schema))
	maps.Copy(schema, BaseSchema)
	maps.Copy(schema, opts.Schema)
	if opts.TenantAware {
		for _, level := range layer.Config().Levels() {
			schema[level.FieldName] = Identifier
		}
	}
	if values == nil {
		values = make(map[string]any)
	}
	return &Root{layer: layer, schema: schema, values: values, access: Read}
}
