// Package repository provides the generic, tenant-aware repository facade.
//
// A Repository marshals aggregates to storage documents, contextualizes
// payloads (write) and filters (read) with tenant and audit fields,
// translates filters for document backends and dispatches to the driver.
// Results are marshalled back to aggregates in Read mode. Callers only ever
// see the "id" identifier; the backend's native key stays internal.
//
//	orders, err := repository.New(layer, drv, orderEntity, orderSchema, NewOrder)
//	o := orders.New(ctx, aggregate.Create)
//	o.Set("amount", 42)
//	saved, err := orders.Save(ctx, o)
//
// Every operation runs through the configured middleware chain.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/xraph/strata"
	"github.com/xraph/strata/aggregate"
	"github.com/xraph/strata/contextualize"
	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/ext"
	"github.com/xraph/strata/id"
	"github.com/xraph/strata/marshal"
	"github.com/xraph/strata/middleware"
	"github.com/xraph/strata/operator"
)

// Option configures a Repository.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	middleware []middleware.Middleware
	extensions *ext.Registry
	collection string
}

// WithLogger sets the logger. Defaults to the layer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMiddleware appends operation middleware. The first middleware is the
// outermost wrapper.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, mws...) }
}

// WithExtensions sets the extension registry notified of writes and
// failures.
func WithExtensions(r *ext.Registry) Option {
	return func(o *options) { o.extensions = r }
}

// WithCollection overrides the physical collection name, which defaults to
// the descriptor name.
func WithCollection(name string) Option {
	return func(o *options) { o.collection = name }
}

// Repository is the facade for one entity type.
type Repository[M aggregate.Aggregate] struct {
	layer   *strata.Layer
	drv     driver.Driver
	desc    *entity.Descriptor
	coll    driver.Collection
	aggOpts aggregate.Options
	factory aggregate.Factory[M]
	engine  *contextualize.Engine
	marsh   *marshal.Marshaller[M]
	chain   middleware.Middleware
	exts    *ext.Registry
	logger  *slog.Logger
}

// New creates a repository for desc backed by drv. schema declares the
// application properties of M; factory wraps fresh roots in M.
func New[M aggregate.Aggregate](
	layer *strata.Layer,
	drv driver.Driver,
	desc *entity.Descriptor,
	schema aggregate.Schema,
	factory aggregate.Factory[M],
	opts ...Option,
) (*Repository[M], error) {
	if layer == nil || drv == nil || desc == nil || factory == nil {
		return nil, fmt.Errorf("%w: repository needs a layer, a driver, a descriptor and a factory", strata.ErrConfiguration)
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", strata.ErrConfiguration, err)
	}

	o := options{logger: layer.Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.collection == "" {
		o.collection = desc.Name
	}
	if o.extensions == nil {
		o.extensions = ext.NewRegistry(o.logger)
	}

	aggOpts := aggregate.Options{Schema: schema, TenantAware: desc.TenantAware}
	return &Repository[M]{
		layer:   layer,
		drv:     drv,
		desc:    desc,
		coll:    drv.Collection(o.collection),
		aggOpts: aggOpts,
		factory: factory,
		engine:  contextualize.New(layer, drv.Codec(), contextualize.WithLogger(o.logger)),
		marsh:   marshal.New(layer, drv.Codec(), aggOpts, factory),
		chain:   middleware.Chain(o.middleware...),
		exts:    o.extensions,
		logger:  o.logger,
	}, nil
}

// Bind returns a repository sharing r's configuration but backed by the
// named collection.
func (r *Repository[M]) Bind(collection string) *Repository[M] {
	bound := *r
	bound.coll = r.drv.Collection(collection)
	return &bound
}

// Entity returns the descriptor.
func (r *Repository[M]) Entity() *entity.Descriptor { return r.desc }

// Collection returns the physical collection name.
func (r *Repository[M]) Collection() string { return r.coll.Name() }

// Driver returns the backend.
func (r *Repository[M]) Driver() driver.Driver { return r.drv }

// New returns a fresh aggregate in the given access mode, stamped and
// initialised from the ambient context.
func (r *Repository[M]) New(ctx context.Context, access aggregate.Access) M {
	return r.factory(aggregate.New(ctx, r.layer, r.aggOpts, access))
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (r *Repository[M]) run(ctx context.Context, name string, fn middleware.Handler) error {
	op := &middleware.Op{
		Name:       name,
		Entity:     r.desc.Name,
		Collection: r.coll.Name(),
		Tenant:     r.tenant(ctx),
	}
	err := r.chain(ctx, op, fn)
	if err != nil && !errors.Is(err, strata.ErrNotFound) {
		r.exts.EmitOperationFailed(ctx, name, r.desc.Name, err)
	}
	return err
}

func (r *Repository[M]) tenant(ctx context.Context) string {
	level, ok := r.layer.Config().PrimaryLevel()
	if !ok {
		return ""
	}
	v, _ := r.layer.TenantValue(ctx, level)
	return v
}

func (r *Repository[M]) mutation(ctx context.Context, op string, ids []string, affected int64) ext.Mutation {
	return ext.Mutation{
		Op:         op,
		Entity:     r.desc.Name,
		Collection: r.coll.Name(),
		Tenant:     r.tenant(ctx),
		UserID:     r.layer.UserID(ctx),
		IDs:        ids,
		Affected:   affected,
	}
}

func (r *Repository[M]) wrap(op string, err error) error {
	return fmt.Errorf("strata/repository: %s %s: %w", op, r.desc.Name, err)
}

// softDeleteAware reports whether reads must skip deleted records.
func (r *Repository[M]) softDeleteAware() bool {
	return r.layer.Config().Audit.SoftDeleteEnabled && r.desc.SoftDelete
}

// filters builds the driver filters for a read: soft-delete exclusion,
// read-side contextualization and, for document backends, translation.
func (r *Repository[M]) filters(ctx context.Context, wheres []driver.Filter, withDeleted bool) ([]driver.Filter, error) {
	if len(wheres) == 0 {
		wheres = []driver.Filter{{}}
	}

	out := make([]driver.Filter, len(wheres))
	for i, w := range wheres {
		w = maps.Clone(w)
		if w == nil {
			w = driver.Filter{}
		}
		if !withDeleted && r.softDeleteAware() {
			if _, set := w[entity.FieldDeletedAt]; !set {
				w[entity.FieldDeletedAt] = nil
			}
		}
		r.nativeIDs(w)
		c, err := r.engine.Apply(ctx, r.desc, w, contextualize.Read)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}

	if r.drv.Family() == driver.FamilyDocument {
		return []driver.Filter{operator.ToDocumentAll(out, r.drv.Codec().Key())}, nil
	}
	return out, nil
}

// nativeIDs converts conditions on declared identifier properties to the
// backend's native form. The "id" key and tenant fields are converted by the
// contextualization engine.
func (r *Repository[M]) nativeIDs(w driver.Filter) {
	for field, v := range w {
		if r.aggOpts.Schema[field] == aggregate.Identifier {
			w[field] = id.Native(r.drv.Codec(), v)
		}
	}
}

// payload marshals and contextualizes an aggregate for writing, assigning a
// fresh identifier when it has none.
func (r *Repository[M]) payload(ctx context.Context, m M) (driver.Document, error) {
	root := m.Base()
	if root.ID() == "" {
		if s, ok := r.drv.Codec().Format(r.drv.Codec().New()); ok {
			root.SetID(s)
		}
	}
	return r.engine.Apply(ctx, r.desc, r.marsh.ToStorage(m), contextualize.Write)
}

// updateDoc marshals a partial aggregate into a $set document. Identifier
// keys are removed so updates never rewrite primary keys.
func (r *Repository[M]) updateDoc(ctx context.Context, m M) (driver.Document, error) {
	doc, err := r.engine.Apply(ctx, r.desc, r.marsh.ToStorage(m), contextualize.Write)
	if err != nil {
		return nil, err
	}
	delete(doc, entity.FieldID)
	delete(doc, r.drv.Codec().Key())
	return doc, nil
}

func (r *Repository[M]) ids(docs []driver.Document) []string {
	key := r.drv.Codec().Key()
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if s, ok := r.drv.Codec().Format(d[key]); ok {
			out = append(out, s)
		}
	}
	return out
}
