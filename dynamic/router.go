// Package dynamic routes tenant-owned entities to per-tenant physical
// collections.
//
// A Router derives the collection name from a routing id found in the call
// arguments, provisions the collection on first use (indexes plus a
// write probe) and caches a repository bound to it. Readiness is
// single-flight per (entity, tenant): concurrent first calls share one
// provisioning pass. Relational backends keep every tenant in the base
// table and skip provisioning.
package dynamic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/strata"
	"github.com/xraph/strata/aggregate"
	"github.com/xraph/strata/backoff"
	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/ext"
	"github.com/xraph/strata/repository"
)

// probeField marks the document written to verify a new collection.
const probeField = "_temp"

// Option configures a Router.
type Option func(*options)

type options struct {
	cache      *Cache
	extensions *ext.Registry
	logger     *slog.Logger
	attempts   int
	backoff    backoff.Strategy
}

// WithCache shares readiness state with other routers.
func WithCache(c *Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithExtensions sets the registry notified when collections become ready
// or are destroyed.
func WithExtensions(r *ext.Registry) Option {
	return func(o *options) { o.extensions = r }
}

// WithRetry retries a failed provisioning pass up to attempts times in
// total, waiting s.Delay between passes. A nil s uses
// backoff.DefaultStrategy. Without it a pass runs once and the next call
// for the tenant tries again.
func WithRetry(attempts int, s backoff.Strategy) Option {
	return func(o *options) {
		o.attempts = attempts
		o.backoff = s
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Router routes one dynamic entity type.
type Router[M aggregate.Aggregate] struct {
	base  *repository.Repository[M]
	desc  *entity.Descriptor
	dyn   *entity.Dynamic
	prov  driver.Provisioner
	cache *Cache
	exts  *ext.Registry

	attempts int
	backoff  backoff.Strategy

	logger *slog.Logger
}

// NewRouter creates a router over base, whose entity must carry a dynamic
// descriptor.
func NewRouter[M aggregate.Aggregate](base *repository.Repository[M], opts ...Option) (*Router[M], error) {
	if base == nil {
		return nil, fmt.Errorf("%w: router needs a base repository", strata.ErrConfiguration)
	}
	desc := base.Entity()
	if desc.Dynamic == nil {
		return nil, fmt.Errorf("%w: entity %q is not dynamic", strata.ErrConfiguration, desc.Name)
	}

	o := options{logger: slog.Default(), attempts: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cache == nil {
		o.cache = NewCache()
	}
	if o.extensions == nil {
		o.extensions = ext.NewRegistry(o.logger)
	}
	if o.backoff == nil {
		o.backoff = backoff.DefaultStrategy()
	}

	r := &Router[M]{
		base:     base,
		desc:     desc,
		dyn:      desc.Dynamic,
		cache:    o.cache,
		exts:     o.extensions,
		attempts: o.attempts,
		backoff:  o.backoff,
		logger:   o.logger,
	}
	if base.Driver().Family() == driver.FamilyDocument {
		r.prov, _ = base.Driver().(driver.Provisioner)
	}
	return r, nil
}

// Entity returns the routed descriptor.
func (r *Router[M]) Entity() *entity.Descriptor { return r.desc }

// CollectionName returns the physical collection for a routing id. On
// relational backends it names the shared base table.
func (r *Router[M]) CollectionName(tenantID string) string {
	if r.base.Driver().Family() == driver.FamilyRelational {
		return r.base.Collection()
	}
	return r.dyn.Collection(tenantID)
}

// ExtractRoutingID finds the routing id in call arguments.
func (r *Router[M]) ExtractRoutingID(args ...any) (string, error) {
	return ExtractRoutingID(r.base.Driver().Codec(), r.dyn.IDField, args...)
}

// Ready reports whether the partition for tenantID is provisioned.
func (r *Router[M]) Ready(tenantID string) bool {
	return r.cache.isReady(r.key(tenantID))
}

// Init provisions the partition for tenantID.
func (r *Router[M]) Init(ctx context.Context, tenantID string) error {
	return r.EnsureReady(ctx, tenantID)
}

// EnsureReady provisions the partition for tenantID once. Concurrent
// callers share one attempt; a cancelled caller returns early while the
// attempt continues for the others. Failures are not cached.
func (r *Router[M]) EnsureReady(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty routing id for %s", strata.ErrRouting, r.desc.Name)
	}
	k := r.key(tenantID)
	if r.cache.isReady(k) {
		return nil
	}

	flight, gen := r.cache.flight(k)
	ch := r.cache.group.DoChan(flight, func() (any, error) {
		if r.cache.isReady(k) {
			return nil, nil
		}
		return nil, r.provision(context.WithoutCancel(ctx), k, gen)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Repository returns the repository bound to tenantID's partition,
// provisioning it first.
func (r *Router[M]) Repository(ctx context.Context, tenantID string) (*repository.Repository[M], error) {
	if err := r.EnsureReady(ctx, tenantID); err != nil {
		return nil, err
	}
	k := r.key(tenantID)
	if cached, ok := r.cache.repo(k); ok {
		return cached.(*repository.Repository[M]), nil
	}

	bound := r.base
	if r.base.Driver().Family() == driver.FamilyDocument {
		bound = r.base.Bind(r.CollectionName(tenantID))
	}
	return r.cache.storeRepo(k, bound).(*repository.Repository[M]), nil
}

// Destroy evicts tenantID's partition from the caches and drops its
// collection when present.
func (r *Router[M]) Destroy(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty routing id for %s", strata.ErrRouting, r.desc.Name)
	}
	k := r.key(tenantID)
	name := r.CollectionName(tenantID)
	stale := r.cache.evict(k)

	// A pass of the evicted generation may still be creating the collection.
	select {
	case <-r.cache.group.DoChan(stale, func() (any, error) { return nil, nil }):
	case <-ctx.Done():
		return ctx.Err()
	}

	if r.prov != nil {
		if err := r.prov.DropCollection(ctx, name); err != nil && !errors.Is(err, driver.ErrNoCollection) {
			r.logger.ErrorContext(ctx, "dynamic: destroy failed",
				slog.String("entity", r.desc.Name),
				slog.String("collection", name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%w: %s: %w", strata.ErrDestroy, name, err)
		}
	}

	r.logger.InfoContext(ctx, "dynamic: collection destroyed",
		slog.String("entity", r.desc.Name),
		slog.String("collection", name),
	)
	r.exts.EmitCollectionDestroyed(ctx, ext.Collection{Entity: r.desc.Name, TenantID: tenantID, Name: name})
	return nil
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (r *Router[M]) key(tenantID string) key {
	return key{entity: r.desc.Name, tenant: tenantID}
}

// provision runs one readiness pass: create the index plan, then verify the
// collection with a write probe when it is not listed yet.
func (r *Router[M]) provision(ctx context.Context, k key, gen uint64) error {
	start := time.Now()
	name := r.CollectionName(k.tenant)

	if r.prov != nil {
		attempt := 0
		err := backoff.Retry(ctx, r.attempts, r.backoff, func(ctx context.Context) error {
			attempt++
			if attempt > 1 {
				r.logger.WarnContext(ctx, "dynamic: retrying readiness",
					slog.String("collection", name),
					slog.Int("attempt", attempt),
				)
			}
			return r.createIndexes(ctx, name)
		})
		if err != nil {
			return r.readinessError(ctx, name, err)
		}
	}

	if !r.cache.markReady(k, gen) {
		r.logger.WarnContext(ctx, "dynamic: collection destroyed during readiness",
			slog.String("entity", r.desc.Name),
			slog.String("collection", name),
		)
		return fmt.Errorf("%w: %s: destroyed while provisioning", strata.ErrReadiness, name)
	}
	elapsed := time.Since(start)
	r.logger.DebugContext(ctx, "dynamic: collection ready",
		slog.String("entity", r.desc.Name),
		slog.String("collection", name),
		slog.Duration("elapsed", elapsed),
	)
	r.exts.EmitCollectionReady(ctx, ext.Collection{Entity: r.desc.Name, TenantID: k.tenant, Name: name}, elapsed)
	return nil
}

func (r *Router[M]) createIndexes(ctx context.Context, name string) error {
	if plan := r.desc.IndexPlan(); len(plan) > 0 {
		if err := r.prov.CreateIndexes(ctx, name, plan); err != nil {
			return fmt.Errorf("create indexes: %w", err)
		}
	}

	exists, err := r.prov.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	if exists {
		return nil
	}

	coll := r.base.Driver().Collection(name)
	probe := driver.Filter{probeField: true}
	if err := coll.Insert(ctx, []driver.Document{{probeField: true}}); err != nil {
		return fmt.Errorf("probe insert: %w", err)
	}
	if _, err := coll.Delete(ctx, []driver.Filter{probe}); err != nil {
		return fmt.Errorf("probe delete: %w", err)
	}
	return nil
}

func (r *Router[M]) readinessError(ctx context.Context, name string, err error) error {
	r.logger.ErrorContext(ctx, "dynamic: readiness failed",
		slog.String("entity", r.desc.Name),
		slog.String("collection", name),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%w: %s: %w", strata.ErrReadiness, name, err)
}
