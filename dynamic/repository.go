package dynamic

import (
	"context"

	"github.com/xraph/strata/aggregate"
	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/repository"
)

// Repository exposes the repository surface for a dynamic entity, routing
// every call to the partition named by its routing id.
type Repository[M aggregate.Aggregate] struct {
	router *Router[M]
}

// NewRepository wraps router in the routing facade.
func NewRepository[M aggregate.Aggregate](router *Router[M]) *Repository[M] {
	return &Repository[M]{router: router}
}

// Router returns the underlying router.
func (d *Repository[M]) Router() *Router[M] { return d.router }

// New returns a fresh aggregate in the given access mode.
func (d *Repository[M]) New(ctx context.Context, access aggregate.Access) M {
	return d.router.base.New(ctx, access)
}

// For returns the repository bound to tenantID's partition.
func (d *Repository[M]) For(ctx context.Context, tenantID string) (*repository.Repository[M], error) {
	return d.router.Repository(ctx, tenantID)
}

func (d *Repository[M]) route(ctx context.Context, args ...any) (*repository.Repository[M], error) {
	tenantID, err := d.router.ExtractRoutingID(args...)
	if err != nil {
		return nil, err
	}
	return d.router.Repository(ctx, tenantID)
}

// routeEither routes on where, falling back to model.
func (d *Repository[M]) routeEither(ctx context.Context, where driver.Filter, model M) (*repository.Repository[M], error) {
	tenantID, err := d.router.ExtractRoutingID(where)
	if err != nil {
		var fallbackErr error
		if tenantID, fallbackErr = d.router.ExtractRoutingID(model); fallbackErr != nil {
			return nil, err
		}
	}
	return d.router.Repository(ctx, tenantID)
}

// ──────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────

// Save upserts models, grouping them by routing id. Results keep the input
// order.
func (d *Repository[M]) Save(ctx context.Context, models ...M) ([]M, error) {
	groups, order, err := d.group(models)
	if err != nil {
		return nil, err
	}
	out := make([]M, len(models))
	for _, tenantID := range order {
		g := groups[tenantID]
		repo, err := d.router.Repository(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		saved, err := repo.Save(ctx, g.models...)
		if err != nil {
			return nil, err
		}
		for i, idx := range g.index {
			out[idx] = saved[i]
		}
	}
	return out, nil
}

// Insert stores new models, grouping them by routing id.
func (d *Repository[M]) Insert(ctx context.Context, models ...M) error {
	groups, order, err := d.group(models)
	if err != nil {
		return err
	}
	for _, tenantID := range order {
		repo, err := d.router.Repository(ctx, tenantID)
		if err != nil {
			return err
		}
		if err := repo.Insert(ctx, groups[tenantID].models...); err != nil {
			return err
		}
	}
	return nil
}

// Update routes on where, or on model when where carries no routing id.
func (d *Repository[M]) Update(ctx context.Context, where driver.Filter, model M) (int64, error) {
	repo, err := d.routeEither(ctx, where, model)
	if err != nil {
		return 0, err
	}
	return repo.Update(ctx, where, model)
}

func (d *Repository[M]) Delete(ctx context.Context, where driver.Filter) (int64, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		return 0, err
	}
	return repo.Delete(ctx, where)
}

func (d *Repository[M]) SoftDelete(ctx context.Context, where driver.Filter) (int64, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		return 0, err
	}
	return repo.SoftDelete(ctx, where)
}

func (d *Repository[M]) Restore(ctx context.Context, where driver.Filter) (int64, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		return 0, err
	}
	return repo.Restore(ctx, where)
}

func (d *Repository[M]) Increment(ctx context.Context, where driver.Filter, field string, by float64) (int64, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		return 0, err
	}
	return repo.Increment(ctx, where, field, by)
}

func (d *Repository[M]) Decrement(ctx context.Context, where driver.Filter, field string, by float64) (int64, error) {
	return d.Increment(ctx, where, field, -by)
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

func (d *Repository[M]) Find(ctx context.Context, opts repository.FindOptions) ([]M, error) {
	repo, err := d.route(ctx, opts)
	if err != nil {
		return nil, err
	}
	return repo.Find(ctx, opts)
}

func (d *Repository[M]) FindBy(ctx context.Context, where driver.Filter) ([]M, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		return nil, err
	}
	return repo.FindBy(ctx, where)
}

// FindByIDs returns the aggregates with the given ids from tenantID's
// partition.
func (d *Repository[M]) FindByIDs(ctx context.Context, tenantID string, ids ...string) ([]M, error) {
	repo, err := d.router.Repository(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return repo.FindByIDs(ctx, ids...)
}

func (d *Repository[M]) FindOne(ctx context.Context, opts repository.FindOptions) (M, error) {
	repo, err := d.route(ctx, opts)
	if err != nil {
		var zero M
		return zero, err
	}
	return repo.FindOne(ctx, opts)
}

func (d *Repository[M]) FindOneBy(ctx context.Context, where driver.Filter) (M, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		var zero M
		return zero, err
	}
	return repo.FindOneBy(ctx, where)
}

func (d *Repository[M]) FindAndCount(ctx context.Context, opts repository.FindOptions) ([]M, int64, error) {
	repo, err := d.route(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	return repo.FindAndCount(ctx, opts)
}

func (d *Repository[M]) Count(ctx context.Context, opts repository.FindOptions) (int64, error) {
	repo, err := d.route(ctx, opts)
	if err != nil {
		return 0, err
	}
	return repo.Count(ctx, opts)
}

func (d *Repository[M]) CountBy(ctx context.Context, where driver.Filter) (int64, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		return 0, err
	}
	return repo.CountBy(ctx, where)
}

func (d *Repository[M]) Exists(ctx context.Context, where driver.Filter) (bool, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		return false, err
	}
	return repo.Exists(ctx, where)
}

func (d *Repository[M]) Sum(ctx context.Context, field string, where driver.Filter) (*float64, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		return nil, err
	}
	return repo.Sum(ctx, field, where)
}

func (d *Repository[M]) Average(ctx context.Context, field string, where driver.Filter) (*float64, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		return nil, err
	}
	return repo.Average(ctx, field, where)
}

func (d *Repository[M]) Minimum(ctx context.Context, field string, where driver.Filter) (*float64, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		return nil, err
	}
	return repo.Minimum(ctx, field, where)
}

func (d *Repository[M]) Maximum(ctx context.Context, field string, where driver.Filter) (*float64, error) {
	repo, err := d.route(ctx, where)
	if err != nil {
		return nil, err
	}
	return repo.Maximum(ctx, field, where)
}

type batch[M aggregate.Aggregate] struct {
	models []M
	index  []int
}

// group buckets models by routing id, remembering first-seen order.
func (d *Repository[M]) group(models []M) (map[string]*batch[M], []string, error) {
	groups := make(map[string]*batch[M])
	var order []string
	for i, m := range models {
		tenantID, err := d.router.ExtractRoutingID(m)
		if err != nil {
			return nil, nil, err
		}
		g, ok := groups[tenantID]
		if !ok {
			g = &batch[M]{}
			groups[tenantID] = g
			order = append(order, tenantID)
		}
		g.models = append(g.models, m)
		g.index = append(g.index, i)
	}
	return groups, order, nil
}
