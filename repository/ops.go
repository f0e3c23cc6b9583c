package repository

import (
	"context"
	"maps"

	"github.com/xraph/strata"
	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/operator"
)

// Operation names reported to middleware and extensions.
const (
	OpSave       = "save"
	OpInsert     = "insert"
	OpFind       = "find"
	OpFindOne    = "find_one"
	OpCount      = "count"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpSoftDelete = "soft_delete"
	OpRestore    = "restore"
	OpIncrement  = "increment"
	OpAggregate  = "aggregate"
)

// FindOptions selects aggregates. Where entries are OR-combined.
type FindOptions struct {
	Where []driver.Filter
	Sort  []driver.Sort
	Skip  int
	Limit int

	// WithDeleted includes soft-deleted records.
	WithDeleted bool
}

// ──────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────

// Save upserts models by id and returns them as stored. Models without an
// id get a fresh one.
func (r *Repository[M]) Save(ctx context.Context, models ...M) ([]M, error) {
	if len(models) == 0 {
		return nil, nil
	}
	var out []M
	err := r.run(ctx, OpSave, func(ctx context.Context) error {
		docs, err := r.payloads(ctx, models)
		if err != nil {
			return err
		}
		stored, err := r.coll.Save(ctx, docs)
		if err != nil {
			return r.wrap(OpSave, err)
		}
		out = r.marsh.ToDomainAll(stored)
		r.exts.EmitRecordsCreated(ctx, r.mutation(ctx, OpSave, r.ids(stored), int64(len(stored))))
		return nil
	})
	return out, err
}

// Insert stores new models. Models without an id get a fresh one, visible
// on the model after the call.
func (r *Repository[M]) Insert(ctx context.Context, models ...M) error {
	if len(models) == 0 {
		return nil
	}
	return r.run(ctx, OpInsert, func(ctx context.Context) error {
		docs, err := r.payloads(ctx, models)
		if err != nil {
			return err
		}
		if err := r.coll.Insert(ctx, docs); err != nil {
			return r.wrap(OpInsert, err)
		}
		r.exts.EmitRecordsCreated(ctx, r.mutation(ctx, OpInsert, r.ids(docs), int64(len(docs))))
		return nil
	})
}

// Update applies the fields present on model to every record matching
// where and returns the number of records matched.
func (r *Repository[M]) Update(ctx context.Context, where driver.Filter, model M) (int64, error) {
	var n int64
	err := r.run(ctx, OpUpdate, func(ctx context.Context) error {
		set, err := r.updateDoc(ctx, model)
		if err != nil {
			return err
		}
		filters, err := r.filters(ctx, []driver.Filter{where}, true)
		if err != nil {
			return err
		}
		n, err = r.coll.Update(ctx, filters, set)
		if err != nil {
			return r.wrap(OpUpdate, err)
		}
		r.exts.EmitRecordsUpdated(ctx, r.mutation(ctx, OpUpdate, nil, n))
		return nil
	})
	return n, err
}

// Delete permanently removes every record matching where.
func (r *Repository[M]) Delete(ctx context.Context, where driver.Filter) (int64, error) {
	var n int64
	err := r.run(ctx, OpDelete, func(ctx context.Context) error {
		filters, err := r.filters(ctx, []driver.Filter{where}, true)
		if err != nil {
			return err
		}
		n, err = r.coll.Delete(ctx, filters)
		if err != nil {
			return r.wrap(OpDelete, err)
		}
		r.exts.EmitRecordsDeleted(ctx, r.mutation(ctx, OpDelete, nil, n))
		return nil
	})
	return n, err
}

// SoftDelete stamps deletedBy and deletedAt on every live record matching
// where.
func (r *Repository[M]) SoftDelete(ctx context.Context, where driver.Filter) (int64, error) {
	var n int64
	err := r.run(ctx, OpSoftDelete, func(ctx context.Context) error {
		w := withField(where, entity.FieldDeletedAt, nil)
		filters, err := r.filters(ctx, []driver.Filter{w}, true)
		if err != nil {
			return err
		}
		set := r.engine.Stamp(ctx, driver.Document{
			entity.FieldDeletedBy: r.layer.UserID(ctx),
			entity.FieldDeletedAt: r.layer.Now().UTC(),
		})
		n, err = r.coll.Update(ctx, filters, set)
		if err != nil {
			return r.wrap(OpSoftDelete, err)
		}
		r.exts.EmitRecordsSoftDeleted(ctx, r.mutation(ctx, OpSoftDelete, nil, n))
		return nil
	})
	return n, err
}

// Restore clears deletedBy and deletedAt on every soft-deleted record
// matching where.
func (r *Repository[M]) Restore(ctx context.Context, where driver.Filter) (int64, error) {
	var n int64
	err := r.run(ctx, OpRestore, func(ctx context.Context) error {
		w := withField(where, entity.FieldDeletedAt, operator.Not(operator.IsNull()))
		filters, err := r.filters(ctx, []driver.Filter{w}, true)
		if err != nil {
			return err
		}
		set := r.engine.Stamp(ctx, driver.Document{
			entity.FieldDeletedBy: nil,
			entity.FieldDeletedAt: nil,
			entity.FieldUpdatedBy: r.layer.UserID(ctx),
			entity.FieldUpdatedAt: r.layer.Now().UTC(),
		})
		n, err = r.coll.Update(ctx, filters, set)
		if err != nil {
			return r.wrap(OpRestore, err)
		}
		r.exts.EmitRecordsRestored(ctx, r.mutation(ctx, OpRestore, nil, n))
		return nil
	})
	return n, err
}

// Increment adds by to a numeric field on every live record matching where.
func (r *Repository[M]) Increment(ctx context.Context, where driver.Filter, field string, by float64) (int64, error) {
	var n int64
	err := r.run(ctx, OpIncrement, func(ctx context.Context) error {
		filters, err := r.filters(ctx, []driver.Filter{where}, false)
		if err != nil {
			return err
		}
		n, err = r.coll.Increment(ctx, filters, field, by, r.engine.Stamp(ctx, driver.Document{}))
		if err != nil {
			return r.wrap(OpIncrement, err)
		}
		r.exts.EmitRecordsUpdated(ctx, r.mutation(ctx, OpIncrement, nil, n))
		return nil
	})
	return n, err
}

// Decrement subtracts by from a numeric field on every live record matching
// where.
func (r *Repository[M]) Decrement(ctx context.Context, where driver.Filter, field string, by float64) (int64, error) {
	return r.Increment(ctx, where, field, -by)
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// Find returns every aggregate matching opts.
func (r *Repository[M]) Find(ctx context.Context, opts FindOptions) ([]M, error) {
	var out []M
	err := r.run(ctx, OpFind, func(ctx context.Context) error {
		docs, err := r.find(ctx, opts)
		if err != nil {
			return err
		}
		out = r.marsh.ToDomainAll(docs)
		return nil
	})
	return out, err
}

// FindBy returns every live aggregate matching where.
func (r *Repository[M]) FindBy(ctx context.Context, where driver.Filter) ([]M, error) {
	return r.Find(ctx, FindOptions{Where: []driver.Filter{where}})
}

// FindByIDs returns the live aggregates with the given ids.
func (r *Repository[M]) FindByIDs(ctx context.Context, ids ...string) ([]M, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.FindBy(ctx, driver.Filter{entity.FieldID: operator.In(ids...)})
}

// FindOne returns the first aggregate matching opts, or strata.ErrNotFound.
func (r *Repository[M]) FindOne(ctx context.Context, opts FindOptions) (M, error) {
	var out M
	err := r.run(ctx, OpFindOne, func(ctx context.Context) error {
		opts.Limit = 1
		docs, err := r.find(ctx, opts)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return strata.ErrNotFound
		}
		out = r.marsh.ToDomain(docs[0])
		return nil
	})
	return out, err
}

// FindOneBy returns the first live aggregate matching where, or
// strata.ErrNotFound.
func (r *Repository[M]) FindOneBy(ctx context.Context, where driver.Filter) (M, error) {
	return r.FindOne(ctx, FindOptions{Where: []driver.Filter{where}})
}

// FindByID returns the live aggregate with the given id, or
// strata.ErrNotFound.
func (r *Repository[M]) FindByID(ctx context.Context, id string) (M, error) {
	return r.FindOneBy(ctx, driver.Filter{entity.FieldID: id})
}

// FindAndCount returns the page selected by opts together with the total
// number of matches ignoring Skip and Limit.
func (r *Repository[M]) FindAndCount(ctx context.Context, opts FindOptions) ([]M, int64, error) {
	var (
		out   []M
		total int64
	)
	err := r.run(ctx, OpFind, func(ctx context.Context) error {
		docs, err := r.find(ctx, opts)
		if err != nil {
			return err
		}
		total, err = r.count(ctx, opts)
		if err != nil {
			return err
		}
		out = r.marsh.ToDomainAll(docs)
		return nil
	})
	return out, total, err
}

// Count returns the number of records matching opts. Skip and Limit are
// ignored.
func (r *Repository[M]) Count(ctx context.Context, opts FindOptions) (int64, error) {
	var n int64
	err := r.run(ctx, OpCount, func(ctx context.Context) error {
		var err error
		n, err = r.count(ctx, opts)
		return err
	})
	return n, err
}

// CountBy returns the number of live records matching where.
func (r *Repository[M]) CountBy(ctx context.Context, where driver.Filter) (int64, error) {
	return r.Count(ctx, FindOptions{Where: []driver.Filter{where}})
}

// Exists reports whether a live record matches where.
func (r *Repository[M]) Exists(ctx context.Context, where driver.Filter) (bool, error) {
	n, err := r.CountBy(ctx, where)
	return n > 0, err
}

// Sum returns the sum of field over live records matching where, or nil
// when none match.
func (r *Repository[M]) Sum(ctx context.Context, field string, where driver.Filter) (*float64, error) {
	return r.aggregate(ctx, driver.Sum, field, where)
}

// Average returns the mean of field over live records matching where.
func (r *Repository[M]) Average(ctx context.Context, field string, where driver.Filter) (*float64, error) {
	return r.aggregate(ctx, driver.Average, field, where)
}

// Minimum returns the smallest value of field over live records matching
// where.
func (r *Repository[M]) Minimum(ctx context.Context, field string, where driver.Filter) (*float64, error) {
	return r.aggregate(ctx, driver.Minimum, field, where)
}

// Maximum returns the largest value of field over live records matching
// where.
func (r *Repository[M]) Maximum(ctx context.Context, field string, where driver.Filter) (*float64, error) {
	return r.aggregate(ctx, driver.Maximum, field, where)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (r *Repository[M]) find(ctx context.Context, opts FindOptions) ([]driver.Document, error) {
	filters, err := r.filters(ctx, opts.Where, opts.WithDeleted)
	if err != nil {
		return nil, err
	}
	docs, err := r.coll.Find(ctx, driver.Query{
		Where: filters,
		Sort:  r.sort(opts.Sort),
		Skip:  opts.Skip,
		Limit: opts.Limit,
	})
	if err != nil {
		return nil, r.wrap(OpFind, err)
	}
	return docs, nil
}

func (r *Repository[M]) count(ctx context.Context, opts FindOptions) (int64, error) {
	filters, err := r.filters(ctx, opts.Where, opts.WithDeleted)
	if err != nil {
		return 0, err
	}
	n, err := r.coll.Count(ctx, driver.Query{Where: filters})
	if err != nil {
		return 0, r.wrap(OpCount, err)
	}
	return n, nil
}

func (r *Repository[M]) aggregate(ctx context.Context, fn driver.Aggregation, field string, where driver.Filter) (*float64, error) {
	var out *float64
	err := r.run(ctx, OpAggregate, func(ctx context.Context) error {
		filters, err := r.filters(ctx, []driver.Filter{where}, false)
		if err != nil {
			return err
		}
		out, err = r.coll.Aggregate(ctx, fn, field, filters)
		if err != nil {
			return r.wrap(OpAggregate+" "+string(fn), err)
		}
		return nil
	})
	return out, err
}

func (r *Repository[M]) payloads(ctx context.Context, models []M) ([]driver.Document, error) {
	docs := make([]driver.Document, len(models))
	for i, m := range models {
		doc, err := r.payload(ctx, m)
		if err != nil {
			return nil, err
		}
		docs[i] = doc
	}
	return docs, nil
}

// sort renames "id" to the native key.
func (r *Repository[M]) sort(in []driver.Sort) []driver.Sort {
	if len(in) == 0 {
		return nil
	}
	out := make([]driver.Sort, len(in))
	for i, s := range in {
		if s.Field == entity.FieldID {
			s.Field = r.drv.Codec().Key()
		}
		out[i] = s
	}
	return out
}

func withField(where driver.Filter, field string, v any) driver.Filter {
	out := maps.Clone(where)
	if out == nil {
		out = driver.Filter{}
	}
	out[field] = v
	return out
}
