package bunstore

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"

	"github.com/uptrace/bun"

	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/store/internal/sqlwhere"
)

// table is a driver.Collection over one table, built with bun queries.
type table struct {
	store *Store
	name  string
}

func (t *table) Name() string { return t.name }

func (t *table) ident() bun.Ident { return bun.Ident(t.name) }

func (t *table) Insert(ctx context.Context, docs []driver.Document) error {
	if len(docs) == 0 {
		return nil
	}
	err := t.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, doc := range docs {
			row := doc
			if _, err := tx.NewInsert().Model(&row).TableExpr("?", t.ident()).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return t.wrap("insert", err)
	}
	return nil
}

// Save upserts docs on the identifier column and reads each row back.
func (t *table) Save(ctx context.Context, docs []driver.Document) ([]driver.Document, error) {
	out := make([]driver.Document, 0, len(docs))
	if len(docs) == 0 {
		return out, nil
	}
	key := t.store.codec.Key()
	err := t.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, doc := range docs {
			row := doc
			q := tx.NewInsert().Model(&row).TableExpr("?", t.ident()).
				On("CONFLICT (?) DO UPDATE", bun.Ident(key))
			for _, c := range slices.Sorted(maps.Keys(doc)) {
				if c != key {
					q = q.Set("? = EXCLUDED.?", bun.Ident(c), bun.Ident(c))
				}
			}
			if len(doc) == 1 {
				q = q.Set("? = EXCLUDED.?", bun.Ident(key), bun.Ident(key))
			}
			if _, err := q.Exec(ctx); err != nil {
				return err
			}

			var stored []map[string]any
			err := tx.NewSelect().TableExpr("?", t.ident()).
				Where("? = ?", bun.Ident(key), doc[key]).
				Scan(ctx, &stored)
			if err != nil {
				return err
			}
			if len(stored) != 1 {
				return fmt.Errorf("read back %v: %d rows", doc[key], len(stored))
			}
			out = append(out, normalize(stored[0]))
		}
		return nil
	})
	if err != nil {
		return nil, t.wrap("save", err)
	}
	return out, nil
}

// where compiles filters for a bun query. An empty result means no filter.
func (t *table) where(wheres []driver.Filter) (string, []any, error) {
	b := sqlwhere.New(sqlwhere.Bun)
	clause, err := b.Where(wheres)
	return clause, b.Args(), err
}

func (t *table) selectQuery(wheres []driver.Filter) (*bun.SelectQuery, error) {
	clause, args, err := t.where(wheres)
	if err != nil {
		return nil, err
	}
	q := t.store.db.NewSelect().TableExpr("?", t.ident())
	if clause != "" {
		q = q.Where(clause, args...)
	}
	return q, nil
}

func (t *table) Find(ctx context.Context, query driver.Query) ([]driver.Document, error) {
	q, err := t.selectQuery(query.Where)
	if err != nil {
		return nil, t.wrap("find", err)
	}
	for _, s := range query.Sort {
		if s.Desc {
			q = q.OrderExpr("? DESC", bun.Ident(s.Field))
		} else {
			q = q.OrderExpr("? ASC", bun.Ident(s.Field))
		}
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	if query.Skip > 0 {
		q = q.Offset(query.Skip)
	}

	var rows []map[string]any
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, t.wrap("find", err)
	}
	docs := make([]driver.Document, len(rows))
	for i, r := range rows {
		docs[i] = normalize(r)
	}
	return docs, nil
}

func (t *table) Count(ctx context.Context, query driver.Query) (int64, error) {
	q, err := t.selectQuery(query.Where)
	if err != nil {
		return 0, t.wrap("count", err)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, t.wrap("count", err)
	}
	return int64(n), nil
}

func (t *table) Update(ctx context.Context, where []driver.Filter, set driver.Document) (int64, error) {
	if len(set) == 0 {
		return t.Count(ctx, driver.Query{Where: where})
	}
	return t.update(ctx, "update", where, "", 0, set)
}

func (t *table) Increment(ctx context.Context, where []driver.Filter, field string, by float64, set driver.Document) (int64, error) {
	return t.update(ctx, "increment", where, field, by, set)
}

func (t *table) update(ctx context.Context, op string, where []driver.Filter, incField string, by float64, set driver.Document) (int64, error) {
	clause, args, err := t.where(where)
	if err != nil {
		return 0, t.wrap(op, err)
	}
	q := t.store.db.NewUpdate().TableExpr("?", t.ident())
	if incField != "" {
		col := bun.Ident(incField)
		q = q.Set("? = COALESCE(?, 0) + ?", col, col, by)
	}
	for _, k := range slices.Sorted(maps.Keys(set)) {
		q = q.Set("? = ?", bun.Ident(k), set[k])
	}
	q = q.Where(orTrue(clause), args...)

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, t.wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, t.wrap(op, err)
	}
	return n, nil
}

func (t *table) Delete(ctx context.Context, where []driver.Filter) (int64, error) {
	clause, args, err := t.where(where)
	if err != nil {
		return 0, t.wrap("delete", err)
	}
	res, err := t.store.db.NewDelete().TableExpr("?", t.ident()).Where(orTrue(clause), args...).Exec(ctx)
	if err != nil {
		return 0, t.wrap("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, t.wrap("delete", err)
	}
	return n, nil
}

func (t *table) Aggregate(ctx context.Context, fn driver.Aggregation, field string, where []driver.Filter) (*float64, error) {
	var agg string
	switch fn {
	case driver.Sum:
		agg = "SUM"
	case driver.Average:
		agg = "AVG"
	case driver.Minimum:
		agg = "MIN"
	case driver.Maximum:
		agg = "MAX"
	default:
		return nil, fmt.Errorf("strata/bun: aggregate %s: unknown function %q", t.name, fn)
	}

	q, err := t.selectQuery(where)
	if err != nil {
		return nil, t.wrap("aggregate", err)
	}
	var v sql.NullFloat64
	err = q.ColumnExpr("CAST("+agg+"(?) AS DOUBLE PRECISION)", bun.Ident(field)).Scan(ctx, &v)
	if err != nil {
		return nil, t.wrap("aggregate", err)
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.Float64, nil
}

func (t *table) wrap(op string, err error) error {
	if isDuplicateKey(err) {
		return fmt.Errorf("strata/bun: %s %s: %w: %w", op, t.name, driver.ErrDuplicateKey, err)
	}
	if isUndefinedTable(err) {
		t.store.logger.Warn("table does not exist", "table", t.name, "op", op)
		return fmt.Errorf("strata/bun: %s %s: %w: %w", op, t.name, driver.ErrNoCollection, err)
	}
	return fmt.Errorf("strata/bun: %s %s: %w", op, t.name, err)
}

// orTrue keeps bun's guard against unfiltered UPDATE and DELETE satisfied
// when the caller asked for every row.
func orTrue(clause string) string {
	if clause == "" {
		return "TRUE"
	}
	return clause
}

// normalize converts raw driver values to strings where pgdriver hands
// back bytes.
func normalize(row map[string]any) driver.Document {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row
}
