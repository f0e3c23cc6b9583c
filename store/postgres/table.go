package postgres

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/store/internal/sqlwhere"
)

// table is a driver.Collection over one PostgreSQL table.
type table struct {
	store *Store
	name  string
}

func (t *table) Name() string { return t.name }

// Insert writes docs in one transaction. A unique violation fails the whole
// batch with driver.ErrDuplicateKey.
func (t *table) Insert(ctx context.Context, docs []driver.Document) error {
	if len(docs) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, t.store.pool, func(tx pgx.Tx) error {
		for _, doc := range docs {
			sql, args := t.insertSQL(doc, "")
			if _, err := tx.Exec(ctx, sql, args...); err != nil {
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

// Save upserts docs on the identifier column and returns the stored rows.
func (t *table) Save(ctx context.Context, docs []driver.Document) ([]driver.Document, error) {
	out := make([]driver.Document, 0, len(docs))
	if len(docs) == 0 {
		return out, nil
	}
	key := t.store.codec.Key()
	err := pgx.BeginFunc(ctx, t.store.pool, func(tx pgx.Tx) error {
		for _, doc := range docs {
			sql, args := t.insertSQL(doc, key)
			rows, err := tx.Query(ctx, sql+" RETURNING *", args...)
			if err != nil {
				return err
			}
			row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
			if err != nil {
				return err
			}
			out = append(out, normalize(row))
		}
		return nil
	})
	if err != nil {
		return nil, t.wrap("save", err)
	}
	return out, nil
}

// insertSQL renders an INSERT for doc. A non-empty conflict key turns it
// into an upsert on that column.
func (t *table) insertSQL(doc driver.Document, conflict string) (string, []any) {
	cols := slices.Sorted(maps.Keys(doc))
	b := sqlwhere.New(sqlwhere.Postgres)
	quoted := make([]string, len(cols))
	values := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = sqlwhere.Quote(c)
		values[i] = b.Arg(doc[c])
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)",
		sqlwhere.Quote(t.name), strings.Join(quoted, ", "), strings.Join(values, ", "))

	if conflict != "" {
		key := sqlwhere.Quote(conflict)
		var sets []string
		for _, q := range quoted {
			if q != key {
				sets = append(sets, q+" = EXCLUDED."+q)
			}
		}
		if len(sets) == 0 {
			// Keeps RETURNING populated when only the key is written.
			sets = append(sets, key+" = EXCLUDED."+key)
		}
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s", key, strings.Join(sets, ", "))
	}
	return sb.String(), b.Args()
}

func (t *table) Find(ctx context.Context, q driver.Query) ([]driver.Document, error) {
	b := sqlwhere.New(sqlwhere.Postgres)
	where, err := b.Where(q.Where)
	if err != nil {
		return nil, t.wrap("find", err)
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM " + sqlwhere.Quote(t.name))
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}
	if len(q.Sort) > 0 {
		sb.WriteString(" ORDER BY " + sqlwhere.OrderBy(q.Sort))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(q.Skip))
	}

	rows, err := t.store.pool.Query(ctx, sb.String(), b.Args()...)
	if err != nil {
		return nil, t.wrap("find", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, t.wrap("find", err)
	}
	for i, d := range docs {
		docs[i] = normalize(d)
	}
	return docs, nil
}

func (t *table) Count(ctx context.Context, q driver.Query) (int64, error) {
	b := sqlwhere.New(sqlwhere.Postgres)
	where, err := b.Where(q.Where)
	if err != nil {
		return 0, t.wrap("count", err)
	}
	sql := "SELECT COUNT(*) FROM " + sqlwhere.Quote(t.name)
	if where != "" {
		sql += " WHERE " + where
	}
	var n int64
	if err := t.store.pool.QueryRow(ctx, sql, b.Args()...).Scan(&n); err != nil {
		return 0, t.wrap("count", err)
	}
	return n, nil
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
	b := sqlwhere.New(sqlwhere.Postgres)
	var sets []string
	if incField != "" {
		col := sqlwhere.Quote(incField)
		sets = append(sets, fmt.Sprintf("%s = COALESCE(%s, 0) + %s", col, col, b.Arg(by)))
	}
	for _, k := range slices.Sorted(maps.Keys(set)) {
		sets = append(sets, sqlwhere.Quote(k)+" = "+b.Arg(set[k]))
	}

	clause, err := b.Where(where)
	if err != nil {
		return 0, t.wrap(op, err)
	}
	sql := "UPDATE " + sqlwhere.Quote(t.name) + " SET " + strings.Join(sets, ", ")
	if clause != "" {
		sql += " WHERE " + clause
	}
	tag, err := t.store.pool.Exec(ctx, sql, b.Args()...)
	if err != nil {
		return 0, t.wrap(op, err)
	}
	return tag.RowsAffected(), nil
}

func (t *table) Delete(ctx context.Context, where []driver.Filter) (int64, error) {
	b := sqlwhere.New(sqlwhere.Postgres)
	clause, err := b.Where(where)
	if err != nil {
		return 0, t.wrap("delete", err)
	}
	sql := "DELETE FROM " + sqlwhere.Quote(t.name)
	if clause != "" {
		sql += " WHERE " + clause
	}
	tag, err := t.store.pool.Exec(ctx, sql, b.Args()...)
	if err != nil {
		return 0, t.wrap("delete", err)
	}
	return tag.RowsAffected(), nil
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
		return nil, fmt.Errorf("strata/postgres: aggregate %s: unknown function %q", t.name, fn)
	}

	b := sqlwhere.New(sqlwhere.Postgres)
	clause, err := b.Where(where)
	if err != nil {
		return nil, t.wrap("aggregate", err)
	}
	sql := fmt.Sprintf("SELECT CAST(%s(%s) AS DOUBLE PRECISION) FROM %s", agg, sqlwhere.Quote(field), sqlwhere.Quote(t.name))
	if clause != "" {
		sql += " WHERE " + clause
	}

	var v *float64
	if err := t.store.pool.QueryRow(ctx, sql, b.Args()...).Scan(&v); err != nil {
		return nil, t.wrap("aggregate", err)
	}
	return v, nil
}

func (t *table) wrap(op string, err error) error {
	if isDuplicateKey(err) {
		return fmt.Errorf("strata/postgres: %s %s: %w: %w", op, t.name, driver.ErrDuplicateKey, err)
	}
	if isUndefinedTable(err) {
		t.store.logger.Warn("table does not exist", "table", t.name, "op", op)
		return fmt.Errorf("strata/postgres: %s %s: %w: %w", op, t.name, driver.ErrNoCollection, err)
	}
	return fmt.Errorf("strata/postgres: %s %s: %w", op, t.name, err)
}

// normalize converts pgx column values to the plain forms the marshaller
// expects: uuid columns become strings and numerics become float64.
func normalize(row map[string]any) driver.Document {
	for k, v := range row {
		switch t := v.(type) {
		case [16]byte:
			row[k] = uuid.UUID(t).String()
		case pgtype.Numeric:
			if f, err := t.Float64Value(); err == nil && f.Valid {
				row[k] = f.Float64
			} else {
				row[k] = nil
			}
		}
	}
	return row
}
