// Package postgres implements a relational storage backend on pgx/v5 with
// raw SQL. Where-objects and operator trees are compiled to parameterized
// predicates; rows are read back as column maps. Tables belong to the
// application schema; a missing table surfaces as driver.ErrNoCollection.
package postgres
