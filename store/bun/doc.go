// Package bunstore implements a relational storage backend on the Bun ORM
// with the PostgreSQL dialect. Suitable for teams already using Bun.
//
// The caller owns the *bun.DB lifecycle; bunstore never closes it. Pass the
// db handle through the constructor:
//
//	import (
//	    "github.com/uptrace/bun"
//	    "github.com/uptrace/bun/dialect/pgdialect"
//	    "github.com/uptrace/bun/driver/pgdriver"
//	    bunstore "github.com/xraph/strata/store/bun"
//	)
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(...))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	store := bunstore.New(db)
//
// Tables belong to the application schema and must exist before use; a
// missing table surfaces as driver.ErrNoCollection.
package bunstore
