// Package mongo implements a document storage backend on the official
// MongoDB Go driver (v2). Filters arrive already translated to the
// document dialect. Collections are created and indexed at runtime, which
// makes this the backend for per-tenant dynamic collections.
//
// Identifiers are stored as ObjectIDs under "_id" and surface as hex
// strings:
//
//	import (
//	    "go.mongodb.org/mongo-driver/v2/mongo"
//	    strmongo "github.com/xraph/strata/store/mongo"
//	)
//
//	client, _ := mongo.Connect(options.Client().ApplyURI(uri))
//	store := strmongo.NewFromDatabase(client.Database("app"))
//
// Applications that already manage connections through grove pass the
// *grove.DB instead; the store unwraps it to the native driver:
//
//	db, _ := grove.Open(ctx, "mongo", dsn)
//	store, err := strmongo.NewFromGrove(db)
package mongo
