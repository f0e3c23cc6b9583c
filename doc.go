// Package strata provides a tenant-scoped, backend-agnostic persistence
// layer for Go. Application code works with domain aggregates; strata scopes
// every read and write to the caller's tenant hierarchy, marshals between
// domain and storage shapes, translates operator trees into the native filter
// dialect of the active backend, and routes per-tenant data into dynamically
// created collections on document stores.
//
// Strata is a library, not a service. Build one Layer at startup and hand it
// to every repository:
//
//	layer, err := strata.New(
//	    strata.WithConfig(cfg),
//	    strata.WithResolver(scope.NewResolver()),
//	)
//
//	drv, err := mongo.New(ctx, uri, "app")
//	orders, err := repository.New(layer, drv, orderEntity, orderSchema, NewOrder)
//
// Entities partitioned per tenant go through a router:
//
//	base, err := repository.New(layer, drv, txnEntity, txnSchema, NewTxn)
//	router, err := dynamic.NewRouter(base)
//	txns := dynamic.NewRepository(router)
//
// # Architecture
//
// Each concern lives in its own package, leaves first:
//
//   - scope: ambient request values (tenant ids, user id, correlation id)
//   - contextualize: tenant and audit field injection on writes and reads
//   - marshal: domain aggregate to storage document conversion
//   - operator: relational-style operators and document filter translation
//   - dynamic: per-tenant collection routing with single-flight readiness
//   - repository: the CRUD facade application code calls
//
// Supporting packages:
//
//   - aggregate, entity, id: domain roots, entity metadata, identifier codecs
//   - driver, store: the storage contract and the backends under store/
//     (memory, mongo, postgres, bun)
//   - middleware: logging, recover, tracing, metrics and per-tenant limits
//     around every repository operation
//   - ext: lifecycle hooks, with observability (OpenTelemetry metrics),
//     audit_hook (audit trail) and stream (in-process change feed)
//   - backoff: retry delays for collection provisioning
package strata
