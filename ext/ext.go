package ext

import (
	"context"
	"time"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// Mutation describes a completed write.
type Mutation struct {
	// Op is the repository operation, e.g. "save" or "softDelete".
	Op         string
	Entity     string
	Collection string

	// Tenant is the ambient primary tenant, empty when absent.
	Tenant string
	UserID string

	// IDs lists the affected identifiers when they are known.
	IDs      []string
	Affected int64
}

// Collection identifies a per-tenant collection.
type Collection struct {
	Entity   string
	TenantID string
	Name     string
}

// ──────────────────────────────────────────────────
// Record hooks
// ──────────────────────────────────────────────────

// RecordsCreated is called after records are saved or inserted.
type RecordsCreated interface {
	OnRecordsCreated(ctx context.Context, m Mutation) error
}

// RecordsUpdated is called after records are updated or incremented.
type RecordsUpdated interface {
	OnRecordsUpdated(ctx context.Context, m Mutation) error
}

// RecordsDeleted is called after records are permanently deleted.
type RecordsDeleted interface {
	OnRecordsDeleted(ctx context.Context, m Mutation) error
}

// RecordsSoftDeleted is called after records are marked deleted.
type RecordsSoftDeleted interface {
	OnRecordsSoftDeleted(ctx context.Context, m Mutation) error
}

// RecordsRestored is called after soft-deleted records are restored.
type RecordsRestored interface {
	OnRecordsRestored(ctx context.Context, m Mutation) error
}

// OperationFailed is called when a repository operation fails. Not-found
// results are not failures.
type OperationFailed interface {
	OnOperationFailed(ctx context.Context, op, entity string, err error) error
}

// ──────────────────────────────────────────────────
// Collection hooks
// ──────────────────────────────────────────────────

// CollectionReady is called once a per-tenant collection is provisioned.
type CollectionReady interface {
	OnCollectionReady(ctx context.Context, c Collection, elapsed time.Duration) error
}

// CollectionDestroyed is called after a per-tenant collection is dropped
// and evicted from the caches.
type CollectionDestroyed interface {
	OnCollectionDestroyed(ctx context.Context, c Collection) error
}
