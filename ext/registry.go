package ext

import (
	"context"
	"log/slog"
	"time"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type recordsCreatedEntry struct {
	name string
	hook RecordsCreated
}

type recordsUpdatedEntry struct {
	name string
	hook RecordsUpdated
}

type recordsDeletedEntry struct {
	name string
	hook RecordsDeleted
}

type recordsSoftDeletedEntry struct {
	name string
	hook RecordsSoftDeleted
}

type recordsRestoredEntry struct {
	name string
	hook RecordsRestored
}

type operationFailedEntry struct {
	name string
	hook OperationFailed
}

type collectionReadyEntry struct {
	name string
	hook CollectionReady
}

type collectionDestroyedEntry struct {
	name string
	hook CollectionDestroyed
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register extensions at startup; emitting is safe for concurrent use once
// registration is done.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	recordsCreated      []recordsCreatedEntry
	recordsUpdated      []recordsUpdatedEntry
	recordsDeleted      []recordsDeletedEntry
	recordsSoftDeleted  []recordsSoftDeletedEntry
	recordsRestored     []recordsRestoredEntry
	operationFailed     []operationFailedEntry
	collectionReady     []collectionReadyEntry
	collectionDestroyed []collectionDestroyedEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(RecordsCreated); ok {
		r.recordsCreated = append(r.recordsCreated, recordsCreatedEntry{name, h})
	}
	if h, ok := e.(RecordsUpdated); ok {
		r.recordsUpdated = append(r.recordsUpdated, recordsUpdatedEntry{name, h})
	}
	if h, ok := e.(RecordsDeleted); ok {
		r.recordsDeleted = append(r.recordsDeleted, recordsDeletedEntry{name, h})
	}
	if h, ok := e.(RecordsSoftDeleted); ok {
		r.recordsSoftDeleted = append(r.recordsSoftDeleted, recordsSoftDeletedEntry{name, h})
	}
	if h, ok := e.(RecordsRestored); ok {
		r.recordsRestored = append(r.recordsRestored, recordsRestoredEntry{name, h})
	}
	if h, ok := e.(OperationFailed); ok {
		r.operationFailed = append(r.operationFailed, operationFailedEntry{name, h})
	}
	if h, ok := e.(CollectionReady); ok {
		r.collectionReady = append(r.collectionReady, collectionReadyEntry{name, h})
	}
	if h, ok := e.(CollectionDestroyed); ok {
		r.collectionDestroyed = append(r.collectionDestroyed, collectionDestroyedEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Record event emitters
// ──────────────────────────────────────────────────

// EmitRecordsCreated notifies all extensions that implement RecordsCreated.
func (r *Registry) EmitRecordsCreated(ctx context.Context, m Mutation) {
	for _, e := range r.recordsCreated {
		if err := e.hook.OnRecordsCreated(ctx, m); err != nil {
			r.logHookError("OnRecordsCreated", e.name, err)
		}
	}
}

// EmitRecordsUpdated notifies all extensions that implement RecordsUpdated.
func (r *Registry) EmitRecordsUpdated(ctx context.Context, m Mutation) {
	for _, e := range r.recordsUpdated {
		if err := e.hook.OnRecordsUpdated(ctx, m); err != nil {
			r.logHookError("OnRecordsUpdated", e.name, err)
		}
	}
}

// EmitRecordsDeleted notifies all extensions that implement RecordsDeleted.
func (r *Registry) EmitRecordsDeleted(ctx context.Context, m Mutation) {
	for _, e := range r.recordsDeleted {
		if err := e.hook.OnRecordsDeleted(ctx, m); err != nil {
			r.logHookError("OnRecordsDeleted", e.name, err)
		}
	}
}

// EmitRecordsSoftDeleted notifies all extensions that implement RecordsSoftDeleted.
func (r *Registry) EmitRecordsSoftDeleted(ctx context.Context, m Mutation) {
	for _, e := range r.recordsSoftDeleted {
		if err := e.hook.OnRecordsSoftDeleted(ctx, m); err != nil {
			r.logHookError("OnRecordsSoftDeleted", e.name, err)
		}
	}
}

// EmitRecordsRestored notifies all extensions that implement RecordsRestored.
func (r *Registry) EmitRecordsRestored(ctx context.Context, m Mutation) {
	for _, e := range r.recordsRestored {
		if err := e.hook.OnRecordsRestored(ctx, m); err != nil {
			r.logHookError("OnRecordsRestored", e.name, err)
		}
	}
}

// EmitOperationFailed notifies all extensions that implement OperationFailed.
func (r *Registry) EmitOperationFailed(ctx context.Context, op, entity string, opErr error) {
	for _, e := range r.operationFailed {
		if err := e.hook.OnOperationFailed(ctx, op, entity, opErr); err != nil {
			r.logHookError("OnOperationFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Collection event emitters
// ──────────────────────────────────────────────────

// EmitCollectionReady notifies all extensions that implement CollectionReady.
func (r *Registry) EmitCollectionReady(ctx context.Context, c Collection, elapsed time.Duration) {
	for _, e := range r.collectionReady {
		if err := e.hook.OnCollectionReady(ctx, c, elapsed); err != nil {
			r.logHookError("OnCollectionReady", e.name, err)
		}
	}
}

// EmitCollectionDestroyed notifies all extensions that implement CollectionDestroyed.
func (r *Registry) EmitCollectionDestroyed(ctx context.Context, c Collection) {
	for _, e := range r.collectionDestroyed {
		if err := e.hook.OnCollectionDestroyed(ctx, c); err != nil {
			r.logHookError("OnCollectionDestroyed", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
