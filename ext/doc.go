// Package ext defines the extension system for strata.
//
// Extensions are notified of persistence lifecycle events and can react to
// them: recording metrics, writing audit trails, invalidating caches, etc.
// Each lifecycle hook is a separate interface so extensions opt in only to
// the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnRecordsCreated(ctx context.Context, m ext.Mutation) error {
//	    log.Printf("%d %s records created", m.Affected, m.Entity)
//	    return nil
//	}
//
// # Record Hooks
//
//   - [RecordsCreated] records were saved or inserted
//   - [RecordsUpdated] records were updated or incremented
//   - [RecordsDeleted] records were permanently deleted
//   - [RecordsSoftDeleted] records were marked deleted
//   - [RecordsRestored] soft-deleted records were restored
//   - [OperationFailed] a repository operation returned an error
//
// # Collection Hooks
//
//   - [CollectionReady] a per-tenant collection finished provisioning
//   - [CollectionDestroyed] a per-tenant collection was dropped
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
