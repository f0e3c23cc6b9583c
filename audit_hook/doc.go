// Package audithook is a strata extension that bridges record and
// collection lifecycle events to an immutable audit trail backend.
//
// Every mutation hook emits a structured audit event through the
// [Recorder] interface, carrying the tenant, the acting user and the
// affected identifiers. Failed operations are recorded with critical
// severity.
//
// # Usage
//
//	reg := ext.NewRegistry(logger)
//	reg.Register(audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return trail.Append(ctx, evt)
//	})))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionRecordsDeleted,
//	        audithook.ActionCollectionDestroyed,
//	    ),
//	)
package audithook
