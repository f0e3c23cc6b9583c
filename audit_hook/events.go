package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionRecordsCreated      = "records.created"
	ActionRecordsUpdated      = "records.updated"
	ActionRecordsDeleted      = "records.deleted"
	ActionRecordsSoftDeleted  = "records.soft_deleted"
	ActionRecordsRestored     = "records.restored"
	ActionOperationFailed     = "operation.failed"
	ActionCollectionReady     = "collection.ready"
	ActionCollectionDestroyed = "collection.destroyed"
)

// Audit event categories group related actions.
const (
	CategoryRecord     = "strata.record"
	CategoryCollection = "strata.collection"
)

// ResourceCollection is the Resource of collection events. Record events
// use the entity name.
const ResourceCollection = "collection"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionRecordsCreated,
		ActionRecordsUpdated,
		ActionRecordsDeleted,
		ActionRecordsSoftDeleted,
		ActionRecordsRestored,
		ActionOperationFailed,
		ActionCollectionReady,
		ActionCollectionDestroyed,
	}
}
