// Package stream is an in-process change feed for strata. The Broker is an
// ext.Extension: repositories and routers emit record and collection events
// to it, and it fans them out to subscribers by topic (tenant, entity,
// collection or everything).
//
//	broker := stream.NewBroker(logger)
//	exts := ext.NewRegistry(logger)
//	exts.Register(broker)
//	orders, _ := repository.New(layer, drv, orderEntity, orderSchema, NewOrder,
//	    repository.WithExtensions(exts))
//
//	sub := broker.Subscribe("billing", stream.TenantTopic("acme"))
//	for evt := range sub.C() { ... }
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of change.
type EventType string

const (
	// Record events.
	EventRecordsCreated     EventType = "records.created"
	EventRecordsUpdated     EventType = "records.updated"
	EventRecordsDeleted     EventType = "records.deleted"
	EventRecordsSoftDeleted EventType = "records.soft_deleted"
	EventRecordsRestored    EventType = "records.restored"

	// Collection events.
	EventCollectionReady     EventType = "collection.ready"
	EventCollectionDestroyed EventType = "collection.destroyed"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"ts"`

	// Tenant and Entity drive topic routing. Tenant is empty for writes
	// made without an ambient tenant.
	Tenant string `json:"tenant,omitempty"`
	Entity string `json:"entity"`

	// Data is a RecordEventData or CollectionEventData in JSON form.
	Data json.RawMessage `json:"data"`
}

// RecordEventData is the payload of record events.
type RecordEventData struct {
	Op         string   `json:"op"`
	Collection string   `json:"collection"`
	UserID     string   `json:"user_id,omitempty"`
	IDs        []string `json:"ids,omitempty"`
	Affected   int64    `json:"affected"`
}

// CollectionEventData is the payload of collection events.
type CollectionEventData struct {
	Collection string `json:"collection"`
	TenantID   string `json:"tenant_id"`
	ElapsedMs  int64  `json:"elapsed_ms,omitempty"`
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}
