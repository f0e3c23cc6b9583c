package aggregate

import (
	"context"
	"maps"

	"github.com/xraph/strata/entity"
)

// EventContext is the ambient context attached to domain events raised by an
// aggregate.
type EventContext struct {
	// PrimaryField is the field name of the first hierarchy level, empty in
	// regular mode.
	PrimaryField  string
	Tenant        map[string]string
	UserID        string
	Timestamp     string
	CorrelationID string
	Modifier      Access
}

// Primary returns the primary tenant id.
func (e EventContext) Primary() string { return e.Tenant[e.PrimaryField] }

// Map renders the context as an event payload keyed like
// {companyId, tenantContext, userId, timestamp, correlationId, modifier}.
func (e EventContext) Map() map[string]any {
	out := map[string]any{
		"tenantContext": maps.Clone(e.Tenant),
		"userId":        e.UserID,
		"timestamp":     e.Timestamp,
		"modifier":      int(e.Modifier),
	}
	if e.PrimaryField != "" {
		out[e.PrimaryField] = e.Primary()
	}
	if e.CorrelationID != "" {
		out["correlationId"] = e.CorrelationID
	}
	return out
}

// ContextExtender lets an aggregate add application data to its event
// context.
type ContextExtender interface {
	ExtendContext(EventContext) EventContext
}

// Context returns the event context of m, passing it through
// ExtendContext when m implements ContextExtender.
func Context(ctx context.Context, m Aggregate) EventContext {
	ec := m.Base().EventContext(ctx)
	if ext, ok := m.(ContextExtender); ok {
		ec = ext.ExtendContext(ec)
	}
	return ec
}

// EventContext builds the event context from ctx. Missing tenant values fall
// back to the system identity.
func (r *Root) EventContext(ctx context.Context) EventContext {
	cfg := r.layer.Config()
	ec := EventContext{
		Tenant:    make(map[string]string, len(cfg.Levels())),
		UserID:    r.layer.UserID(ctx),
		Timestamp: FormatTime(r.layer.Now()),
		Modifier:  r.access,
	}
	for _, level := range cfg.Levels() {
		if v, ok := r.layer.TenantValue(ctx, level); ok {
			ec.Tenant[level.FieldName] = v
		} else {
			ec.Tenant[level.FieldName] = r.layer.SystemID()
		}
	}
	if primary, ok := cfg.PrimaryLevel(); ok {
		ec.PrimaryField = primary.FieldName
	}
	ec.CorrelationID, _ = r.layer.CorrelationID(ctx)
	return ec
}

// SynchronizeContext fills unset audit fields and overwrites tenant fields
// from an event context, e.g. when rebuilding an aggregate from an event.
func (r *Root) SynchronizeContext(ec EventContext) {
	user := ec.UserID
	if user == "" {
		user = r.layer.SystemID()
	}
	ts := ec.Timestamp
	if ts == "" {
		ts = FormatTime(r.layer.Now())
	}

	for field, v := range map[string]string{
		entity.FieldCreatedBy: user,
		entity.FieldCreatedAt: ts,
		entity.FieldUpdatedBy: user,
		entity.FieldUpdatedAt: ts,
	} {
		if r.String(field) == "" {
			r.values[field] = v
		}
	}

	for field, v := range ec.Tenant {
		if v == "" {
			v = r.layer.SystemID()
		}
		r.schema[field] = Identifier
		r.values[field] = v
	}
}

// Synchronize applies an event: the aggregate id, the payload properties and
// the event context. Payload keys outside the schema are ignored.
func (r *Root) Synchronize(aggregateID string, payload map[string]any, ec EventContext) {
	r.SetID(aggregateID)
	for k, v := range payload {
		if _, declared := r.schema[k]; declared {
			r.values[k] = v
		}
	}
	r.SynchronizeContext(ec)
}
