package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/strata/ext"
)

// Compile-time interface checks.
var (
	_ ext.Extension           = (*Extension)(nil)
	_ ext.RecordsCreated      = (*Extension)(nil)
	_ ext.RecordsUpdated      = (*Extension)(nil)
	_ ext.RecordsDeleted      = (*Extension)(nil)
	_ ext.RecordsSoftDeleted  = (*Extension)(nil)
	_ ext.RecordsRestored     = (*Extension)(nil)
	_ ext.OperationFailed     = (*Extension)(nil)
	_ ext.CollectionReady     = (*Extension)(nil)
	_ ext.CollectionDestroyed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a backend-neutral audit event. Callers provide a
// RecorderFunc adapter that bridges to their audit backend.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Who and where
	Tenant string `json:"tenant,omitempty"`
	Actor  string `json:"actor,omitempty"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges strata lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Record hooks ────────────────────────────────────

// OnRecordsCreated implements ext.RecordsCreated.
func (e *Extension) OnRecordsCreated(ctx context.Context, m ext.Mutation) error {
	return e.mutation(ctx, ActionRecordsCreated, SeverityInfo, m)
}

// OnRecordsUpdated implements ext.RecordsUpdated.
func (e *Extension) OnRecordsUpdated(ctx context.Context, m ext.Mutation) error {
	return e.mutation(ctx, ActionRecordsUpdated, SeverityInfo, m)
}

// OnRecordsDeleted implements ext.RecordsDeleted.
func (e *Extension) OnRecordsDeleted(ctx context.Context, m ext.Mutation) error {
	return e.mutation(ctx, ActionRecordsDeleted, SeverityWarning, m)
}

// OnRecordsSoftDeleted implements ext.RecordsSoftDeleted.
func (e *Extension) OnRecordsSoftDeleted(ctx context.Context, m ext.Mutation) error {
	return e.mutation(ctx, ActionRecordsSoftDeleted, SeverityInfo, m)
}

// OnRecordsRestored implements ext.RecordsRestored.
func (e *Extension) OnRecordsRestored(ctx context.Context, m ext.Mutation) error {
	return e.mutation(ctx, ActionRecordsRestored, SeverityInfo, m)
}

// OnOperationFailed implements ext.OperationFailed.
func (e *Extension) OnOperationFailed(ctx context.Context, op, entity string, opErr error) error {
	return e.record(ctx, &AuditEvent{
		Action:   ActionOperationFailed,
		Resource: entity,
		Category: CategoryRecord,
		Outcome:  OutcomeFailure,
		Severity: SeverityCritical,
	}, opErr, "op", op)
}

// ── Collection hooks ────────────────────────────────

// OnCollectionReady implements ext.CollectionReady.
func (e *Extension) OnCollectionReady(ctx context.Context, c ext.Collection, elapsed time.Duration) error {
	return e.record(ctx, &AuditEvent{
		Action:     ActionCollectionReady,
		Resource:   ResourceCollection,
		Category:   CategoryCollection,
		Tenant:     c.TenantID,
		ResourceID: c.Name,
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
	}, nil,
		"entity", c.Entity,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnCollectionDestroyed implements ext.CollectionDestroyed.
func (e *Extension) OnCollectionDestroyed(ctx context.Context, c ext.Collection) error {
	return e.record(ctx, &AuditEvent{
		Action:     ActionCollectionDestroyed,
		Resource:   ResourceCollection,
		Category:   CategoryCollection,
		Tenant:     c.TenantID,
		ResourceID: c.Name,
		Outcome:    OutcomeSuccess,
		Severity:   SeverityWarning,
	}, nil,
		"entity", c.Entity,
	)
}

// ── Internal helpers ────────────────────────────────

func (e *Extension) mutation(ctx context.Context, action, severity string, m ext.Mutation) error {
	kv := []any{
		"op", m.Op,
		"collection", m.Collection,
		"affected", m.Affected,
	}
	if len(m.IDs) > 0 {
		kv = append(kv, "ids", m.IDs)
	}
	return e.record(ctx, &AuditEvent{
		Action:     action,
		Resource:   m.Entity,
		Category:   CategoryRecord,
		Tenant:     m.Tenant,
		Actor:      m.UserID,
		ResourceID: strings.Join(m.IDs, ","),
		Outcome:    OutcomeSuccess,
		Severity:   severity,
	}, nil, kv...)
}

// record fills in metadata and sends evt if its action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(ctx context.Context, evt *AuditEvent, err error, kvPairs ...any) error {
	if e.enabled != nil && !e.enabled[evt.Action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}
	if err != nil {
		evt.Reason = err.Error()
		meta["error"] = err.Error()
	}
	evt.Metadata = meta

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", evt.Action,
			"resource_id", evt.ResourceID,
			"error", recErr,
		)
	}
	return nil
}
