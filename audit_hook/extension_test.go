package audithook_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/strata"
	"github.com/xraph/strata/aggregate"
	ah "github.com/xraph/strata/audit_hook"
	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/ext"
	"github.com/xraph/strata/operator"
	"github.com/xraph/strata/repository"
	"github.com/xraph/strata/scope"
	"github.com/xraph/strata/store/memory"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

// ── Test helpers ─────────────────────────────────────

func newTestMutation(op string) ext.Mutation {
	return ext.Mutation{
		Op:         op,
		Entity:     "orders",
		Collection: "orders",
		Tenant:     "acme",
		UserID:     "u1",
		IDs:        []string{"o1", "o2"},
		Affected:   2,
	}
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	if e.Name() != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", e.Name())
	}
}

// ── Record lifecycle tests ───────────────────────────

func TestExtension_RecordsCreated(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnRecordsCreated(context.Background(), newTestMutation("save")); err != nil {
		t.Fatalf("OnRecordsCreated: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionRecordsCreated {
		t.Errorf("Action: want %q, got %q", ah.ActionRecordsCreated, evt.Action)
	}
	if evt.Resource != "orders" {
		t.Errorf("Resource: want %q, got %q", "orders", evt.Resource)
	}
	if evt.Category != ah.CategoryRecord {
		t.Errorf("Category: want %q, got %q", ah.CategoryRecord, evt.Category)
	}
	if evt.ResourceID != "o1,o2" {
		t.Errorf("ResourceID: want %q, got %q", "o1,o2", evt.ResourceID)
	}
	if evt.Tenant != "acme" || evt.Actor != "u1" {
		t.Errorf("Tenant/Actor: got %q/%q", evt.Tenant, evt.Actor)
	}
	if evt.Severity != ah.SeverityInfo {
		t.Errorf("Severity: want %q, got %q", ah.SeverityInfo, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeSuccess {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeSuccess, evt.Outcome)
	}
	if evt.Metadata["op"] != "save" {
		t.Errorf("Metadata[op]: want %q, got %v", "save", evt.Metadata["op"])
	}
	if evt.Metadata["affected"] != int64(2) {
		t.Errorf("Metadata[affected]: want 2, got %v", evt.Metadata["affected"])
	}
}

func TestExtension_RecordsDeleted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	m := newTestMutation("delete")
	m.IDs = nil
	if err := e.OnRecordsDeleted(context.Background(), m); err != nil {
		t.Fatalf("OnRecordsDeleted: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionRecordsDeleted {
		t.Errorf("Action: want %q, got %q", ah.ActionRecordsDeleted, evt.Action)
	}
	if evt.Severity != ah.SeverityWarning {
		t.Errorf("Severity: want %q, got %q", ah.SeverityWarning, evt.Severity)
	}
	if evt.ResourceID != "" {
		t.Errorf("ResourceID: want empty, got %q", evt.ResourceID)
	}
	if _, ok := evt.Metadata["ids"]; ok {
		t.Error("Metadata[ids] should be absent when no ids are known")
	}
}

func TestExtension_OperationFailed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	opErr := errors.New("connection reset")
	if err := e.OnOperationFailed(context.Background(), "update", "orders", opErr); err != nil {
		t.Fatalf("OnOperationFailed: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionOperationFailed {
		t.Errorf("Action: want %q, got %q", ah.ActionOperationFailed, evt.Action)
	}
	if evt.Severity != ah.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", ah.SeverityCritical, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeFailure {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeFailure, evt.Outcome)
	}
	if evt.Reason != "connection reset" {
		t.Errorf("Reason: want %q, got %q", "connection reset", evt.Reason)
	}
	if evt.Metadata["op"] != "update" {
		t.Errorf("Metadata[op]: want %q, got %v", "update", evt.Metadata["op"])
	}
}

// ── Collection lifecycle tests ───────────────────────

func TestExtension_CollectionReady(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	c := ext.Collection{Entity: "transactions", TenantID: "c1", Name: "txns_c1"}
	if err := e.OnCollectionReady(context.Background(), c, 250*time.Millisecond); err != nil {
		t.Fatalf("OnCollectionReady: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionCollectionReady {
		t.Errorf("Action: want %q, got %q", ah.ActionCollectionReady, evt.Action)
	}
	if evt.Resource != ah.ResourceCollection {
		t.Errorf("Resource: want %q, got %q", ah.ResourceCollection, evt.Resource)
	}
	if evt.ResourceID != "txns_c1" || evt.Tenant != "c1" {
		t.Errorf("ResourceID/Tenant: got %q/%q", evt.ResourceID, evt.Tenant)
	}
	if evt.Metadata["elapsed_ms"] != int64(250) {
		t.Errorf("Metadata[elapsed_ms]: want 250, got %v", evt.Metadata["elapsed_ms"])
	}
}

func TestExtension_CollectionDestroyed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	c := ext.Collection{Entity: "transactions", TenantID: "c1", Name: "txns_c1"}
	if err := e.OnCollectionDestroyed(context.Background(), c); err != nil {
		t.Fatalf("OnCollectionDestroyed: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionCollectionDestroyed {
		t.Errorf("Action: want %q, got %q", ah.ActionCollectionDestroyed, evt.Action)
	}
	if evt.Severity != ah.SeverityWarning {
		t.Errorf("Severity: want %q, got %q", ah.SeverityWarning, evt.Severity)
	}
	if evt.Metadata["entity"] != "transactions" {
		t.Errorf("Metadata[entity]: want %q, got %v", "transactions", evt.Metadata["entity"])
	}
}

// ── WithActions filter tests ─────────────────────────

func TestExtension_WithActions_FiltersDisabled(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionRecordsDeleted, ah.ActionOperationFailed))
	ctx := context.Background()

	if err := e.OnRecordsCreated(ctx, newTestMutation("save")); err != nil {
		t.Fatalf("OnRecordsCreated: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 events (created disabled), got %d", rec.count())
	}

	if err := e.OnRecordsDeleted(ctx, newTestMutation("delete")); err != nil {
		t.Fatalf("OnRecordsDeleted: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 event (deleted enabled), got %d", rec.count())
	}

	if err := e.OnOperationFailed(ctx, "find", "orders", errors.New("boom")); err != nil {
		t.Fatalf("OnOperationFailed: %v", err)
	}
	if rec.count() != 2 {
		t.Errorf("expected 2 events, got %d", rec.count())
	}
}

// ── RecorderFunc adapter test ────────────────────────

func TestRecorderFunc(t *testing.T) {
	var captured *ah.AuditEvent
	fn := ah.RecorderFunc(func(_ context.Context, evt *ah.AuditEvent) error {
		captured = evt
		return nil
	})

	e := ah.New(fn)
	if err := e.OnRecordsRestored(context.Background(), newTestMutation("restore")); err != nil {
		t.Fatalf("OnRecordsRestored: %v", err)
	}
	if captured == nil {
		t.Fatal("RecorderFunc was not called")
	}
	if captured.Action != ah.ActionRecordsRestored {
		t.Errorf("Action: want %q, got %q", ah.ActionRecordsRestored, captured.Action)
	}
}

// ── Recorder error handling test ─────────────────────

func TestExtension_RecorderError_DoesNotPropagate(t *testing.T) {
	failingRecorder := ah.RecorderFunc(func(_ context.Context, _ *ah.AuditEvent) error {
		return errors.New("audit backend down")
	})

	e := ah.New(failingRecorder)
	if err := e.OnRecordsCreated(context.Background(), newTestMutation("save")); err != nil {
		t.Fatalf("expected no error (audit failure swallowed), got: %v", err)
	}
}

// ── Registry integration test ────────────────────────

func TestExtension_ViaRegistry(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	c := ext.Collection{Entity: "transactions", TenantID: "c1", Name: "txns_c1"}

	reg.EmitRecordsCreated(ctx, newTestMutation("save"))
	reg.EmitRecordsUpdated(ctx, newTestMutation("update"))
	reg.EmitRecordsDeleted(ctx, newTestMutation("delete"))
	reg.EmitRecordsSoftDeleted(ctx, newTestMutation("soft_delete"))
	reg.EmitRecordsRestored(ctx, newTestMutation("restore"))
	reg.EmitOperationFailed(ctx, "find", "orders", errors.New("fail"))
	reg.EmitCollectionReady(ctx, c, time.Millisecond)
	reg.EmitCollectionDestroyed(ctx, c)

	allActions := ah.AllActions()
	if rec.count() != len(allActions) {
		t.Fatalf("expected %d events, got %d", len(allActions), rec.count())
	}
	for _, action := range allActions {
		if rec.findByAction(action) == nil {
			t.Errorf("missing event for action %q", action)
		}
	}
}

// ── Repository integration test ──────────────────────

type order struct{ *aggregate.Root }

func TestExtension_RecordsRepositoryWrites(t *testing.T) {
	cfg := strata.DefaultConfig()
	cfg.Tenancy.Mode = strata.ModeSingleLevel
	cfg.Tenancy.Levels = []strata.HierarchyLevel{{FieldName: "companyId", Header: "x-company-id"}}
	layer, err := strata.New(strata.WithConfig(cfg), strata.WithResolver(scope.NewResolver()))
	if err != nil {
		t.Fatalf("strata.New: %v", err)
	}

	rec := &mockRecorder{}
	reg := ext.NewRegistry(slog.Default())
	reg.Register(ah.New(rec))

	desc := &entity.Descriptor{Name: "orders", TenantAware: true, SoftDelete: true}
	repo, err := repository.New(layer, memory.New(), desc,
		aggregate.Schema{"amount": aggregate.Plain},
		func(r *aggregate.Root) *order { return &order{Root: r} },
		repository.WithExtensions(reg),
	)
	if err != nil {
		t.Fatalf("repository.New: %v", err)
	}

	ctx := scope.WithValues(context.Background(), scope.Values{"x-company-id": "acme", "x-user-id": "u7"})
	o := repo.New(ctx, aggregate.Create)
	o.Set("amount", 10)
	saved, err := repo.Save(ctx, o)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := repo.SoftDelete(ctx, map[string]any{"id": saved[0].ID()}); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := repo.Update(ctx, map[string]any{"amount": operator.MoreThan(100)}, o); err != nil {
		t.Fatalf("Update: %v", err)
	}

	created := rec.findByAction(ah.ActionRecordsCreated)
	if created == nil {
		t.Fatal("no created event")
	}
	if created.Tenant != "acme" || created.Actor != "u7" {
		t.Errorf("created Tenant/Actor: got %q/%q", created.Tenant, created.Actor)
	}
	if created.ResourceID != saved[0].ID() {
		t.Errorf("created ResourceID: want %q, got %q", saved[0].ID(), created.ResourceID)
	}

	soft := rec.findByAction(ah.ActionRecordsSoftDeleted)
	if soft == nil || soft.Metadata["affected"] != int64(1) {
		t.Errorf("soft delete event: %+v", soft)
	}
	updated := rec.findByAction(ah.ActionRecordsUpdated)
	if updated == nil || updated.Metadata["affected"] != int64(0) {
		t.Errorf("update event: %+v", updated)
	}
}
