package contextualize_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xraph/strata"
	"github.com/xraph/strata/contextualize"
	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/id"
	"github.com/xraph/strata/scope"
)

var orders = &entity.Descriptor{Name: "orders", TenantAware: true}

func newEngine(t *testing.T, mutate func(*strata.Config), opts ...strata.Option) *contextualize.Engine {
	t.Helper()
	cfg := strata.DefaultConfig()
	cfg.Tenancy.Mode = strata.ModeSingleLevel
	cfg.Tenancy.Levels = []strata.HierarchyLevel{{FieldName: "companyId", Header: "x-company-id"}}
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]strata.Option{strata.WithConfig(cfg), strata.WithResolver(scope.NewResolver())}, opts...)
	layer, err := strata.New(opts...)
	if err != nil {
		t.Fatalf("strata.New: %v", err)
	}
	return contextualize.New(layer, id.StringCodec{Field: "_id"})
}

func acme() context.Context {
	return scope.With(context.Background(), "x-company-id", "acme")
}

func TestApply_WriteUsesAmbientTenant(t *testing.T) {
	e := newEngine(t, nil)
	in := map[string]any{"id": "o1", "amount": 5}

	got, err := e.Apply(acme(), orders, in, contextualize.Write)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := map[string]any{"_id": "o1", "amount": 5, "companyId": "acme"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if _, ok := in["_id"]; ok {
		t.Error("input mutated")
	}
}

func TestApply_WriteWithoutAmbientUsesSystem(t *testing.T) {
	e := newEngine(t, nil)
	got, err := e.Apply(context.Background(), orders, map[string]any{"amount": 5}, contextualize.Write)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got["companyId"] != strata.DefaultSystemID {
		t.Errorf("companyId = %v, want system id", got["companyId"])
	}
}

func TestApply_WriteClaimsSystemOwnedRecord(t *testing.T) {
	e := newEngine(t, nil)
	got, _ := e.Apply(acme(), orders, map[string]any{"companyId": strata.DefaultSystemID}, contextualize.Write)
	if got["companyId"] != "acme" {
		t.Errorf("companyId = %v, want acme", got["companyId"])
	}
}

func TestApply_WriteConflictPolicies(t *testing.T) {
	doc := map[string]any{"companyId": "globex"}

	t.Run("keep", func(t *testing.T) {
		var buf bytes.Buffer
		e := newEngine(t, nil, strata.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
		got, err := e.Apply(acme(), orders, doc, contextualize.Write)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if got["companyId"] != "globex" {
			t.Errorf("companyId = %v, want globex", got["companyId"])
		}
		if !strings.Contains(buf.String(), "keeping existing tenant") {
			t.Errorf("expected a warning, log was %q", buf.String())
		}
	})

	t.Run("claim", func(t *testing.T) {
		e := newEngine(t, func(c *strata.Config) { c.Tenancy.OnConflict = strata.ConflictClaim })
		got, _ := e.Apply(acme(), orders, doc, contextualize.Write)
		if got["companyId"] != "acme" {
			t.Errorf("companyId = %v, want acme", got["companyId"])
		}
	})

	t.Run("reject", func(t *testing.T) {
		e := newEngine(t, func(c *strata.Config) { c.Tenancy.OnConflict = strata.ConflictReject })
		if _, err := e.Apply(acme(), orders, doc, contextualize.Write); !errors.Is(err, strata.ErrTenantConflict) {
			t.Errorf("expected ErrTenantConflict, got %v", err)
		}
	})
}

func TestApply_ReadNarrowsToAmbient(t *testing.T) {
	e := newEngine(t, nil)

	got, _ := e.Apply(acme(), orders, map[string]any{"companyId": "globex", "status": "open"}, contextualize.Read)
	if got["companyId"] != "acme" {
		t.Errorf("companyId = %v, want acme", got["companyId"])
	}

	system := scope.With(context.Background(), "x-company-id", strata.DefaultSystemID)
	got, _ = e.Apply(system, orders, map[string]any{"status": "open"}, contextualize.Read)
	if _, ok := got["companyId"]; ok {
		t.Error("system caller should not be narrowed")
	}

	got, _ = e.Apply(context.Background(), orders, map[string]any{"status": "open"}, contextualize.Read)
	if _, ok := got["companyId"]; ok {
		t.Error("caller without tenant should not be narrowed")
	}
}

func TestApply_NotTenantAware(t *testing.T) {
	e := newEngine(t, nil)
	got, _ := e.Apply(acme(), &entity.Descriptor{Name: "countries"}, map[string]any{"id": "de"}, contextualize.Write)
	if diff := cmp.Diff(map[string]any{"_id": "de"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_ExtraFields(t *testing.T) {
	e := newEngine(t, func(c *strata.Config) {
		c.Audit.ExtraFields = []strata.ContextField{
			{FieldName: "region", Value: func(context.Context) (any, bool) { return "eu", true }},
			{FieldName: "visible", ApplyOn: strata.ApplyOnRead, Value: func(context.Context) (any, bool) { return true, true }},
			{FieldName: "skipped", ApplyOn: strata.ApplyOnBoth, Value: func(context.Context) (any, bool) { return nil, false }},
		}
	})

	w, _ := e.Apply(acme(), orders, nil, contextualize.Write)
	if w["region"] != "eu" || w["visible"] != nil {
		t.Errorf("write doc = %v", w)
	}
	if _, ok := w["skipped"]; ok {
		t.Error("absent provider value should be skipped")
	}

	r, _ := e.Apply(acme(), orders, nil, contextualize.Read)
	if r["visible"] != true || r["region"] != nil {
		t.Errorf("read filter = %v", r)
	}
}

func TestStamp_LeavesTenantAlone(t *testing.T) {
	e := newEngine(t, nil)
	got := e.Stamp(context.Background(), map[string]any{"id": "o1", "deletedAt": nil})
	if diff := cmp.Diff(map[string]any{"_id": "o1", "deletedAt": nil}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_Hierarchy(t *testing.T) {
	e := newEngine(t, func(c *strata.Config) {
		c.Tenancy.Mode = strata.ModeHierarchy
		c.Tenancy.Levels = []strata.HierarchyLevel{
			{FieldName: "tenantId", Header: "x-tenant-id"},
			{FieldName: "branchId", Header: "x-branch-id"},
		}
	})
	ctx := scope.With(context.Background(), "x-tenant-id", "t1")

	got, _ := e.Apply(ctx, orders, nil, contextualize.Write)
	if got["tenantId"] != "t1" || got["branchId"] != strata.DefaultSystemID {
		t.Errorf("doc = %v", got)
	}
}
