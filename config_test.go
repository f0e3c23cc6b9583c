package strata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfig_SingleLevel(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
tenancy:
  mode: single-level
  levels:
    - field_name: companyId
      header: x-company-id
      required: true
audit:
  user_id_header: x-actor
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Tenancy.Mode != ModeSingleLevel {
		t.Errorf("mode = %q, want %q", cfg.Tenancy.Mode, ModeSingleLevel)
	}
	if got := cfg.Tenancy.Levels[0].Key(); got != "x-company-id" {
		t.Errorf("lookup key = %q, want header fallback", got)
	}
	if cfg.SystemID() != DefaultSystemID {
		t.Errorf("system id = %q, want default", cfg.SystemID())
	}
	if cfg.Audit.UserIDKey() != "x-actor" {
		t.Errorf("user id key = %q, want x-actor", cfg.Audit.UserIDKey())
	}
	if cfg.Audit.CorrelationIDKey() != "x-correlation-id" {
		t.Errorf("correlation key = %q, want default", cfg.Audit.CorrelationIDKey())
	}
	if !cfg.Audit.SoftDeleteEnabled {
		t.Error("soft delete should stay enabled when omitted")
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown mode", "tenancy:\n  mode: galaxy\n"},
		{"single-level without level", "tenancy:\n  mode: single-level\n"},
		{"hierarchy without levels", "tenancy:\n  mode: hierarchy\n"},
		{"regular with levels", "tenancy:\n  mode: regular\n  levels:\n    - field_name: a\n      header: x-a\n"},
		{"level without key", "tenancy:\n  mode: hierarchy\n  levels:\n    - field_name: a\n"},
		{"duplicate field", "tenancy:\n  mode: hierarchy\n  levels:\n    - field_name: a\n      header: x-a\n    - field_name: a\n      header: x-b\n"},
		{"bad conflict policy", "tenancy:\n  mode: single-level\n  on_conflict: shrug\n  levels:\n    - field_name: a\n      header: x-a\n"},
		{"bad yaml", "tenancy: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.yaml")
	body := "tenancy:\n  mode: hierarchy\n  system_id: sys\n  levels:\n    - field_name: tenantId\n      header: x-tenant-id\n    - field_name: companyId\n      header: x-company-id\n      lookup_key: company\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	primary, ok := cfg.PrimaryLevel()
	if !ok || primary.FieldName != "tenantId" {
		t.Fatalf("primary level = %+v, %v", primary, ok)
	}
	if cfg.Levels()[1].Key() != "company" {
		t.Errorf("second level key = %q, want company", cfg.Levels()[1].Key())
	}
	if cfg.SystemID() != "sys" {
		t.Errorf("system id = %q, want sys", cfg.SystemID())
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNew_RequiresResolverForTenancy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tenancy.Mode = ModeSingleLevel
	cfg.Tenancy.Levels = []HierarchyLevel{{FieldName: "companyId", Header: "x-company-id"}}

	if _, err := New(WithConfig(cfg)); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}

	values := map[string]string{"x-company-id": "acme", "x-user-id": "u1"}
	r := ResolverFunc(func(_ context.Context, key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})
	l, err := New(WithConfig(cfg), WithResolver(r))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx := context.Background()
	if v, ok := l.TenantValue(ctx, cfg.Tenancy.Levels[0]); !ok || v != "acme" {
		t.Errorf("tenant value = %q, %v", v, ok)
	}
	if l.UserID(ctx) != "u1" {
		t.Errorf("user id = %q, want u1", l.UserID(ctx))
	}
	if _, ok := l.CorrelationID(ctx); ok {
		t.Error("correlation id should be absent")
	}
}

func TestNew_RegularModeFallsBackToSystem(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	l, err := New(WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if l.UserID(context.Background()) != DefaultSystemID {
		t.Errorf("user id = %q, want system", l.UserID(context.Background()))
	}
	if !l.Now().Equal(fixed) {
		t.Errorf("clock not applied")
	}
	if _, err := New(WithResolver(nil)); !errors.Is(err, ErrConfiguration) {
		t.Errorf("nil resolver should be rejected, got %v", err)
	}
}

func TestContextField_Applies(t *testing.T) {
	tests := []struct {
		on          ApplyOn
		write, read bool
	}{
		{"", true, false},
		{ApplyOnWrite, true, false},
		{ApplyOnRead, false, true},
		{ApplyOnBoth, true, true},
	}
	for _, tt := range tests {
		f := ContextField{FieldName: "x", ApplyOn: tt.on}
		if f.Applies(true) != tt.write || f.Applies(false) != tt.read {
			t.Errorf("applyOn %q: write=%v read=%v", tt.on, f.Applies(true), f.Applies(false))
		}
	}
}
