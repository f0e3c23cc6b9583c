package id_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/xraph/strata/id"
)

func TestStringCodec(t *testing.T) {
	c := id.StringCodec{}
	if c.Key() != "id" {
		t.Errorf("key = %q, want id", c.Key())
	}
	if (id.StringCodec{Field: "pk"}).Key() != "pk" {
		t.Error("custom field ignored")
	}

	n, err := c.Parse("abc")
	if err != nil || n != "abc" {
		t.Fatalf("parse = %v, %v", n, err)
	}
	if _, err := c.Parse(""); !errors.Is(err, id.ErrInvalid) {
		t.Errorf("expected ErrInvalid for empty string, got %v", err)
	}

	fresh, ok := c.New().(string)
	if !ok || fresh == "" {
		t.Fatalf("New returned %v", c.New())
	}
	if _, err := uuid.Parse(fresh); err != nil {
		t.Errorf("New should produce a UUID, got %q", fresh)
	}
}

func TestUUIDCodec(t *testing.T) {
	c := id.UUIDCodec{}
	raw := "0190C9A4-5C3B-7D2E-8F00-112233445566"

	n, err := c.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n != "0190c9a4-5c3b-7d2e-8f00-112233445566" {
		t.Errorf("parse = %v, want canonical lower-case", n)
	}

	if _, err := c.Parse("acme"); !errors.Is(err, id.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}

	u := uuid.MustParse(raw)
	if s, ok := c.Format(u); !ok || s != u.String() {
		t.Errorf("format uuid = %q, %v", s, ok)
	}
	if _, ok := c.Format(42); ok {
		t.Error("format should reject non-identifiers")
	}
}

func TestNative_DegradesToRaw(t *testing.T) {
	c := id.UUIDCodec{}
	valid := uuid.NewString()

	if got := id.Native(c, "not-a-uuid"); got != "not-a-uuid" {
		t.Errorf("invalid id should pass through, got %v", got)
	}
	if got := id.Native(c, 7); got != 7 {
		t.Errorf("non-string should pass through, got %v", got)
	}

	got, ok := id.Native(c, []string{valid, "raw"}).([]any)
	if !ok || len(got) != 2 {
		t.Fatalf("slice conversion = %v", got)
	}
	if got[0] != valid || got[1] != "raw" {
		t.Errorf("slice conversion = %v", got)
	}
}

func TestString(t *testing.T) {
	c := id.UUIDCodec{}
	u := uuid.New()
	got, ok := id.String(c, []any{u, 3}).([]any)
	if !ok || got[0] != u.String() || got[1] != 3 {
		t.Errorf("String = %v", got)
	}
}
