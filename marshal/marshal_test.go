package marshal_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/xraph/strata"
	"github.com/xraph/strata/aggregate"
	"github.com/xraph/strata/id"
	"github.com/xraph/strata/marshal"
)

type invoice struct{ *aggregate.Root }

func newInvoice(r *aggregate.Root) *invoice { return &invoice{Root: r} }

var invoiceOpts = aggregate.Options{Schema: aggregate.Schema{
	"number":   aggregate.Plain,
	"total":    aggregate.Plain,
	"dueOn":    aggregate.Date,
	"ownerId":  aggregate.Identifier,
	"archived": aggregate.Plain,
}}

func newMarshaller(t *testing.T, codec id.Codec) (*marshal.Marshaller[*invoice], *strata.Layer) {
	t.Helper()
	layer, err := strata.New(strata.WithClock(func() time.Time {
		return time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	}))
	if err != nil {
		t.Fatalf("strata.New: %v", err)
	}
	return marshal.New(layer, codec, invoiceOpts, newInvoice), layer
}

func TestToStorage(t *testing.T) {
	m, layer := newMarshaller(t, id.UUIDCodec{})
	owner := uuid.NewString()

	inv := newInvoice(aggregate.New(context.Background(), layer, invoiceOpts, aggregate.Create))
	inv.Set("number", "INV-1")
	inv.Set("dueOn", "2024-07-01")
	inv.Set("ownerId", owner)
	inv.Set("archived", nil)

	doc := m.ToStorage(inv)

	if doc["dueOn"] != time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("dueOn = %#v", doc["dueOn"])
	}
	if doc["createdAt"] != time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC) {
		t.Errorf("createdAt = %#v", doc["createdAt"])
	}
	if doc["ownerId"] != owner {
		t.Errorf("ownerId = %v", doc["ownerId"])
	}
	if v, ok := doc["archived"]; !ok || v != nil {
		t.Error("null property should be stored as nil")
	}
	if _, ok := doc["total"]; ok {
		t.Error("absent property should not be stored")
	}
	// The system identity is not a UUID, so it passes through unconverted.
	if doc["createdBy"] != strata.DefaultSystemID {
		t.Errorf("createdBy = %v", doc["createdBy"])
	}
}

func TestToStorage_DegradesOnBadValues(t *testing.T) {
	m, layer := newMarshaller(t, id.UUIDCodec{})
	inv := newInvoice(aggregate.New(context.Background(), layer, invoiceOpts, aggregate.Read))
	inv.Set("dueOn", "next tuesday")
	inv.Set("ownerId", "")

	doc := m.ToStorage(inv)
	if doc["dueOn"] != "next tuesday" {
		t.Errorf("unparseable date should pass through, got %v", doc["dueOn"])
	}
	if doc["ownerId"] != strata.DefaultSystemID {
		t.Errorf("empty identifier should fall back to system id, got %v", doc["ownerId"])
	}
}

func TestToDomain(t *testing.T) {
	m, _ := newMarshaller(t, id.StringCodec{Field: "_id"})
	doc := map[string]any{
		"_id":       "inv-1",
		"number":    "INV-1",
		"createdAt": time.Date(2024, 1, 2, 3, 4, 5, 678_900_000, time.FixedZone("CET", 3600)),
		"secret":    "not declared",
	}

	inv := m.ToDomain(doc)
	if inv.Access() != aggregate.Read {
		t.Errorf("access = %v, want read", inv.Access())
	}
	if inv.ID() != "inv-1" {
		t.Errorf("id = %q", inv.ID())
	}
	if inv.CreatedAt() != "2024-01-02T02:04:05.678Z" {
		t.Errorf("createdAt = %q", inv.CreatedAt())
	}
	if _, ok := inv.Get("secret"); ok {
		t.Error("undeclared property copied")
	}
	if _, ok := inv.Get("updatedAt"); ok {
		t.Error("read-mode aggregate must not be stamped")
	}
}

func TestRoundTrip_PlainProperties(t *testing.T) {
	m, layer := newMarshaller(t, id.StringCodec{})
	inv := newInvoice(aggregate.New(context.Background(), layer, invoiceOpts, aggregate.Read))
	inv.SetID("inv-9")
	inv.Set("number", "INV-9")
	inv.Set("total", 120.5)

	back := m.ToDomain(m.ToStorage(inv))
	if diff := cmp.Diff(inv.Values(), back.Values()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
