package mongo

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/id"
)

func TestObjectIDCodec(t *testing.T) {
	var c ObjectIDCodec
	if c.Key() != "_id" {
		t.Errorf("Key = %q", c.Key())
	}

	oid := c.New().(bson.ObjectID)
	s, ok := c.Format(oid)
	if !ok || s != oid.Hex() {
		t.Fatalf("Format = %q, %v", s, ok)
	}
	back, err := c.Parse(s)
	if err != nil || back != oid {
		t.Fatalf("Parse = %v, %v", back, err)
	}

	if _, err := c.Parse("not-hex"); !errors.Is(err, id.ErrInvalid) {
		t.Errorf("Parse(not-hex) err = %v, want ErrInvalid", err)
	}
	if _, ok := c.Format("plain"); ok {
		t.Error("Format accepted a plain string")
	}
	if got := id.Native(c, "not-hex"); got != "not-hex" {
		t.Errorf("Native passes through invalid ids, got %v", got)
	}
}

func TestIndexModel(t *testing.T) {
	m := indexModel(entity.Index{
		Name:   "by_ref",
		Keys:   []entity.IndexKey{{Field: "reference", Direction: 1}, {Field: "createdAt", Direction: -1}},
		Unique: true,
	})
	want := bson.D{{Key: "reference", Value: 1}, {Key: "createdAt", Value: -1}}
	if diff := cmp.Diff(want, m.Keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	text := indexModel(entity.Index{Name: entity.TextSearchIndex, Keys: []entity.IndexKey{{Field: "memo"}}, Text: true})
	if diff := cmp.Diff(bson.D{{Key: "memo", Value: "text"}}, text.Keys); diff != "" {
		t.Errorf("text keys mismatch (-want +got):\n%s", diff)
	}
}

func TestFilter(t *testing.T) {
	if diff := cmp.Diff(bson.M{}, filter(nil)); diff != "" {
		t.Errorf("empty filter (-want +got):\n%s", diff)
	}
	one := driver.Filter{"a": 1}
	if diff := cmp.Diff(one, filter([]driver.Filter{one})); diff != "" {
		t.Errorf("single filter (-want +got):\n%s", diff)
	}
	two := filter([]driver.Filter{{"a": 1}, {"b": 2}})
	want := bson.M{"$or": bson.A{driver.Filter{"a": 1}, driver.Filter{"b": 2}}}
	if diff := cmp.Diff(want, two); diff != "" {
		t.Errorf("or filter (-want +got):\n%s", diff)
	}
}

func TestNormalizeDoc(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	got := normalizeDoc(bson.M{
		"when":  bson.NewDateTimeFromTime(at),
		"tags":  bson.A{"x", bson.D{{Key: "k", Value: "v"}}},
		"inner": bson.M{"n": int32(3)},
	})
	want := driver.Document{
		"when":  at,
		"tags":  []any{"x", driver.Document{"k": "v"}},
		"inner": driver.Document{"n": int32(3)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("normalizeDoc mismatch (-want +got):\n%s", diff)
	}
}
