//go:build integration

package mongo_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/xraph/grove"
	_ "github.com/xraph/grove/drivers/mongodriver"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/strata"
	"github.com/xraph/strata/aggregate"
	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/dynamic"
	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/operator"
	"github.com/xraph/strata/repository"
	"github.com/xraph/strata/scope"
	strmongo "github.com/xraph/strata/store/mongo"
)

// setupTestStore starts a MongoDB container and returns a connected Store.
func setupTestStore(t *testing.T) *strmongo.Store {
	t.Helper()

	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("start mongodb container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	s, err := strmongo.New(ctx, uri, "strata_test", strmongo.WithLogger(slog.Default()))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(ctx) })
	return s
}

func TestNewFromGrove(t *testing.T) {
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("start mongodb container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	db, err := grove.Open(ctx, "mongo", uri+"/strata_grove")
	if err != nil {
		t.Fatalf("grove.Open: %v", err)
	}

	s, err := strmongo.NewFromGrove(db)
	if err != nil {
		t.Fatalf("NewFromGrove: %v", err)
	}
	if s.Grove() != db {
		t.Error("Grove() does not return the wrapped handle")
	}
	if s.Database().Name() != "strata_grove" {
		t.Errorf("database = %q, want strata_grove", s.Database().Name())
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	c := s.Collection("ledger")
	if err := c.Insert(ctx, []driver.Document{{"reference": "r1"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ok, err := s.HasCollection(ctx, "ledger"); err != nil || !ok {
		t.Fatalf("HasCollection = %v, %v", ok, err)
	}
}

func TestProvisioner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if ok, err := s.HasCollection(ctx, "ledger"); err != nil || ok {
		t.Fatalf("HasCollection before create = %v, %v", ok, err)
	}
	if err := s.DropCollection(ctx, "ledger"); !errors.Is(err, driver.ErrNoCollection) {
		t.Fatalf("drop missing: err = %v, want ErrNoCollection", err)
	}

	indexes := []entity.Index{
		{Keys: []entity.IndexKey{{Field: "reference", Direction: 1}}, Unique: true},
		{Keys: []entity.IndexKey{{Field: "deletedAt", Direction: 1}}, Sparse: true},
	}
	if err := s.CreateIndexes(ctx, "ledger", indexes); err != nil {
		t.Fatalf("CreateIndexes: %v", err)
	}
	if ok, err := s.HasCollection(ctx, "ledger"); err != nil || !ok {
		t.Fatalf("HasCollection after create = %v, %v", ok, err)
	}

	c := s.Collection("ledger")
	if err := c.Insert(ctx, []driver.Document{{"reference": "r1"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := c.Insert(ctx, []driver.Document{{"reference": "r1"}}); !errors.Is(err, driver.ErrDuplicateKey) {
		t.Fatalf("unique index: err = %v, want ErrDuplicateKey", err)
	}

	if err := s.DropCollection(ctx, "ledger"); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
}

func TestCollection_DocumentDialect(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	c := s.Collection("items")

	docs := []driver.Document{
		{"_id": bson.NewObjectID(), "name": "alpha", "qty": 5, "tags": []any{"a", "b"}},
		{"_id": bson.NewObjectID(), "name": "beta", "qty": 15, "tags": []any{"b"}},
		{"_id": bson.NewObjectID(), "name": "gamma", "qty": 25},
	}
	if err := c.Insert(ctx, docs); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	where := operator.ToDocument(map[string]any{"qty": operator.MoreThan(10)}, "_id")
	found, err := c.Find(ctx, driver.Query{Where: []driver.Filter{where}, Sort: []driver.Sort{{Field: "qty", Desc: true}}})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 2 || found[0]["name"] != "gamma" {
		t.Fatalf("Find: got %v", found)
	}
	if _, ok := strmongo.ObjectIDCodec{}.Format(found[0]["_id"]); !ok {
		t.Errorf("_id decoded as %T", found[0]["_id"])
	}

	like := operator.ToDocument(map[string]any{"name": operator.ILike("AL%")}, "_id")
	if n, err := c.Count(ctx, driver.Query{Where: []driver.Filter{like}}); err != nil || n != 1 {
		t.Fatalf("ILike count = %d, %v", n, err)
	}

	n, err := c.Increment(ctx, []driver.Filter{{"name": "alpha"}}, "qty", 10, driver.Document{"touched": true})
	if err != nil || n != 1 {
		t.Fatalf("Increment: %d %v", n, err)
	}
	sum, err := c.Aggregate(ctx, driver.Sum, "qty", nil)
	if err != nil || sum == nil || *sum != 55 {
		t.Fatalf("Sum = %v, %v", sum, err)
	}
	none, err := c.Aggregate(ctx, driver.Average, "qty", []driver.Filter{{"name": "zeta"}})
	if err != nil || none != nil {
		t.Fatalf("Average over nothing = %v, %v", none, err)
	}

	if n, err := c.Update(ctx, []driver.Filter{{"name": "beta"}, {"name": "gamma"}}, driver.Document{"qty": 0}); err != nil || n != 2 {
		t.Fatalf("Update: %d %v", n, err)
	}
	if n, err := c.Delete(ctx, []driver.Filter{{"qty": 0}}); err != nil || n != 2 {
		t.Fatalf("Delete: %d %v", n, err)
	}
}

type txn struct{ *aggregate.Root }

func TestDynamicRouting(t *testing.T) {
	s := setupTestStore(t)
	ctx := scope.With(context.Background(), "x-company-id", "acme")

	cfg := strata.DefaultConfig()
	cfg.Tenancy.Mode = strata.ModeSingleLevel
	cfg.Tenancy.Levels = []strata.HierarchyLevel{{FieldName: "companyId", Header: "x-company-id"}}
	layer, err := strata.New(strata.WithConfig(cfg), strata.WithResolver(scope.NewResolver()))
	if err != nil {
		t.Fatalf("strata.New: %v", err)
	}

	desc := &entity.Descriptor{
		Name:        "transactions",
		TenantAware: true,
		SoftDelete:  true,
		Fields:      []string{"creditcardId", "amount", "memo", "createdAt", "updatedAt", "deletedAt"},
		Dynamic: &entity.Dynamic{
			IDField:          "creditcardId",
			CollectionName:   func(id string) string { return "txns_" + id },
			TextSearchFields: []string{"memo"},
		},
	}
	schema := aggregate.Schema{
		"creditcardId": aggregate.Identifier,
		"amount":       aggregate.Plain,
		"memo":         aggregate.Plain,
	}
	base, err := repository.New(layer, s, desc, schema, func(r *aggregate.Root) *txn { return &txn{Root: r} })
	if err != nil {
		t.Fatalf("repository.New: %v", err)
	}
	router, err := dynamic.NewRouter(base)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	repo := dynamic.NewRepository(router)

	card := bson.NewObjectID().Hex()
	for _, amount := range []int{5, 7} {
		m := repo.New(ctx, aggregate.Create)
		m.Set("creditcardId", card)
		m.Set("amount", amount)
		m.Set("memo", "coffee")
		if _, err := repo.Save(ctx, m); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	if ok, err := s.HasCollection(ctx, "txns_"+card); err != nil || !ok {
		t.Fatalf("partition missing: %v, %v", ok, err)
	}
	got, err := repo.FindBy(ctx, map[string]any{"creditcardId": card})
	if err != nil {
		t.Fatalf("FindBy: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FindBy = %d records, want 2", len(got))
	}
	if v, _ := got[0].Get("creditcardId"); v != card {
		t.Errorf("creditcardId = %v, want %s", v, card)
	}

	if err := router.Destroy(ctx, card); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if ok, _ := s.HasCollection(ctx, "txns_"+card); ok {
		t.Error("partition still present after Destroy")
	}
}
