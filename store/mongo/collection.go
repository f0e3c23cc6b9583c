package mongo

import (
	"context"
	"fmt"
	"maps"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/strata/driver"
)

// collection is a driver.Collection over one MongoDB collection.
type collection struct {
	store *Store
	coll  *mongod.Collection
}

func (c *collection) Name() string { return c.coll.Name() }

func (c *collection) Insert(ctx context.Context, docs []driver.Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]any, len(docs))
	for i, d := range docs {
		batch[i] = d
	}
	if _, err := c.coll.InsertMany(ctx, batch); err != nil {
		return c.wrap("insert", err)
	}
	return nil
}

// Save replaces each document by _id, inserting it when absent.
func (c *collection) Save(ctx context.Context, docs []driver.Document) ([]driver.Document, error) {
	key := c.store.codec.Key()
	out := make([]driver.Document, 0, len(docs))
	for _, d := range docs {
		doc := maps.Clone(d)
		if doc[key] == nil {
			doc[key] = c.store.codec.New()
		}
		_, err := c.coll.ReplaceOne(ctx, bson.M{key: doc[key]}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return nil, c.wrap("save", err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func (c *collection) Find(ctx context.Context, q driver.Query) ([]driver.Document, error) {
	opts := options.Find()
	if len(q.Sort) > 0 {
		sort := make(bson.D, len(q.Sort))
		for i, s := range q.Sort {
			dir := 1
			if s.Desc {
				dir = -1
			}
			sort[i] = bson.E{Key: s.Field, Value: dir}
		}
		opts.SetSort(sort)
	}
	if q.Skip > 0 {
		opts.SetSkip(int64(q.Skip))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := c.coll.Find(ctx, filter(q.Where), opts)
	if err != nil {
		return nil, c.wrap("find", err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, c.wrap("find", err)
	}
	docs := make([]driver.Document, len(raw))
	for i, r := range raw {
		docs[i] = normalizeDoc(r)
	}
	return docs, nil
}

func (c *collection) Count(ctx context.Context, q driver.Query) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, filter(q.Where))
	if err != nil {
		return 0, c.wrap("count", err)
	}
	return n, nil
}

func (c *collection) Update(ctx context.Context, where []driver.Filter, set driver.Document) (int64, error) {
	if len(set) == 0 {
		return c.Count(ctx, driver.Query{Where: where})
	}
	res, err := c.coll.UpdateMany(ctx, filter(where), bson.M{"$set": set})
	if err != nil {
		return 0, c.wrap("update", err)
	}
	return res.MatchedCount, nil
}

func (c *collection) Increment(ctx context.Context, where []driver.Filter, field string, by float64, set driver.Document) (int64, error) {
	update := bson.M{"$inc": bson.M{field: by}}
	if len(set) > 0 {
		update["$set"] = set
	}
	res, err := c.coll.UpdateMany(ctx, filter(where), update)
	if err != nil {
		return 0, c.wrap("increment", err)
	}
	return res.MatchedCount, nil
}

func (c *collection) Delete(ctx context.Context, where []driver.Filter) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, filter(where))
	if err != nil {
		return 0, c.wrap("delete", err)
	}
	return res.DeletedCount, nil
}

// Aggregate runs a $match/$group pipeline. No matching document yields no
// group and a nil result.
func (c *collection) Aggregate(ctx context.Context, fn driver.Aggregation, field string, where []driver.Filter) (*float64, error) {
	var acc string
	switch fn {
	case driver.Sum:
		acc = "$sum"
	case driver.Average:
		acc = "$avg"
	case driver.Minimum:
		acc = "$min"
	case driver.Maximum:
		acc = "$max"
	default:
		return nil, fmt.Errorf("strata/mongo: aggregate %s: unknown function %q", c.Name(), fn)
	}

	pipeline := mongod.Pipeline{
		{{Key: "$match", Value: filter(where)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "value", Value: bson.D{{Key: acc, Value: "$" + field}}},
		}}},
	}
	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, c.wrap("aggregate", err)
	}
	var out []struct {
		Value *float64 `bson:"value"`
	}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, c.wrap("aggregate", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Value, nil
}

func (c *collection) wrap(op string, err error) error {
	if isDuplicateKey(err) {
		return fmt.Errorf("strata/mongo: %s %s: %w: %w", op, c.Name(), driver.ErrDuplicateKey, err)
	}
	return fmt.Errorf("strata/mongo: %s %s: %w", op, c.Name(), err)
}

// filter combines OR-ed where-objects into one MongoDB filter.
func filter(where []driver.Filter) any {
	switch len(where) {
	case 0:
		return bson.M{}
	case 1:
		if where[0] == nil {
			return bson.M{}
		}
		return where[0]
	}
	branches := make(bson.A, len(where))
	for i, w := range where {
		branches[i] = w
	}
	return bson.M{"$or": branches}
}

// normalizeDoc converts decoded BSON values to plain Go values: embedded
// documents become maps, arrays become []any and datetimes become
// time.Time. ObjectIDs are kept for the codec.
func normalizeDoc(m bson.M) driver.Document {
	out := make(driver.Document, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeDoc(t)
	case bson.D:
		out := make(driver.Document, len(t))
		for _, e := range t {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case bson.DateTime:
		return t.Time().UTC()
	case bson.Decimal128:
		return t.String()
	default:
		return v
	}
}
