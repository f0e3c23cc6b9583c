// Package memory provides an in-memory storage backend.
//
// By default the store behaves like a document database: filters arrive in
// the document dialect and collections are provisioned at runtime. With
// WithFamily(driver.FamilyRelational) it accepts operator trees instead,
// which it translates before evaluation. Safe for concurrent access. Intended for
// unit testing and development.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/id"
	"github.com/xraph/strata/store"
)

// Compile-time interface checks.
var (
	_ store.Store        = (*Store)(nil)
	_ driver.Driver      = (*Store)(nil)
	_ driver.Provisioner = (*Store)(nil)
	_ driver.Collection  = (*collection)(nil)
)

// ErrDuplicateKey aliases driver.ErrDuplicateKey.
var ErrDuplicateKey = driver.ErrDuplicateKey

// Option configures a Store.
type Option func(*Store)

// WithFamily sets the filter dialect the store accepts. Defaults to
// driver.FamilyDocument.
func WithFamily(f driver.Family) Option {
	return func(s *Store) { s.family = f }
}

// WithCodec sets the identifier codec. Defaults to a string codec keyed by
// "_id" for document stores and "id" for relational ones.
func WithCodec(c id.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// Store is an in-memory driver.Driver.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table

	family driver.Family
	codec  id.Codec
}

type table struct {
	order   []string
	records map[string]driver.Document
	indexes []entity.Index
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		tables: make(map[string]*table),
		family: driver.FamilyDocument,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		if s.family == driver.FamilyDocument {
			s.codec = id.StringCodec{Field: "_id"}
		} else {
			s.codec = id.StringCodec{}
		}
	}
	return s
}

// Family implements driver.Driver.
func (s *Store) Family() driver.Family { return s.family }

// Codec implements driver.Driver.
func (s *Store) Codec() id.Codec { return s.codec }

// Collection implements driver.Driver.
func (s *Store) Collection(name string) driver.Collection {
	return &collection{store: s, name: name}
}

// Ping always succeeds for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// Collections returns the names of existing collections, sorted.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Indexes returns the indexes created on a collection.
func (s *Store) Indexes(name string) []entity.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[name]; ok {
		return append([]entity.Index(nil), t.indexes...)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Provisioner
// ──────────────────────────────────────────────────

// HasCollection implements driver.Provisioner.
func (s *Store) HasCollection(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[name]
	return ok, nil
}

// CreateIndexes implements driver.Provisioner. It creates the collection
// when missing. Indexes with a name already present are skipped.
func (s *Store) CreateIndexes(_ context.Context, name string, indexes []entity.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(name)
	for _, ix := range indexes {
		if ix.Name != "" && t.hasIndex(ix.Name) {
			continue
		}
		t.indexes = append(t.indexes, ix)
	}
	return nil
}

// DropCollection implements driver.Provisioner.
func (s *Store) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		return driver.ErrNoCollection
	}
	delete(s.tables, name)
	return nil
}

// table returns the named table, creating it. Callers hold s.mu.
func (s *Store) table(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{records: make(map[string]driver.Document)}
		s.tables[name] = t
	}
	return t
}

func (t *table) hasIndex(name string) bool {
	for _, ix := range t.indexes {
		if ix.Name == name {
			return true
		}
	}
	return false
}

// checkUnique reports a unique-index violation by doc against every record
// other than the one stored under key.
func (t *table) checkUnique(key string, doc driver.Document) error {
	for _, ix := range t.indexes {
		if !ix.Unique || len(ix.Keys) != 1 {
			continue
		}
		field := ix.Keys[0].Field
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		for k, rec := range t.records {
			if k == key {
				continue
			}
			if other, ok := rec[field]; ok && equal(other, v) {
				return fmt.Errorf("%w: %s = %v", ErrDuplicateKey, field, v)
			}
		}
	}
	return nil
}

func (t *table) put(key string, doc driver.Document) {
	if _, exists := t.records[key]; !exists {
		t.order = append(t.order, key)
	}
	t.records[key] = doc
}

func (t *table) remove(key string) {
	delete(t.records, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// ──────────────────────────────────────────────────
// Collection
// ──────────────────────────────────────────────────

type collection struct {
	store *Store
	name  string
}

func (c *collection) Name() string { return c.name }

func (c *collection) key(doc driver.Document) string {
	codec := c.store.codec
	v, ok := doc[codec.Key()]
	if !ok || v == nil {
		v = codec.New()
		doc[codec.Key()] = v
	}
	if s, ok := codec.Format(v); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (c *collection) Insert(_ context.Context, docs []driver.Document) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(c.name)
	type entry struct {
		key string
		doc driver.Document
	}
	staged := make([]entry, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		d = maps.Clone(d)
		k := c.key(d)
		if _, dup := t.records[k]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, k)
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, k)
		}
		if err := t.checkUnique(k, d); err != nil {
			return err
		}
		seen[k] = struct{}{}
		staged = append(staged, entry{key: k, doc: d})
	}
	for _, e := range staged {
		t.put(e.key, e.doc)
	}
	return nil
}

func (c *collection) Save(_ context.Context, docs []driver.Document) ([]driver.Document, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(c.name)
	out := make([]driver.Document, len(docs))
	for i, d := range docs {
		d = maps.Clone(d)
		k := c.key(d)
		if err := t.checkUnique(k, d); err != nil {
			return nil, err
		}
		t.put(k, d)
		out[i] = maps.Clone(d)
	}
	return out, nil
}

func (c *collection) Find(_ context.Context, q driver.Query) ([]driver.Document, error) {
	s := c.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := c.match(q.Where)
	if err != nil {
		return nil, err
	}
	if len(q.Sort) > 0 {
		sortDocs(matched, q.Sort)
	}
	matched = page(matched, q.Skip, q.Limit)

	out := make([]driver.Document, len(matched))
	for i, d := range matched {
		out[i] = maps.Clone(d)
	}
	return out, nil
}

func (c *collection) Count(_ context.Context, q driver.Query) (int64, error) {
	s := c.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := c.match(q.Where)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (c *collection) Update(_ context.Context, where []driver.Filter, set driver.Document) (int64, error) {
	return c.modify(where, func(d driver.Document) {
		maps.Copy(d, set)
	})
}

func (c *collection) Increment(_ context.Context, where []driver.Filter, field string, by float64, set driver.Document) (int64, error) {
	return c.modify(where, func(d driver.Document) {
		cur, _ := toFloat(d[field])
		d[field] = cur + by
		maps.Copy(d, set)
	})
}

func (c *collection) modify(where []driver.Filter, apply func(driver.Document)) (int64, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[c.name]
	if !ok {
		return 0, nil
	}
	matched, err := c.matchKeys(t, where)
	if err != nil {
		return 0, err
	}
	next := make(map[string]driver.Document, len(matched))
	for _, k := range matched {
		d := maps.Clone(t.records[k])
		apply(d)
		if err := t.checkUnique(k, d); err != nil {
			return 0, err
		}
		next[k] = d
	}
	for k, d := range next {
		t.records[k] = d
	}
	return int64(len(matched)), nil
}

func (c *collection) Delete(_ context.Context, where []driver.Filter) (int64, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[c.name]
	if !ok {
		return 0, nil
	}
	matched, err := c.matchKeys(t, where)
	if err != nil {
		return 0, err
	}
	for _, k := range matched {
		t.remove(k)
	}
	return int64(len(matched)), nil
}

func (c *collection) Aggregate(_ context.Context, fn driver.Aggregation, field string, where []driver.Filter) (*float64, error) {
	s := c.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := c.match(where)
	if err != nil {
		return nil, err
	}

	var (
		acc   float64
		count int
	)
	for _, d := range matched {
		v, ok := toFloat(d[field])
		if !ok {
			continue
		}
		switch {
		case count == 0:
			acc = v
		case fn == driver.Minimum:
			acc = min(acc, v)
		case fn == driver.Maximum:
			acc = max(acc, v)
		default:
			acc += v
		}
		count++
	}
	if count == 0 {
		return nil, nil
	}
	if fn == driver.Average {
		acc /= float64(count)
	}
	return &acc, nil
}

// match returns the documents matching where in insertion order. Callers
// hold the store lock.
func (c *collection) match(where []driver.Filter) ([]driver.Document, error) {
	t, ok := c.store.tables[c.name]
	if !ok {
		return nil, nil
	}
	keys, err := c.matchKeys(t, where)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Document, len(keys))
	for i, k := range keys {
		out[i] = t.records[k]
	}
	return out, nil
}

func (c *collection) matchKeys(t *table, where []driver.Filter) ([]string, error) {
	filters := c.store.dialect(where)
	var out []string
	for _, k := range t.order {
		ok, err := matchAny(t.records[k], filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func page(docs []driver.Document, skip, limit int) []driver.Document {
	if skip > 0 {
		if skip >= len(docs) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

func sortDocs(docs []driver.Document, by []driver.Sort) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, s := range by {
			c := compareForSort(docs[i][s.Field], docs[j][s.Field])
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
