// Package marshal converts aggregates to storage documents and back, driven
// by the declared kind of each property.
package marshal

import (
	"time"

	"github.com/xraph/strata"
	"github.com/xraph/strata/aggregate"
	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/id"
)

// Marshaller converts between M and storage documents for one backend codec.
type Marshaller[M aggregate.Aggregate] struct {
	layer   *strata.Layer
	codec   id.Codec
	opts    aggregate.Options
	factory aggregate.Factory[M]
}

// New creates a Marshaller.
func New[M aggregate.Aggregate](layer *strata.Layer, codec id.Codec, opts aggregate.Options, factory aggregate.Factory[M]) *Marshaller[M] {
	return &Marshaller[M]{layer: layer, codec: codec, opts: opts, factory: factory}
}

// ToStorage converts an aggregate to a storage document. Only declared
// properties that are present are copied; the identifier stays under "id".
func (m *Marshaller[M]) ToStorage(model M) map[string]any {
	root := model.Base()
	out := make(map[string]any, len(root.Schema()))

	for field, kind := range root.Schema() {
		v, ok := root.Get(field)
		if !ok {
			continue
		}
		if v == nil {
			out[field] = nil
			continue
		}
		switch kind {
		case aggregate.Identifier:
			out[field] = m.identifier(v)
		case aggregate.Date, aggregate.DateTime:
			out[field] = toTime(v)
		default:
			out[field] = v
		}
	}
	return out
}

// ToDomain builds a fresh aggregate in Read mode from a storage document.
// The native identifier key is exposed as "id", identifiers become strings
// and timestamps are rendered in aggregate.TimeLayout.
func (m *Marshaller[M]) ToDomain(doc map[string]any) M {
	root := aggregate.Restore(m.layer, m.opts, nil)

	for field, kind := range root.Schema() {
		key := field
		if field == entity.FieldID {
			key = m.codec.Key()
		}
		v, ok := doc[key]
		if !ok {
			continue
		}
		switch kind {
		case aggregate.Identifier:
			root.Set(field, id.String(m.codec, v))
		case aggregate.Date, aggregate.DateTime:
			if t, isTime := v.(time.Time); isTime {
				root.Set(field, aggregate.FormatTime(t))
			} else {
				root.Set(field, v)
			}
		default:
			root.Set(field, v)
		}
	}
	return m.factory(root)
}

// ToDomainAll converts a slice of documents.
func (m *Marshaller[M]) ToDomainAll(docs []map[string]any) []M {
	out := make([]M, len(docs))
	for i, d := range docs {
		out[i] = m.ToDomain(d)
	}
	return out
}

func (m *Marshaller[M]) identifier(v any) any {
	if s, ok := v.(string); ok && s == "" {
		v = m.layer.SystemID()
	}
	return id.Native(m.codec, v)
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly}

// toTime converts ISO strings to time.Time. Unparseable values pass through
// and empty strings become nil.
func toTime(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return s
}
