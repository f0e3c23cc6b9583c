// Package contextualize injects tenant and audit fields into documents and
// filters before they reach a storage driver.
//
// On write, tenant fields are claimed for the ambient tenant when they are
// empty or still owned by the system identity, and default to the system
// identity when nothing else is available. On read, filters are narrowed to
// the ambient tenant unless the caller acts as the system. The identifier
// field is always renamed to the backend's native key.
package contextualize

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/xraph/strata"
	"github.com/xraph/strata/entity"
	"github.com/xraph/strata/id"
)

// Direction selects the contextualization rules.
type Direction int

// Directions.
const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used to report tenant conflicts.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine contextualizes documents for one backend codec.
type Engine struct {
	layer  *strata.Layer
	codec  id.Codec
	logger *slog.Logger
}

// New creates an Engine.
func New(layer *strata.Layer, codec id.Codec, opts ...Option) *Engine {
	e := &Engine{
		layer:  layer,
		codec:  codec,
		logger: layer.Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Codec returns the identifier codec.
func (e *Engine) Codec() id.Codec { return e.codec }

// Apply returns a contextualized copy of doc. The input is never mutated.
// It fails only with strata.ErrTenantConflict under ConflictReject.
func (e *Engine) Apply(ctx context.Context, desc *entity.Descriptor, doc map[string]any, dir Direction) (map[string]any, error) {
	out := maps.Clone(doc)
	if out == nil {
		out = make(map[string]any)
	}

	e.applyExtra(ctx, out, dir)

	cfg := e.layer.Config()
	if cfg.Regular() || desc == nil || !desc.TenantAware {
		return e.normalizeID(out), nil
	}

	system := e.layer.SystemID()
	for _, level := range cfg.Levels() {
		ambient, hasAmbient := e.layer.TenantValue(ctx, level)

		if dir == Read {
			if hasAmbient && ambient != system {
				out[level.FieldName] = id.Native(e.codec, ambient)
			}
			continue
		}

		current, present := out[level.FieldName]
		currentStr := e.format(current)
		empty := !present || current == nil || currentStr == ""

		switch {
		case hasAmbient && (empty || currentStr == system):
			out[level.FieldName] = id.Native(e.codec, ambient)
		case empty:
			out[level.FieldName] = id.Native(e.codec, system)
		case hasAmbient && currentStr != ambient:
			if err := e.resolveConflict(ctx, desc, level, out, currentStr, ambient); err != nil {
				return nil, err
			}
		}
	}

	return e.normalizeID(out), nil
}

// ApplyAll contextualizes each document.
func (e *Engine) ApplyAll(ctx context.Context, desc *entity.Descriptor, docs []map[string]any, dir Direction) ([]map[string]any, error) {
	out := make([]map[string]any, len(docs))
	for i, doc := range docs {
		c, err := e.Apply(ctx, desc, doc, dir)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Stamp applies only the write-side extra fields and identifier
// normalization. It is used for audit-only update documents, which must not
// re-assign tenant ownership.
func (e *Engine) Stamp(ctx context.Context, doc map[string]any) map[string]any {
	out := maps.Clone(doc)
	if out == nil {
		out = make(map[string]any)
	}
	e.applyExtra(ctx, out, Write)
	return e.normalizeID(out)
}

// NormalizeID returns a copy of doc with the identifier under the native key.
func (e *Engine) NormalizeID(doc map[string]any) map[string]any {
	return e.normalizeID(maps.Clone(doc))
}

func (e *Engine) applyExtra(ctx context.Context, doc map[string]any, dir Direction) {
	for _, f := range e.layer.Config().Audit.ExtraFields {
		if !f.Applies(dir == Write) {
			continue
		}
		if v, ok := f.Value(ctx); ok {
			doc[f.FieldName] = v
		}
	}
}

func (e *Engine) resolveConflict(ctx context.Context, desc *entity.Descriptor, level strata.HierarchyLevel, doc map[string]any, current, ambient string) error {
	switch e.layer.Config().Tenancy.OnConflict {
	case strata.ConflictClaim:
		doc[level.FieldName] = id.Native(e.codec, ambient)
		return nil
	case strata.ConflictReject:
		return fmt.Errorf("%w: %s.%s is %q, caller acts for %q",
			strata.ErrTenantConflict, desc.Name, level.FieldName, current, ambient)
	default:
		e.logger.WarnContext(ctx, "contextualize: keeping existing tenant",
			slog.String("entity", desc.Name),
			slog.String("field", level.FieldName),
			slog.String("current", current),
			slog.String("ambient", ambient),
		)
		return nil
	}
}

func (e *Engine) normalizeID(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	v, ok := doc[entity.FieldID]
	if !ok || v == nil {
		return doc
	}
	delete(doc, entity.FieldID)
	doc[e.codec.Key()] = id.Native(e.codec, v)
	return doc
}

func (e *Engine) format(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := e.codec.Format(v); ok {
		return s
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
