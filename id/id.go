// Package id defines identifier codecs that convert between the plain string
// identifiers callers see and the storage-native identifier representation of
// a backend (ObjectID for document stores, canonical UUID strings for
// relational ones).
//
// Conversion never fails loudly: Native and String degrade to passing the
// raw value through, since some backends accept opaque string ids.
package id

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Key is the identifier name callers always see.
const Key = "id"

// ErrInvalid is returned by Codec.Parse for values the codec cannot represent.
var ErrInvalid = errors.New("id: invalid identifier")

// Codec converts identifiers to and from a backend's native representation.
type Codec interface {
	// Key returns the native identifier field name, e.g. "_id".
	Key() string

	// Parse converts a string to the native representation.
	Parse(s string) (any, error)

	// Format converts a native value back to a string. It reports false for
	// values that are not native identifiers.
	Format(v any) (string, bool)

	// New generates a fresh native identifier.
	New() any
}

// Mappable is implemented by values that wrap identifiers, such as query
// operator nodes, so codecs can convert the wrapped values.
type Mappable interface {
	MapValues(fn func(any) any) any
}

// Native converts v to the native representation when it is a string or a
// slice of strings, passing anything the codec rejects through unchanged.
func Native(c Codec, v any) any {
	switch t := v.(type) {
	case Mappable:
		return t.MapValues(func(inner any) any { return Native(c, inner) })
	case string:
		if n, err := c.Parse(t); err == nil {
			return n
		}
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = Native(c, s)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = Native(c, s)
		}
		return out
	default:
		return v
	}
}

// String converts native identifiers (and slices of them) to strings,
// passing other values through.
func String(c Codec, v any) any {
	if s, ok := c.Format(v); ok {
		return s
	}
	if vs, ok := v.([]any); ok {
		out := make([]any, len(vs))
		for i, e := range vs {
			out[i] = String(c, e)
		}
		return out
	}
	return v
}

// ──────────────────────────────────────────────────
// Opaque string codec
// ──────────────────────────────────────────────────

// StringCodec treats identifiers as opaque strings. New ids are UUIDv7.
type StringCodec struct {
	// Field is the native key. Defaults to "id".
	Field string
}

// Key implements Codec.
func (c StringCodec) Key() string {
	if c.Field == "" {
		return Key
	}
	return c.Field
}

// Parse implements Codec.
func (StringCodec) Parse(s string) (any, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalid)
	}
	return s, nil
}

// Format implements Codec.
func (StringCodec) Format(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// New implements Codec.
func (StringCodec) New() any { return newV7() }

// ──────────────────────────────────────────────────
// UUID codec
// ──────────────────────────────────────────────────

// UUIDCodec stores identifiers as canonical lower-case UUID strings, which
// both uuid and text columns accept.
type UUIDCodec struct {
	Field string
}

// Key implements Codec.
func (c UUIDCodec) Key() string {
	if c.Field == "" {
		return Key
	}
	return c.Field
}

// Parse implements Codec.
func (UUIDCodec) Parse(s string) (any, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalid, s, err)
	}
	return u.String(), nil
}

// Format implements Codec.
func (UUIDCodec) Format(v any) (string, bool) {
	switch t := v.(type) {
	case uuid.UUID:
		return t.String(), true
	case [16]byte:
		return uuid.UUID(t).String(), true
	case string:
		return strings.ToLower(t), true
	default:
		return "", false
	}
}

// New implements Codec.
func (UUIDCodec) New() any { return newV7() }

func newV7() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}
