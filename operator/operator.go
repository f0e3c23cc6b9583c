// Package operator provides the relational-style query operators used in
// repository filters, and their translation into the document-store filter
// dialect.
//
// A filter is a where-object: a map from field name to either a plain value
// (equality), a nested where-object, or an operator Node:
//
//	where := map[string]any{
//		"amount": operator.MoreThan(10),
//		"status": operator.In("open", "pending"),
//	}
//
// Relational backends receive the Node tree unchanged and compile it to SQL.
// Document backends receive the output of ToDocument.
package operator

import "fmt"

// Kind names an operator.
type Kind string

// Operator kinds.
const (
	KindNot              Kind = "not"
	KindLessThan         Kind = "lessThan"
	KindLessThanOrEqual  Kind = "lessThanOrEqual"
	KindMoreThan         Kind = "moreThan"
	KindMoreThanOrEqual  Kind = "moreThanOrEqual"
	KindEqual            Kind = "equal"
	KindBetween          Kind = "between"
	KindIn               Kind = "in"
	KindAny              Kind = "any"
	KindIsNull           Kind = "isNull"
	KindLike             Kind = "like"
	KindILike            Kind = "ilike"
	KindPatternMatch     Kind = "patternMatch"
	KindArrayContains    Kind = "arrayContains"
	KindArrayContainedBy Kind = "arrayContainedBy"
	KindArrayOverlap     Kind = "arrayOverlap"
	KindRaw              Kind = "raw"
	KindOr               Kind = "or"
	KindAnd              Kind = "and"
)

// Node is one operator applied to a field.
type Node struct {
	kind  Kind
	value any
}

// Kind returns the operator kind.
func (n Node) Kind() Kind { return n.kind }

// Value returns the operand. Its shape depends on the kind: a scalar, a
// []any list, a Range, a Pattern, a Node (for not) or a []Node (for or/and).
func (n Node) Value() any { return n.value }

// String renders the node for logs.
func (n Node) String() string { return fmt.Sprintf("%s(%v)", n.kind, n.value) }

// MapValues returns a copy of the node with fn applied to every operand
// value. Nested nodes are mapped recursively.
func (n Node) MapValues(fn func(any) any) any {
	switch v := n.value.(type) {
	case Node:
		return Node{kind: n.kind, value: v.MapValues(fn)}
	case []Node:
		out := make([]Node, len(v))
		for i, c := range v {
			out[i] = c.MapValues(fn).(Node)
		}
		return Node{kind: n.kind, value: out}
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = fn(e)
		}
		return Node{kind: n.kind, value: out}
	case Range:
		return Node{kind: n.kind, value: Range{From: fn(v.From), To: fn(v.To)}}
	case Pattern, nil:
		return n
	default:
		if n.kind == KindRaw || n.kind == KindLike || n.kind == KindILike {
			return n
		}
		return Node{kind: n.kind, value: fn(v)}
	}
}

// Range is the operand of Between.
type Range struct {
	From, To any
}

// Pattern is the operand of PatternMatch.
type Pattern struct {
	Expr    string
	Options string
}

// Expr is a raw SQL fragment for relational backends. The column reference
// is written as "{col}" and Args bind to ? placeholders in order.
type Expr struct {
	SQL  string
	Args []any
}

// Not negates a node or, for a plain value, means "not equal".
func Not(v any) Node { return Node{kind: KindNot, value: v} }

// LessThan matches values < v.
func LessThan(v any) Node { return Node{kind: KindLessThan, value: v} }

// LessThanOrEqual matches values <= v.
func LessThanOrEqual(v any) Node { return Node{kind: KindLessThanOrEqual, value: v} }

// MoreThan matches values > v.
func MoreThan(v any) Node { return Node{kind: KindMoreThan, value: v} }

// MoreThanOrEqual matches values >= v.
func MoreThanOrEqual(v any) Node { return Node{kind: KindMoreThanOrEqual, value: v} }

// Equal matches values == v.
func Equal(v any) Node { return Node{kind: KindEqual, value: v} }

// Between matches from <= value <= to.
func Between(from, to any) Node { return Node{kind: KindBetween, value: Range{From: from, To: to}} }

// In matches any of values.
func In[T any](values ...T) Node { return Node{kind: KindIn, value: toAny(values)} }

// Any matches any of values.
func Any[T any](values ...T) Node { return Node{kind: KindAny, value: toAny(values)} }

// IsNull matches null or missing values.
func IsNull() Node { return Node{kind: KindIsNull} }

// Like matches a SQL LIKE pattern (% and _ wildcards), case sensitive.
func Like(pattern string) Node { return Node{kind: KindLike, value: pattern} }

// ILike is the case-insensitive Like.
func ILike(pattern string) Node { return Node{kind: KindILike, value: pattern} }

// PatternMatch matches a regular expression with backend options, e.g. "i".
func PatternMatch(expr, options string) Node {
	return Node{kind: KindPatternMatch, value: Pattern{Expr: expr, Options: options}}
}

// ArrayContains matches array fields containing all values.
func ArrayContains[T any](values ...T) Node {
	return Node{kind: KindArrayContains, value: toAny(values)}
}

// ArrayContainedBy matches array fields whose elements are all in values.
func ArrayContainedBy[T any](values ...T) Node {
	return Node{kind: KindArrayContainedBy, value: toAny(values)}
}

// ArrayOverlap matches array fields sharing at least one element with values.
func ArrayOverlap[T any](values ...T) Node {
	return Node{kind: KindArrayOverlap, value: toAny(values)}
}

// Raw passes v to the backend verbatim. Document backends use it as the
// field's filter fragment; relational backends expect an Expr.
func Raw(v any) Node { return Node{kind: KindRaw, value: v} }

// RawSQL is Raw(Expr{...}).
func RawSQL(sql string, args ...any) Node { return Raw(Expr{SQL: sql, Args: args}) }

// Or matches when any operand matches the field.
func Or(ops ...Node) Node { return Node{kind: KindOr, value: ops} }

// And matches when every operand matches the field.
func And(ops ...Node) Node { return Node{kind: KindAnd, value: ops} }

func toAny[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
