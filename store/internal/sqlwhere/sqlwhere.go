// Package sqlwhere compiles where-objects and operator trees into SQL
// predicates for the relational backends.
package sqlwhere

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/operator"
)

// ErrUnsupported is returned for filter values that have no SQL form.
var ErrUnsupported = errors.New("sqlwhere: unsupported filter")

// Dialect controls placeholder and identifier syntax.
type Dialect struct {
	// Numbered renders placeholders as $1, $2, ... instead of ?.
	Numbered bool
}

// Postgres is the dialect for pgx: numbered placeholders.
var Postgres = Dialect{Numbered: true}

// Bun is the dialect for bun query builders, which bind ? placeholders.
var Bun = Dialect{}

// Quote quotes an identifier with double quotes.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Builder accumulates SQL arguments while rendering predicates.
type Builder struct {
	dialect Dialect
	args    []any
}

// New returns a Builder for d.
func New(d Dialect) *Builder {
	return &Builder{dialect: d}
}

// Args returns the arguments bound so far, in placeholder order.
func (b *Builder) Args() []any { return b.args }

// Arg binds v and returns its placeholder.
func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	if b.dialect.Numbered {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

// Where compiles OR-combined where-objects. It returns an empty string when
// there is nothing to filter on.
func (b *Builder) Where(wheres []driver.Filter) (string, error) {
	var branches []string
	for _, w := range wheres {
		clause, err := b.Filter(w)
		if err != nil {
			return "", err
		}
		if clause == "" {
			// An empty branch matches everything.
			return "", nil
		}
		branches = append(branches, clause)
	}
	switch len(branches) {
	case 0:
		return "", nil
	case 1:
		return branches[0], nil
	}
	return "(" + strings.Join(branches, ") OR (") + ")", nil
}

// Filter compiles one where-object: its fields are AND-combined in key order.
func (b *Builder) Filter(w driver.Filter) (string, error) {
	parts := make([]string, 0, len(w))
	for _, field := range slices.Sorted(maps.Keys(w)) {
		clause, err := b.field(field, w[field])
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	return strings.Join(parts, " AND "), nil
}

func (b *Builder) field(field string, v any) (string, error) {
	col := Quote(field)
	switch t := v.(type) {
	case nil:
		return col + " IS NULL", nil
	case operator.Node:
		return b.node(col, t)
	case map[string]any:
		return "", fmt.Errorf("%w: nested where-object on %s", ErrUnsupported, field)
	default:
		return col + " = " + b.Arg(v), nil
	}
}

func (b *Builder) node(col string, n operator.Node) (string, error) {
	switch n.Kind() {
	case operator.KindNot:
		return b.not(col, n.Value())
	case operator.KindLessThan:
		return col + " < " + b.Arg(n.Value()), nil
	case operator.KindLessThanOrEqual:
		return col + " <= " + b.Arg(n.Value()), nil
	case operator.KindMoreThan:
		return col + " > " + b.Arg(n.Value()), nil
	case operator.KindMoreThanOrEqual:
		return col + " >= " + b.Arg(n.Value()), nil
	case operator.KindEqual:
		if n.Value() == nil {
			return col + " IS NULL", nil
		}
		return col + " = " + b.Arg(n.Value()), nil
	case operator.KindBetween:
		r, _ := n.Value().(operator.Range)
		return col + " BETWEEN " + b.Arg(r.From) + " AND " + b.Arg(r.To), nil
	case operator.KindIn, operator.KindAny:
		return b.in(col, n.Value())
	case operator.KindIsNull:
		return col + " IS NULL", nil
	case operator.KindLike:
		return col + " LIKE " + b.Arg(n.Value()), nil
	case operator.KindILike:
		return col + " ILIKE " + b.Arg(n.Value()), nil
	case operator.KindPatternMatch:
		p, _ := n.Value().(operator.Pattern)
		op := " ~ "
		if strings.Contains(p.Options, "i") {
			op = " ~* "
		}
		return col + op + b.Arg(p.Expr), nil
	case operator.KindArrayContains:
		return col + " @> " + b.Arg(n.Value()), nil
	case operator.KindArrayContainedBy:
		return col + " <@ " + b.Arg(n.Value()), nil
	case operator.KindArrayOverlap:
		return col + " && " + b.Arg(n.Value()), nil
	case operator.KindRaw:
		if e, ok := n.Value().(operator.Expr); ok {
			return b.expr(col, e), nil
		}
		return col + " = " + b.Arg(n.Value()), nil
	case operator.KindOr, operator.KindAnd:
		return b.group(col, n)
	default:
		return "", fmt.Errorf("%w: operator %s", ErrUnsupported, n.Kind())
	}
}

func (b *Builder) not(col string, inner any) (string, error) {
	node, ok := inner.(operator.Node)
	if !ok {
		if inner == nil {
			return col + " IS NOT NULL", nil
		}
		return col + " <> " + b.Arg(inner), nil
	}
	switch node.Kind() {
	case operator.KindIsNull:
		return col + " IS NOT NULL", nil
	case operator.KindIn:
		clause, err := b.in(col, node.Value())
		if err != nil {
			return "", err
		}
		return "NOT (" + clause + ")", nil
	}
	clause, err := b.node(col, node)
	if err != nil {
		return "", err
	}
	return "NOT (" + clause + ")", nil
}

func (b *Builder) in(col string, v any) (string, error) {
	list, ok := v.([]any)
	if !ok {
		return "", fmt.Errorf("%w: in needs a list, got %T", ErrUnsupported, v)
	}
	if len(list) == 0 {
		return "FALSE", nil
	}
	ph := make([]string, len(list))
	for i, e := range list {
		ph[i] = b.Arg(e)
	}
	return col + " IN (" + strings.Join(ph, ", ") + ")", nil
}

func (b *Builder) group(col string, n operator.Node) (string, error) {
	ops, _ := n.Value().([]operator.Node)
	if len(ops) == 0 {
		if n.Kind() == operator.KindOr {
			return "FALSE", nil
		}
		return "TRUE", nil
	}
	sep := " AND "
	if n.Kind() == operator.KindOr {
		sep = " OR "
	}
	parts := make([]string, len(ops))
	for i, op := range ops {
		clause, err := b.node(col, op)
		if err != nil {
			return "", err
		}
		parts[i] = clause
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// expr substitutes the column for {col} and rebinds each ? to the dialect.
func (b *Builder) expr(col string, e operator.Expr) string {
	sql := strings.ReplaceAll(e.SQL, "{col}", col)
	var out strings.Builder
	next := 0
	for _, r := range sql {
		if r == '?' && next < len(e.Args) {
			out.WriteString(b.Arg(e.Args[next]))
			next++
			continue
		}
		out.WriteRune(r)
	}
	return "(" + out.String() + ")"
}

// OrderBy renders an ORDER BY list without the keyword.
func OrderBy(sorts []driver.Sort) string {
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		dir := " ASC"
		if s.Desc {
			dir = " DESC"
		}
		parts[i] = Quote(s.Field) + dir
	}
	return strings.Join(parts, ", ")
}
