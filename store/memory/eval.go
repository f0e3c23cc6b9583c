package memory

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/xraph/strata/driver"
	"github.com/xraph/strata/operator"
)

// ErrUnsupported is returned for filter constructs the evaluator cannot run,
// such as raw SQL fragments.
var ErrUnsupported = errors.New("memory: unsupported filter")

// dialect converts relational where-objects to the document dialect.
func (s *Store) dialect(where []driver.Filter) []driver.Filter {
	if s.family == driver.FamilyDocument {
		return where
	}
	out := make([]driver.Filter, len(where))
	for i, w := range where {
		out[i] = operator.ToDocument(w, s.codec.Key())
	}
	return out
}

func matchAny(doc driver.Document, filters []driver.Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	for _, f := range filters {
		ok, err := matchFilter(doc, f)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func matchFilter(doc map[string]any, f map[string]any) (bool, error) {
	for key, cond := range f {
		var (
			ok  bool
			err error
		)
		switch key {
		case "$or", "$and", "$nor":
			ok, err = matchLogical(doc, key, cond)
		default:
			v, present := lookup(doc, key)
			ok, err = matchValue(v, present, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(doc map[string]any, op string, cond any) (bool, error) {
	items, ok := toList(cond)
	if !ok {
		return false, fmt.Errorf("%w: %s needs a list", ErrUnsupported, op)
	}
	for _, item := range items {
		sub, isMap := item.(map[string]any)
		if !isMap {
			return false, fmt.Errorf("%w: %s clause %T", ErrUnsupported, op, item)
		}
		matched, err := matchFilter(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$or" && matched:
			return true, nil
		case op == "$and" && !matched:
			return false, nil
		case op == "$nor" && matched:
			return false, nil
		}
	}
	return op != "$or", nil
}

func matchValue(v any, present bool, cond any) (bool, error) {
	switch c := cond.(type) {
	case map[string]any:
		if isOperatorDoc(c) {
			return matchOps(v, present, c)
		}
		if sub, isMap := v.(map[string]any); isMap {
			return matchFilter(sub, c)
		}
		return false, nil
	case operator.Expr:
		return false, fmt.Errorf("%w: raw SQL %q", ErrUnsupported, c.SQL)
	}
	return eq(v, present, cond), nil
}

func isOperatorDoc(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func matchOps(v any, present bool, ops map[string]any) (bool, error) {
	for op, arg := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = eq(v, present, arg)
		case "$ne":
			ok = !eq(v, present, arg)
		case "$gt", "$gte", "$lt", "$lte":
			ok = ordered(v, op, arg)
		case "$in", "$nin":
			list, isList := toList(arg)
			if !isList {
				return false, fmt.Errorf("%w: %s needs a list", ErrUnsupported, op)
			}
			for _, x := range list {
				if eq(v, present, x) {
					ok = true
					break
				}
			}
			if op == "$nin" {
				ok = !ok
			}
		case "$all":
			ok = containsAll(v, arg)
		case "$regex":
			options, _ := ops["$options"].(string)
			re, err := compileRegex(fmt.Sprint(arg), options)
			if err != nil {
				return false, err
			}
			ok = matchRegex(v, re)
		case "$options":
			continue
		case "$not":
			inner, err := matchValue(v, present, arg)
			if err != nil {
				return false, err
			}
			ok = !inner
		case "$elemMatch":
			m, err := elemMatch(v, arg)
			if err != nil {
				return false, err
			}
			ok = m
		case "$exists":
			want, _ := arg.(bool)
			ok = present == want
		case "$size":
			list, isList := toList(v)
			n, isNum := toFloat(arg)
			ok = isList && isNum && float64(len(list)) == n
		default:
			return false, fmt.Errorf("%w: operator %s", ErrUnsupported, op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// eq matches like a document store: nil matches absent or null values and a
// scalar matches any element of an array value.
func eq(v any, present bool, want any) bool {
	if want == nil {
		return !present || v == nil
	}
	if !present {
		return false
	}
	if equal(v, want) {
		return true
	}
	if list, ok := toList(v); ok {
		for _, x := range list {
			if equal(x, want) {
				return true
			}
		}
	}
	return false
}

func ordered(v any, op string, arg any) bool {
	c, ok := compare(v, arg)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	default:
		return c <= 0
	}
}

func containsAll(v, arg any) bool {
	have, ok := toList(v)
	if !ok {
		return false
	}
	want, ok := toList(arg)
	if !ok {
		return false
	}
	for _, w := range want {
		found := false
		for _, h := range have {
			if equal(h, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func elemMatch(v, arg any) (bool, error) {
	list, ok := toList(v)
	if !ok {
		return false, nil
	}
	cond, ok := arg.(map[string]any)
	if !ok {
		return false, fmt.Errorf("%w: $elemMatch needs a document", ErrUnsupported)
	}
	for _, elem := range list {
		var (
			m   bool
			err error
		)
		if isOperatorDoc(cond) {
			m, err = matchOps(elem, true, cond)
		} else if sub, isMap := elem.(map[string]any); isMap {
			m, err = matchFilter(sub, cond)
		}
		if err != nil {
			return false, err
		}
		if m {
			return true, nil
		}
	}
	return false, nil
}

func compileRegex(expr, options string) (*regexp.Regexp, error) {
	var flags strings.Builder
	for _, o := range options {
		if o == 'i' || o == 'm' || o == 's' {
			flags.WriteRune(o)
		}
	}
	if flags.Len() > 0 {
		expr = "(?" + flags.String() + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: regex %q: %w", ErrUnsupported, expr, err)
	}
	return re, nil
}

func matchRegex(v any, re *regexp.Regexp) bool {
	if s, ok := v.(string); ok {
		return re.MatchString(s)
	}
	if list, ok := toList(v); ok {
		for _, x := range list {
			if s, isStr := x.(string); isStr && re.MatchString(s) {
				return true
			}
		}
	}
	return false
}

// ──────────────────────────────────────────────────
// Values
// ──────────────────────────────────────────────────

// lookup resolves a field, following dotted paths into nested documents.
func lookup(doc map[string]any, path string) (any, bool) {
	if v, ok := doc[path]; ok {
		return v, true
	}
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return nil, false
	}
	sub, ok := doc[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(sub, rest)
}

func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	case nil, string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func compare(a, b any) (int, bool) {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return cmp.Compare(x, y), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	}
	return 0, false
}

func equal(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareForSort orders nil before every value and falls back to the
// printed form for incomparable types.
func compareForSort(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, ok := compare(a, b); ok {
		return c
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
