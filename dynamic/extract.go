package dynamic

import (
	"fmt"
	"reflect"

	"github.com/xraph/strata"
	"github.com/xraph/strata/aggregate"
	"github.com/xraph/strata/id"
	"github.com/xraph/strata/operator"
	"github.com/xraph/strata/repository"
)

// ExtractRoutingID finds the routing id field in the first argument. It
// looks at the argument's own field, then at the first element of a slice
// argument, then at the where clauses of find options. Native identifier
// values are formatted with codec. No I/O happens; a miss returns
// strata.ErrRouting.
func ExtractRoutingID(codec id.Codec, field string, args ...any) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: no arguments to route on", strata.ErrRouting)
	}
	first := args[0]

	if v := direct(codec, first, field); v != "" {
		return v, nil
	}
	if elem, ok := firstElem(first); ok {
		if v := direct(codec, elem, field); v != "" {
			return v, nil
		}
	}
	for _, w := range wheres(first) {
		if v := direct(codec, w, field); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s not found in %T", strata.ErrRouting, field, first)
}

func direct(codec id.Codec, arg any, field string) string {
	var v any
	switch a := arg.(type) {
	case nil:
		return ""
	case map[string]any:
		v = a[field]
	case aggregate.Aggregate:
		if rv := reflect.ValueOf(a); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return ""
		}
		if a.Base() == nil {
			return ""
		}
		v, _ = a.Base().Get(field)
	default:
		return ""
	}

	switch s := v.(type) {
	case nil, operator.Node:
		return ""
	case string:
		return s
	}
	if codec != nil {
		if s, ok := codec.Format(v); ok {
			return s
		}
	}
	return ""
}

func firstElem(arg any) (any, bool) {
	if arg == nil {
		return nil, false
	}
	rv := reflect.ValueOf(arg)
	if rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return nil, false
	}
	return rv.Index(0).Interface(), true
}

func wheres(arg any) []map[string]any {
	switch a := arg.(type) {
	case repository.FindOptions:
		return a.Where
	case *repository.FindOptions:
		if a != nil {
			return a.Where
		}
	}
	return nil
}
