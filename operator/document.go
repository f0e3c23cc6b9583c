package operator

import (
	"regexp"
	"strings"
)

// ToDocument translates a where-object into the document-store filter
// dialect. The "id" field is renamed to idKey, nested where-objects are
// translated recursively and plain values pass through.
func ToDocument(where map[string]any, idKey string) map[string]any {
	out := make(map[string]any, len(where))
	for key, val := range where {
		field := key
		if key == "id" {
			field = idKey
		}

		switch v := val.(type) {
		case Node:
			switch v.kind {
			case KindOr:
				clauses := fieldClauses(field, v)
				if existing, ok := out["$or"].([]any); ok {
					out["$or"] = append(existing, clauses...)
				} else {
					out["$or"] = clauses
				}
			case KindAnd:
				for _, c := range fieldClauses(field, v) {
					frag := c.(map[string]any)[field]
					if merged, ok := mergeFragment(out[field], frag); ok {
						out[field] = merged
						continue
					}
					existing, _ := out["$and"].([]any)
					out["$and"] = append(existing, c)
				}
			default:
				out[field] = Fragment(v)
			}
		case map[string]any:
			out[field] = ToDocument(v, idKey)
		default:
			out[field] = val
		}
	}
	return out
}

// ToDocumentAll translates a list of where-objects combined with OR. A
// single where-object is translated directly; several become
// {$and: [{$or: [...]}]}, leaving the top level free for tenant fields.
func ToDocumentAll(wheres []map[string]any, idKey string) map[string]any {
	switch len(wheres) {
	case 0:
		return map[string]any{}
	case 1:
		return ToDocument(wheres[0], idKey)
	}
	branches := make([]any, len(wheres))
	for i, w := range wheres {
		branches[i] = ToDocument(w, idKey)
	}
	return map[string]any{"$and": []any{map[string]any{"$or": branches}}}
}

// Fragment translates a single node into its filter fragment. Unknown kinds
// pass their operand through.
func Fragment(n Node) any {
	switch n.kind {
	case KindNot:
		return notFragment(n.value)
	case KindMoreThan:
		return map[string]any{"$gt": n.value}
	case KindLessThan:
		return map[string]any{"$lt": n.value}
	case KindMoreThanOrEqual:
		return map[string]any{"$gte": n.value}
	case KindLessThanOrEqual:
		return map[string]any{"$lte": n.value}
	case KindEqual:
		return map[string]any{"$eq": n.value}
	case KindBetween:
		r, _ := n.value.(Range)
		return map[string]any{"$gte": r.From, "$lte": r.To}
	case KindIn, KindAny, KindArrayOverlap:
		return map[string]any{"$in": n.value}
	case KindIsNull:
		return map[string]any{"$eq": nil}
	case KindLike:
		return map[string]any{"$regex": LikeToRegex(stringValue(n.value)), "$options": ""}
	case KindILike:
		return map[string]any{"$regex": LikeToRegex(stringValue(n.value)), "$options": "i"}
	case KindPatternMatch:
		p, _ := n.value.(Pattern)
		return map[string]any{"$regex": p.Expr, "$options": p.Options}
	case KindArrayContains:
		return map[string]any{"$all": n.value}
	case KindArrayContainedBy:
		return map[string]any{"$not": map[string]any{"$elemMatch": map[string]any{"$nin": n.value}}}
	default:
		return n.value
	}
}

func notFragment(inner any) any {
	node, ok := inner.(Node)
	if !ok {
		return map[string]any{"$ne": inner}
	}
	switch node.kind {
	case KindIn:
		return map[string]any{"$nin": node.value}
	case KindIsNull:
		return map[string]any{"$ne": nil}
	default:
		return map[string]any{"$not": Fragment(node)}
	}
}

// fieldClauses renders each operand of an or/and node as {field: fragment}.
func fieldClauses(field string, n Node) []any {
	ops, _ := n.value.([]Node)
	out := make([]any, len(ops))
	for i, op := range ops {
		out[i] = map[string]any{field: Fragment(op)}
	}
	return out
}

// mergeFragment combines two fragments for the same field, so
// And(MoreThan(1), LessThan(5)) yields {$gt: 1, $lt: 5}. It reports false
// when the fragments share an operator or either is not an operator map;
// the caller then keeps both under $and.
func mergeFragment(existing, next any) (any, bool) {
	if existing == nil {
		return next, true
	}
	prev, ok1 := existing.(map[string]any)
	add, ok2 := next.(map[string]any)
	if !ok1 || !ok2 {
		return nil, false
	}
	merged := make(map[string]any, len(prev)+len(add))
	for k, v := range prev {
		merged[k] = v
	}
	for k, v := range add {
		if _, dup := merged[k]; dup {
			return nil, false
		}
		merged[k] = v
	}
	return merged, true
}

// LikeToRegex converts a SQL LIKE pattern to an anchored regular expression:
// regex metacharacters are escaped, % becomes .* and _ becomes a single
// character.
func LikeToRegex(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return b.String()
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
