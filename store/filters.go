package store

import (
	"fmt"
	"strings"

	"github.com/dndtools/lorekeeper/model"
)

// sqlOp maps a model.Op to its sqlite operator. OpMatch is handled
// separately since it expands to a LIKE clause rather than a plain
// comparison.
var sqlOp = map[model.Op]string{
	model.OpEq:  "=",
	model.OpNeq: "!=",
	model.OpGt:  ">",
	model.OpGte: ">=",
	model.OpLt:  "<",
	model.OpLte: "<=",
}

// buildWhere renders filters against the indexed columns of entityType into
// a parameterized "AND"-joined WHERE fragment (without the WHERE keyword)
// plus its bind arguments. Filters on fields the collection doesn't index
// are skipped here and left for the caller to apply client-side against the
// decoded payload, per the cache's "no performance contract for
// non-indexed fields" rule.
func buildWhere(entityType model.EntityType, filters model.Filters) (clause string, args []any, clientSide model.Filters) {
	indexed := make(map[string]bool, len(indexedFields[entityType])+1)
	indexed["document"] = true
	for _, c := range indexedFields[entityType] {
		indexed[c.Name] = true
	}

	var parts []string
	for _, f := range filters {
		if !indexed[f.Field] {
			clientSide = append(clientSide, f)
			continue
		}

		if f.Op == model.OpIn {
			values, ok := f.Value.([]any)
			if !ok || len(values) == 0 {
				parts = append(parts, "0")
				continue
			}
			placeholders := make([]string, len(values))
			for i, v := range values {
				placeholders[i] = "?"
				args = append(args, v)
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", f.Field, strings.Join(placeholders, ",")))
			continue
		}

		if f.Op == model.OpMatch {
			parts = append(parts, fmt.Sprintf("%s LIKE ?", f.Field))
			args = append(args, "%"+fmt.Sprint(f.Value)+"%")
			continue
		}

		op, ok := sqlOp[f.Op]
		if !ok {
			op = "="
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", f.Field, op))
		args = append(args, f.Value)
	}

	return strings.Join(parts, " AND "), args, clientSide
}

// matchesClientSide reports whether an entity's decoded payload satisfies
// every filter that buildWhere couldn't push down to sqlite.
func matchesClientSide(e model.Entity, filters model.Filters) bool {
	for _, f := range filters {
		v, ok := e.Get(f.Field)
		if !ok {
			return false
		}
		if !matchOne(v, f) {
			return false
		}
	}
	return true
}

func matchOne(v any, f model.Filter) bool {
	switch f.Op {
	case model.OpEq:
		return fmt.Sprint(v) == fmt.Sprint(f.Value)
	case model.OpNeq:
		return fmt.Sprint(v) != fmt.Sprint(f.Value)
	case model.OpMatch:
		return strings.Contains(strings.ToLower(fmt.Sprint(v)), strings.ToLower(fmt.Sprint(f.Value)))
	case model.OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			return false
		}
		for _, want := range values {
			if fmt.Sprint(want) == fmt.Sprint(v) {
				return true
			}
		}
		return false
	case model.OpGt, model.OpGte, model.OpLt, model.OpLte:
		fv, ok1 := toFloat(v)
		want, ok2 := toFloat(f.Value)
		if !ok1 || !ok2 {
			return false
		}
		switch f.Op {
		case model.OpGt:
			return fv > want
		case model.OpGte:
			return fv >= want
		case model.OpLt:
			return fv < want
		default:
			return fv <= want
		}
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
