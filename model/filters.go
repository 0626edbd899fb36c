package model

// Op names a comparison operator accepted by the filter-expression builder.
type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpIn    Op = "in"
	OpMatch Op = "match" // case-insensitive substring match against the filter's field
)

// Filter is a single scalar-field constraint against an entity collection.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Filters is an ordered, ANDed list of Filter constraints. The zero value
// matches every entity in a collection.
type Filters []Filter

// Eq appends an equality filter and returns the receiver, for fluent
// construction in repository code.
func (f Filters) Eq(field string, value any) Filters {
	return append(f, Filter{Field: field, Op: OpEq, Value: value})
}

// Range appends a [gte, lte] range filter (either bound may be nil to
// leave that side open).
func (f Filters) Range(field string, gte, lte any) Filters {
	if gte != nil {
		f = append(f, Filter{Field: field, Op: OpGte, Value: gte})
	}
	if lte != nil {
		f = append(f, Filter{Field: field, Op: OpLte, Value: lte})
	}
	return f
}

// In appends a membership filter, skipped entirely when values is empty
// (the caller didn't ask for document scoping, not "match nothing").
func (f Filters) In(field string, values []string) Filters {
	if len(values) == 0 {
		return f
	}
	anyValues := make([]any, len(values))
	for i, v := range values {
		anyValues[i] = v
	}
	return append(f, Filter{Field: field, Op: OpIn, Value: anyValues})
}
