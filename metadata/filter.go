package metadata

import "strings"

// Operator represents a comparison operator for filtering.
type Operator string

const (
	// OpEqual represents the equality operator.
	OpEqual Operator = "eq"
	// OpNotEqual represents the inequality operator.
	OpNotEqual Operator = "ne"
	// OpGreaterThan represents the greater than operator.
	OpGreaterThan Operator = "gt"
	// OpGreaterEqual represents the greater than or equal operator.
	OpGreaterEqual Operator = "gte"
	// OpLessThan represents the less than operator.
	OpLessThan Operator = "lt"
	// OpLessEqual represents the less than or equal operator.
	OpLessEqual Operator = "lte"
	// OpIn represents the in list operator.
	OpIn Operator = "in"
	// OpContains represents the contains substring operator.
	OpContains Operator = "contains"
)

// Filter represents a single metadata filter condition.
type Filter struct {
	Key      string   `json:"key"`
	Operator Operator `json:"op"`
	Value    Value    `json:"value"`
}

// FilterSet represents a set of filters that must all match (AND logic).
type FilterSet struct {
	Filters []Filter `json:"filters"`
}

// NewFilterSet creates a new filter set.
func NewFilterSet(filters ...Filter) *FilterSet {
	return &FilterSet{Filters: filters}
}

// Add appends filters and returns the set for chaining.
func (fs *FilterSet) Add(filters ...Filter) *FilterSet {
	fs.Filters = append(fs.Filters, filters...)
	return fs
}

// Empty reports whether the set contains no filters.
func (fs *FilterSet) Empty() bool {
	return fs == nil || len(fs.Filters) == 0
}

// Eq builds an equality filter.
func Eq(key string, value any) Filter {
	return Filter{Key: key, Operator: OpEqual, Value: MustValue(value)}
}

// Ne builds an inequality filter.
func Ne(key string, value any) Filter {
	return Filter{Key: key, Operator: OpNotEqual, Value: MustValue(value)}
}

// Gt builds a greater-than filter.
func Gt(key string, value any) Filter {
	return Filter{Key: key, Operator: OpGreaterThan, Value: MustValue(value)}
}

// Gte builds a greater-than-or-equal filter.
func Gte(key string, value any) Filter {
	return Filter{Key: key, Operator: OpGreaterEqual, Value: MustValue(value)}
}

// Lt builds a less-than filter.
func Lt(key string, value any) Filter {
	return Filter{Key: key, Operator: OpLessThan, Value: MustValue(value)}
}

// Lte builds a less-than-or-equal filter.
func Lte(key string, value any) Filter {
	return Filter{Key: key, Operator: OpLessEqual, Value: MustValue(value)}
}

// In builds a set-membership filter.
func In(key string, values ...any) Filter {
	arr := make([]Value, len(values))
	for i, v := range values {
		arr[i] = MustValue(v)
	}
	return Filter{Key: key, Operator: OpIn, Value: Value{Kind: KindArray, A: arr}}
}

// Contains builds a substring filter for string values.
func Contains(key string, substr string) Filter {
	return Filter{Key: key, Operator: OpContains, Value: String(substr)}
}

// Range builds an inclusive numeric range as gte+lte filters.
// Either bound may be nil to leave the range open on that side.
func Range(key string, min, max any) []Filter {
	var filters []Filter
	if min != nil {
		filters = append(filters, Gte(key, min))
	}
	if max != nil {
		filters = append(filters, Lte(key, max))
	}
	return filters
}

// Matches checks if the provided metadata matches this filter.
func (f *Filter) Matches(doc Document) bool {
	value, exists := doc[f.Key]
	if !exists {
		return false
	}

	switch f.Operator {
	case OpEqual:
		return compareEqual(value, f.Value)
	case OpNotEqual:
		return !compareEqual(value, f.Value)
	case OpGreaterThan:
		return compareGreater(value, f.Value)
	case OpGreaterEqual:
		return compareGreater(value, f.Value) || compareEqual(value, f.Value)
	case OpLessThan:
		return compareLess(value, f.Value)
	case OpLessEqual:
		return compareLess(value, f.Value) || compareEqual(value, f.Value)
	case OpIn:
		return compareIn(value, f.Value)
	case OpContains:
		return compareContains(value, f.Value)
	default:
		return false
	}
}

// Matches checks if the provided metadata matches all filters in the set.
func (fs *FilterSet) Matches(doc Document) bool {
	for i := range fs.Filters {
		if !fs.Filters[i].Matches(doc) {
			return false
		}
	}
	return true
}

func compareEqual(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return false
	}

	if isNumber(a) && isNumber(b) {
		// Prefer exact int compare when possible.
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		return asFloat64(a) == asFloat64(b)
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindString:
		return a.S == b.S
	case KindBool:
		return a.B == b.B
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !compareEqual(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func compareGreater(a, b Value) bool {
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) > asFloat64(b)
}

func compareLess(a, b Value) bool {
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) < asFloat64(b)
}

func compareIn(a, b Value) bool {
	if b.Kind != KindArray {
		return false
	}
	for _, item := range b.A {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

func compareContains(a, b Value) bool {
	if a.Kind != KindString || b.Kind != KindString {
		return false
	}
	return strings.Contains(a.S, b.S)
}
