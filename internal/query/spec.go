package query

import (
	"maps"
	"sort"
	"strings"

	"github.com/roach88/vaultorm/internal/store"
)

// Spec is an immutable query specification.
type Spec struct {
	model   string
	filters map[string]any
	rng     *store.DateRange
	order   string
	limit   int
}

// New returns a Spec over every record of model.
func New(model string) Spec {
	return Spec{model: model}
}

// Model returns the queried model name.
func (s Spec) Model() string { return s.model }

// Filter returns a Spec with filters merged in. A key already present is
// replaced.
func (s Spec) Filter(filters map[string]any) Spec {
	merged := make(map[string]any, len(s.filters)+len(filters))
	maps.Copy(merged, s.filters)
	maps.Copy(merged, filters)
	s.filters = merged
	return s
}

// Between returns a Spec restricted to partitions dated within r.
func (s Spec) Between(r store.DateRange) Spec {
	s.rng = &r
	return s
}

// OrderBy returns a Spec ordered by field, descending when prefixed by "-".
func (s Spec) OrderBy(field string) Spec {
	s.order = field
	return s
}

// Limit returns a Spec materializing at most n records. n <= 0 removes the
// limit.
func (s Spec) Limit(n int) Spec {
	if n < 0 {
		n = 0
	}
	s.limit = n
	return s
}

// Filters returns a copy of the raw filters.
func (s Spec) Filters() map[string]any { return maps.Clone(s.filters) }

// Range returns the date range, or nil.
func (s Spec) Range() *store.DateRange { return s.rng }

// Order returns the ordering field and direction.
func (s Spec) Order() (field string, desc bool) {
	if strings.HasPrefix(s.order, "-") {
		return s.order[1:], true
	}
	return s.order, false
}

// LimitN returns the limit, zero when unlimited.
func (s Spec) LimitN() int { return s.limit }

// Lookups returns the parsed filters sorted by key.
func (s Spec) Lookups() []Lookup {
	keys := make([]string, 0, len(s.filters))
	for k := range s.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Lookup, len(keys))
	for i, k := range keys {
		out[i] = ParseLookup(k, s.filters[k])
	}
	return out
}
