package cube

import (
	"sort"

	"github.com/arx-os/datakernel-cube/internal/predicate"
)

// nonElidedOrderings drops orderings on a dimension the where predicate
// fully specifies (spec.md §4.6: such a column is constant across the
// whole result, so sorting by it is a no-op).
func nonElidedOrderings(orderings []Ordering, where *predicate.P, cmp predicate.Comparer) []Ordering {
	if where == nil || len(orderings) == 0 {
		return orderings
	}
	fixed := predicate.FullySpecified(where, cmp)
	var out []Ordering
	for _, o := range orderings {
		if _, ok := fixed[o.Field]; ok {
			continue
		}
		out = append(out, o)
	}
	return out
}

// sortResultRows stable-sorts rows by orderings in request order; if
// orderings is empty the rows keep the reducer's natural key order.
func sortResultRows(rows []ResultRow, orderings []Ordering) []ResultRow {
	if len(orderings) == 0 {
		return rows
	}
	out := append([]ResultRow(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range orderings {
			vi, vj := lookupField(out[i], o.Field), lookupField(out[j], o.Field)
			c := compareAny(vi, vj)
			if c == 0 {
				continue
			}
			if o.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out
}

func lookupField(r ResultRow, field string) any {
	if v, ok := r.Attributes[field]; ok {
		return v
	}
	return r.Measures[field]
}

func compareAny(a, b any) int {
	switch av := a.(type) {
	case float64:
		bv := toFloat64(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case int64:
		bv, _ := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case bool:
		bv, _ := b.(bool)
		if av == bv {
			return 0
		}
		if !av && bv {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// clampOffsetLimit applies spec.md §4.6's limit/offset rule: an offset at
// or past the total yields an empty page; a non-positive limit means "no
// limit".
func clampOffsetLimit(offset, limit, total int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return 0, 0
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return offset, end
}
