package cube

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arx-os/datakernel-cube/internal/reducer"
	"github.com/arx-os/datakernel-cube/internal/schema"
)

// projectToDimensions re-groups rows keyed by sourceKeys (one aggregation's
// own key order, which may carry more dimensions than the query needs) onto
// targetDims (the query's combined dimension set D), folding any rows that
// collapse onto the same D-tuple via each measure's Combine. The chosen
// aggregation's own chunk sort order need not already be grouped by D, so
// this materializes and regroups in memory rather than streaming -- an
// accepted cost for a sub-query whose row count is bounded by one
// aggregation's chunk set.
func projectToDimensions(rows []reducer.Row, cube *schema.Cube, sourceKeys, targetDims []string, measureCfgs []schema.MeasureAggregator) []reducer.Row {
	type group struct {
		key    []any
		values map[string]any
	}
	groups := map[string]*group{}
	var order []string

	for _, r := range rows {
		keyTuple := make([]any, len(targetDims))
		for i, d := range targetDims {
			if idx := indexOfString(sourceKeys, d); idx >= 0 {
				keyTuple[i] = r.Key[idx]
			}
		}
		gk := groupKeyString(keyTuple)
		g, ok := groups[gk]
		if !ok {
			values := make(map[string]any, len(r.Values))
			for k, v := range r.Values {
				values[k] = v
			}
			groups[gk] = &group{key: keyTuple, values: values}
			order = append(order, gk)
			continue
		}
		for k, v := range r.Values {
			if existing, has := g.values[k]; has {
				if agg := findMeasureAggregator(measureCfgs, k); agg != nil {
					g.values[k] = agg.Combine(existing, v)
					continue
				}
			}
			g.values[k] = v
		}
	}

	out := make([]reducer.Row, 0, len(groups))
	for _, gk := range order {
		g := groups[gk]
		out = append(out, reducer.Row{Key: g.key, Values: g.values})
	}
	cmp := dimTupleCompare(cube, targetDims)
	sort.Slice(out, func(i, j int) bool { return cmp(out[i].Key, out[j].Key) < 0 })
	return out
}

func findMeasureAggregator(cfgs []schema.MeasureAggregator, name string) *schema.Aggregator {
	for _, c := range cfgs {
		if c.Measure == name {
			return c.Aggregator
		}
	}
	return nil
}

func groupKeyString(tuple []any) string {
	var b strings.Builder
	for _, v := range tuple {
		fmt.Fprintf(&b, "%v\x1f", v)
	}
	return b.String()
}
