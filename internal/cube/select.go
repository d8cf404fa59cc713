package cube

import (
	"sort"

	"github.com/arx-os/datakernel-cube/internal/aggregation"
	"github.com/arx-os/datakernel-cube/internal/predicate"
	"github.com/arx-os/datakernel-cube/internal/schema"
)

// eligibleAggregations enumerates registered aggregations whose keys are a
// superset of D and whose predicate, conjoined with where, does not
// simplify to AlwaysFalse (spec.md §4.6's aggregation-selection rule).
func (p *Planner) eligibleAggregations(D []string, where *predicate.P) []*aggregation.Aggregation {
	var out []*aggregation.Aggregation
	for _, id := range p.Cube.AggregationOrder {
		cfg := p.Cube.Aggregations[id]
		if !isSubset(D, cfg.Keys) {
			continue
		}
		agg, ok := p.aggregations[id]
		if !ok {
			continue
		}
		combined := predicate.And(cfg.Predicate, orAlwaysTrue(where))
		if predicate.Simplify(combined, p.Cube).Kind == predicate.KindAlwaysFalse {
			continue
		}
		out = append(out, agg)
	}
	return out
}

func orAlwaysTrue(p *predicate.P) *predicate.P {
	if p == nil {
		return predicate.AlwaysTrue
	}
	return p
}

// rankByCost sorts aggregations by estimateCost ascending, breaking ties
// by ascending aggregation id (DESIGN.md Open Question (a)).
func rankByCost(aggs []*aggregation.Aggregation) {
	sort.Slice(aggs, func(i, j int) bool {
		ci, cj := aggs[i].EstimateCost(nil, nil), aggs[j].EstimateCost(nil, nil)
		if ci != cj {
			return ci < cj
		}
		return aggs[i].Config.ID < aggs[j].Config.ID
	})
}

// intersectMeasures returns, in a deterministic (sorted) order, the
// measures in cfgMeasures that are still pending.
func intersectMeasures(pending map[string]struct{}, cfgMeasures []schema.MeasureAggregator) []string {
	var out []string
	for _, ma := range cfgMeasures {
		if _, ok := pending[ma.Measure]; ok {
			out = append(out, ma.Measure)
		}
	}
	sort.Strings(out)
	return out
}
