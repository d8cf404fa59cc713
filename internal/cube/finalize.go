package cube

import (
	"context"
	"io"

	"github.com/arx-os/datakernel-cube/internal/predicate"
	"github.com/arx-os/datakernel-cube/internal/reducer"
)

// finalizeStoredMeasures applies each stored measure's Aggregator.Finalize
// to the merged (still-accumulator-shaped) value exactly once, at the
// pipeline's final stage -- DESIGN.md's Open Question (c) decision.
func (p *Planner) finalizeStoredMeasures(rows []reducer.Row, storedMeasures []string) []reducer.Row {
	out := make([]reducer.Row, len(rows))
	for i, r := range rows {
		values := make(map[string]any, len(r.Values))
		for k, v := range r.Values {
			values[k] = v
		}
		for _, m := range storedMeasures {
			if v, ok := values[m]; ok {
				if agg := p.aggregatorFor(m); agg != nil {
					values[m] = agg.Finalize(v)
				}
			}
		}
		out[i] = reducer.Row{Key: r.Key, Values: values}
	}
	return out
}

// applyComputedMeasures evaluates every requested computed measure from its
// (already-finalized) stored dependencies.
func (p *Planner) applyComputedMeasures(rows []reducer.Row, computedMeasures []string) []reducer.Row {
	if len(computedMeasures) == 0 {
		return rows
	}
	out := make([]reducer.Row, len(rows))
	for i, r := range rows {
		values := make(map[string]any, len(r.Values)+len(computedMeasures))
		for k, v := range r.Values {
			values[k] = v
		}
		for _, name := range computedMeasures {
			cm := p.Cube.ComputedMeasures[name]
			deps := make(map[string]float64, len(cm.Deps))
			for _, dep := range cm.Deps {
				deps[dep] = toFloat64(values[dep])
			}
			values[name] = cm.Eval(deps)
		}
		out[i] = reducer.Row{Key: r.Key, Values: values}
	}
	return out
}

// valueRecord adapts a Row's measure-value map into a predicate.Record so
// the having filter can reuse the predicate engine.
type valueRecord struct{ values map[string]any }

func (v *valueRecord) Get(name string) (any, bool) {
	val, ok := v.values[name]
	return val, ok
}

// numericComparer treats every having-filter field as a float64: having
// predicates in this engine only ever reference measures, which this
// planner always hands downstream as numeric values (stored measure
// accumulators are numeric for every aggregator this codec can persist --
// see DESIGN.md's Last/HLL scope note -- and computed measures are
// float64 by construction).
type numericComparer struct{}

func (numericComparer) Compare(_ string, a, b any) int {
	av, bv := toFloat64(a), toFloat64(b)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

func (p *Planner) filterHaving(rows []reducer.Row, having *predicate.P) []reducer.Row {
	if having == nil {
		return rows
	}
	var out []reducer.Row
	for _, r := range rows {
		if predicate.Matches(having, &valueRecord{values: r.Values}, numericComparer{}) {
			out = append(out, r)
		}
	}
	return out
}

// computeTotals reduces every un-finalized merged row through each stored
// measure's Zero/Combine/Finalize, then evaluates computed-measure totals
// from the finalized stored totals -- spec.md §4.6's totals rule.
func (p *Planner) computeTotals(rows []reducer.Row, storedMeasures, computedMeasures []string) map[string]any {
	totals := map[string]any{}
	for _, m := range storedMeasures {
		agg := p.aggregatorFor(m)
		if agg == nil {
			continue
		}
		acc := agg.Zero()
		for _, r := range rows {
			if v, ok := r.Values[m]; ok {
				acc = agg.Combine(acc, v)
			}
		}
		totals[m] = agg.Finalize(acc)
	}
	for _, name := range computedMeasures {
		cm := p.Cube.ComputedMeasures[name]
		deps := make(map[string]float64, len(cm.Deps))
		for _, dep := range cm.Deps {
			deps[dep] = toFloat64(totals[dep])
		}
		totals[name] = cm.Eval(deps)
	}
	return totals
}

// drainAll pulls every row from a Node until io.EOF.
func drainAll(ctx context.Context, n reducer.Node) ([]reducer.Row, error) {
	var out []reducer.Row
	for {
		row, err := n.Produce(ctx)
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, err
		}
		out = append(out, row)
	}
}
