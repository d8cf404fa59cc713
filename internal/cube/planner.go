package cube

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arx-os/datakernel-cube/internal/aggregation"
	"github.com/arx-os/datakernel-cube/internal/logging"
	"github.com/arx-os/datakernel-cube/internal/metrics"
	"github.com/arx-os/datakernel-cube/internal/reducer"
	"github.com/arx-os/datakernel-cube/internal/schema"
)

// Planner assembles and runs reducer pipelines over a schema.Cube's
// registered aggregations (component C6, spec.md §4.6).
type Planner struct {
	Cube         *schema.Cube
	Resolver     AttributeResolver
	Metrics      *metrics.Collector
	aggregations map[string]*aggregation.Aggregation
}

func NewPlanner(c *schema.Cube, resolver AttributeResolver) *Planner {
	return &Planner{Cube: c, Resolver: resolver, aggregations: map[string]*aggregation.Aggregation{}}
}

// Register binds a live aggregation runtime to its schema.AggregationConfig
// so the planner can route sub-queries to it.
func (p *Planner) Register(agg *aggregation.Aggregation) {
	p.Cube.AddAggregation(agg.Config)
	p.aggregations[agg.Config.ID] = agg
}

type subQueryPlan struct {
	agg      *aggregation.Aggregation
	measures []string
}

// Query runs q end to end: attribute expansion, compatible-measure
// derivation, aggregation selection, reducer pipeline assembly, totals and
// drill-down synthesis, then ordering/limit/offset (spec.md §4.6).
func (p *Planner) Query(ctx context.Context, q CubeQuery) (*QueryResult, error) {
	queryID := uuid.New().String()
	start := time.Now()
	defer func() {
		p.Metrics.ObserveQueryLatency(p.Cube.Name, time.Since(start))
	}()

	requiredDims, resolvedAttrs, err := p.expandAttributes(q.Attributes)
	if err != nil {
		return nil, err
	}

	dimSet := cloneSet(requiredDims)
	for d := range whereDimensions(q.Where) {
		dimSet[d] = struct{}{}
	}
	D := sortedKeys(dimSet)

	storedMeasures, computedMeasures, dropped := p.compatibleMeasures(D, q.Measures)

	requiredStored := map[string]struct{}{}
	for _, m := range storedMeasures {
		requiredStored[m] = struct{}{}
	}
	for _, name := range computedMeasures {
		for _, dep := range p.Cube.ComputedMeasures[name].Deps {
			requiredStored[dep] = struct{}{}
		}
	}

	eligible := p.eligibleAggregations(D, q.Where)
	rankByCost(eligible)

	pending := cloneSet(requiredStored)
	var subQueries []subQueryPlan
	for _, agg := range eligible {
		if len(pending) == 0 {
			break
		}
		covered := intersectMeasures(pending, agg.Config.Measures)
		if len(covered) == 0 {
			continue
		}
		subQueries = append(subQueries, subQueryPlan{agg: agg, measures: covered})
		for _, m := range covered {
			delete(pending, m)
		}
	}
	incomplete := len(pending) > 0

	projected := make([][]reducer.Row, 0, len(subQueries))
	for _, sq := range subQueries {
		node, err := sq.agg.Query(ctx, nil, nil, q.Where, sq.measures)
		if err != nil {
			return nil, err
		}
		rows, err := drainAll(ctx, node)
		if err != nil {
			return nil, err
		}
		projected = append(projected, projectToDimensions(rows, p.Cube, sq.agg.Config.Keys, D, sq.agg.Config.Measures))
	}

	var merged []reducer.Row
	switch len(projected) {
	case 0:
		merged = nil
	case 1:
		// Single-aggregation fast path (spec.md §4.6): no k-way reducer.
		merged = projected[0]
	default:
		ins := make([]reducer.Node, len(projected))
		for i, rows := range projected {
			ins[i] = reducer.NewSliceSource(rows)
		}
		mr := reducer.NewMergeReducer(ins, dimTupleCompare(p.Cube, D), reducer.UnionValues)
		merged, err = drainAll(ctx, mr)
		if err != nil {
			return nil, err
		}
	}

	totals := p.computeTotals(merged, storedMeasures, computedMeasures)

	finalRows := p.finalizeStoredMeasures(merged, storedMeasures)
	finalRows = p.applyComputedMeasures(finalRows, computedMeasures)
	finalRows = p.filterHaving(finalRows, q.Having)

	resultRows, err := p.resolveAttributes(ctx, finalRows, D, resolvedAttrs)
	if err != nil {
		return nil, err
	}

	applied := nonElidedOrderings(q.Orderings, q.Where, p.Cube)
	resultRows = sortResultRows(resultRows, applied)

	total := len(resultRows)
	rangeStart, rangeEnd := clampOffsetLimit(q.Offset, q.Limit, total)

	logging.WithQuery(queryID).Debug("query planned",
		zap.Int("row_count", len(resultRows)),
	)

	return &QueryResult{
		QueryID:          queryID,
		Rows:             resultRows[rangeStart:rangeEnd],
		Totals:           totals,
		TotalCount:       total,
		Attributes:       q.Attributes,
		Measures:         q.Measures,
		DroppedMeasures:  dropped,
		AppliedOrderings: applied,
		DrillDowns:       p.drillDowns(D, eligible),
		Incomplete:       incomplete,
	}, nil
}

// resolveAttributes builds each output row's attribute map: D-dimension
// values read straight from the key tuple, plus any resolver-backed
// attributes fetched in one batched call.
func (p *Planner) resolveAttributes(ctx context.Context, rows []reducer.Row, D []string, resolvedAttrs []string) ([]ResultRow, error) {
	var resolvedValues []map[string]any
	if len(resolvedAttrs) > 0 && p.Resolver != nil {
		capability := p.Resolver.Capability()
		keyValues := make([][]any, len(rows))
		for i, r := range rows {
			tuple := make([]any, len(capability.KeyDims))
			for j, d := range capability.KeyDims {
				if idx := indexOfString(D, d); idx >= 0 {
					tuple[j] = r.Key[idx]
				}
			}
			keyValues[i] = tuple
		}
		var err error
		resolvedValues, err = p.Resolver.Resolve(ctx, capability.KeyDims, keyValues)
		if err != nil {
			return nil, err
		}
	}

	results := make([]ResultRow, len(rows))
	for i, r := range rows {
		attrs := make(map[string]any, len(D)+len(resolvedAttrs))
		for j, d := range D {
			attrs[d] = r.Key[j]
		}
		if i < len(resolvedValues) {
			for _, name := range resolvedAttrs {
				if v, ok := resolvedValues[i][name]; ok {
					attrs[name] = v
				}
			}
		}
		measures := make(map[string]any, len(r.Values))
		for k, v := range r.Values {
			measures[k] = v
		}
		results[i] = ResultRow{Attributes: attrs, Measures: measures}
	}
	return results, nil
}

// drillDowns returns, for every eligible aggregation, the key dimensions it
// carries beyond D, keeping only chains that are not a strict prefix of a
// longer chain already found (spec.md §4.6).
func (p *Planner) drillDowns(D []string, eligible []*aggregation.Aggregation) [][]string {
	dSet := map[string]struct{}{}
	for _, d := range D {
		dSet[d] = struct{}{}
	}
	var chains [][]string
	for _, agg := range eligible {
		var extra []string
		for _, k := range agg.Config.Keys {
			if _, ok := dSet[k]; !ok {
				extra = append(extra, k)
			}
		}
		if len(extra) > 0 {
			chains = append(chains, extra)
		}
	}
	return longestChainsOnly(chains)
}

func longestChainsOnly(chains [][]string) [][]string {
	var out [][]string
	for i, c := range chains {
		strictPrefix := false
		for j, other := range chains {
			if i == j || len(other) <= len(c) {
				continue
			}
			if isPrefix(c, other) {
				strictPrefix = true
				break
			}
		}
		if !strictPrefix {
			out = append(out, c)
		}
	}
	return out
}

func isPrefix(a, b []string) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
