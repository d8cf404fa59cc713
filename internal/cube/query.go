// Package cube implements component C6 (spec.md §4.6): the query planner
// that turns a CubeQuery into a reducer pipeline over one or more
// registered aggregations, then runs totals/drill-down synthesis and
// ordering/limit/offset over the result.
package cube

import "github.com/arx-os/datakernel-cube/internal/predicate"

// Ordering names a result column to sort by; Field may be a dimension, a
// stored or computed measure, or a resolved attribute.
type Ordering struct {
	Field      string
	Descending bool
}

// CubeQuery is the planner's sole input (spec.md §4.6).
type CubeQuery struct {
	Attributes []string
	Measures   []string
	Where      *predicate.P
	Having     *predicate.P
	Orderings  []Ordering
	Offset     int
	Limit      int
}

// QueryResult is the planner's sole output (spec.md §6).
type QueryResult struct {
	QueryID          string
	Rows             []ResultRow
	Totals           map[string]any
	TotalCount       int
	Attributes       []string
	Measures         []string
	DroppedMeasures  []string
	AppliedOrderings []Ordering
	DrillDowns       [][]string
	Incomplete       bool
}

// ResultRow is one output row: attribute values keyed by name (dimensions
// plus resolver-supplied attributes) and finalized measure values keyed by
// name (stored measures post-Finalize, plus computed measures).
type ResultRow struct {
	Attributes map[string]any
	Measures   map[string]any
}
