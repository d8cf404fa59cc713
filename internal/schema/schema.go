package schema

import (
	"fmt"

	"github.com/arx-os/datakernel-cube/internal/predicate"
)

// Dimension is a groupable attribute, optionally parented by a coarser
// attribute to form a drill-down chain (spec.md §3's "region -> country ->
// continent" example).
type Dimension struct {
	Name   string
	Type   *FieldType
	Parent string // "" if this is a root attribute
}

// Measure is a raw numeric column a cube ingests and an AggregationConfig
// can fold with an Aggregator.
type Measure struct {
	Name string
	Type *FieldType
}

// ComputedMeasure derives a result column from other measures already
// present in a query's result row (spec.md §3, e.g. "avg = sum / count").
type ComputedMeasure struct {
	Name string
	Deps []string
	Eval func(values map[string]float64) float64
}

// MeasureAggregator pairs a raw measure with the Aggregator an
// AggregationConfig uses to fold it.
type MeasureAggregator struct {
	Measure    string
	Aggregator *Aggregator
}

// AggregationConfig describes one materialized projection: which dimensions
// it is keyed by (in order, most-significant first), which measures it
// stores pre-aggregated, an optional filter predicate restricting the
// records it covers, and the storage/consolidation tuning spec.md §5
// associates with an aggregation.
type AggregationConfig struct {
	ID    string
	Keys  []string
	Measures []MeasureAggregator

	// Predicate restricts which ingested records this aggregation covers;
	// AlwaysTrue if it covers every record.
	Predicate *predicate.P

	// PartitioningKeyLen is the prefix length of Keys within which chunks
	// must not straddle a boundary, per spec.md §4.3/§4.4's chunk-writer
	// contract.
	PartitioningKeyLen int

	ChunkRecordLimit       int
	SorterRecordsInMemory  int
	MaxChunksPerConsolidation int
}

// Cube is the full schema: the dimension/measure universe plus the set of
// materialized aggregations a query can be answered from.
type Cube struct {
	Name             string
	Dimensions       map[string]*Dimension
	Measures         map[string]*Measure
	ComputedMeasures map[string]*ComputedMeasure
	Aggregations     map[string]*AggregationConfig
	AggregationOrder []string // insertion order, for deterministic iteration
}

// NewCube returns an empty cube schema ready for dimensions/measures to be
// added.
func NewCube(name string) *Cube {
	return &Cube{
		Name:             name,
		Dimensions:       map[string]*Dimension{},
		Measures:         map[string]*Measure{},
		ComputedMeasures: map[string]*ComputedMeasure{},
		Aggregations:     map[string]*AggregationConfig{},
	}
}

// AddDimension registers a dimension, optionally nested under parent.
func (c *Cube) AddDimension(d *Dimension) { c.Dimensions[d.Name] = d }

// AddMeasure registers a raw measure.
func (c *Cube) AddMeasure(m *Measure) { c.Measures[m.Name] = m }

// AddComputedMeasure registers a derived measure.
func (c *Cube) AddComputedMeasure(m *ComputedMeasure) { c.ComputedMeasures[m.Name] = m }

// AddAggregation registers a materialized aggregation, preserving
// insertion order so the planner's tie-break-by-id rule is reproducible
// even before ids are lexically compared.
func (c *Cube) AddAggregation(a *AggregationConfig) {
	if _, exists := c.Aggregations[a.ID]; !exists {
		c.AggregationOrder = append(c.AggregationOrder, a.ID)
	}
	c.Aggregations[a.ID] = a
}

// Compare implements predicate.Comparer by dispatching to the registered
// dimension or measure's FieldType.
func (c *Cube) Compare(field string, a, b any) int {
	if d, ok := c.Dimensions[field]; ok {
		return d.Type.Compare(a, b)
	}
	if m, ok := c.Measures[field]; ok {
		return m.Type.Compare(a, b)
	}
	panic(fmt.Sprintf("schema: unknown field %q", field))
}

// DrillPath returns the chain of dimensions from root down to name,
// inclusive, following Parent links. E.g. for continent<-country<-region,
// DrillPath("region") is [continent, country, region].
func (c *Cube) DrillPath(name string) []string {
	var chain []string
	cur := name
	for cur != "" {
		chain = append([]string{cur}, chain...)
		d, ok := c.Dimensions[cur]
		if !ok {
			break
		}
		cur = d.Parent
	}
	return chain
}

// Children returns the dimensions directly parented by name.
func (c *Cube) Children(name string) []string {
	var out []string
	for _, d := range c.Dimensions {
		if d.Parent == name {
			out = append(out, d.Name)
		}
	}
	return out
}
