package cube

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arx-os/datakernel-cube/internal/aggregation"
	"github.com/arx-os/datakernel-cube/internal/buf"
	"github.com/arx-os/datakernel-cube/internal/chunkio"
	"github.com/arx-os/datakernel-cube/internal/predicate"
	"github.com/arx-os/datakernel-cube/internal/schema"
)

type fakeChunkStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeChunkStore() *fakeChunkStore { return &fakeChunkStore{data: map[string][]byte{}} }

func (f *fakeChunkStore) Put(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = append([]byte(nil), data...)
	return nil
}
func (f *fakeChunkStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}
func (f *fakeChunkStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

type fakeMetaStore struct {
	mu     sync.Mutex
	chunks map[string]map[uint64]*schema.Chunk
}

func newFakeMetaStore() *fakeMetaStore {
	return &fakeMetaStore{chunks: map[string]map[uint64]*schema.Chunk{}}
}

func (f *fakeMetaStore) PutChunk(_ context.Context, c *schema.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunks[c.AggregationID] == nil {
		f.chunks[c.AggregationID] = map[uint64]*schema.Chunk{}
	}
	f.chunks[c.AggregationID][c.ID] = c
	return nil
}
func (f *fakeMetaStore) DeleteChunk(_ context.Context, aggID string, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks[aggID], id)
	return nil
}
func (f *fakeMetaStore) ListChunks(_ context.Context, aggID string) ([]*schema.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*schema.Chunk
	for _, c := range f.chunks[aggID] {
		out = append(out, c)
	}
	return out, nil
}

type staticRun struct {
	rows []chunkio.Row
	pos  int
}

func (s *staticRun) Next() (chunkio.Row, error) {
	if s.pos >= len(s.rows) {
		return chunkio.Row{}, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}

func geoCube() *schema.Cube {
	c := schema.NewCube("sales")
	c.AddDimension(&schema.Dimension{Name: "continent", Type: schema.StringType})
	c.AddDimension(&schema.Dimension{Name: "country", Type: schema.StringType, Parent: "continent"})
	c.AddDimension(&schema.Dimension{Name: "region", Type: schema.StringType, Parent: "country"})
	c.AddMeasure(&schema.Measure{Name: "revenue", Type: schema.Float64Type})
	c.AddMeasure(&schema.Measure{Name: "orders", Type: schema.Float64Type})
	c.AddComputedMeasure(&schema.ComputedMeasure{
		Name: "avgOrderValue",
		Deps: []string{"revenue", "orders"},
		Eval: func(v map[string]float64) float64 {
			if v["orders"] == 0 {
				return 0
			}
			return v["revenue"] / v["orders"]
		},
	})
	return c
}

func newAgg(t *testing.T, id string, keys []string, measures []schema.MeasureAggregator, cube *schema.Cube, keyTypes []*schema.FieldType, rows []chunkio.Row) *aggregation.Aggregation {
	t.Helper()
	cfg := &schema.AggregationConfig{
		ID:                 id,
		Keys:               keys,
		Measures:           measures,
		Predicate:          predicate.AlwaysTrue,
		PartitioningKeyLen: len(keys),
		ChunkRecordLimit:   1000,
	}
	rs := chunkio.RowSchema{KeyTypes: keyTypes, MeasureTypes: make([]*schema.FieldType, len(measures))}
	for i := range measures {
		rs.MeasureTypes[i] = schema.Float64Type
	}
	agg := aggregation.New(cfg, cube, rs, buf.NewPool(1, 1<<20), newFakeChunkStore(), newFakeMetaStore())
	require.NoError(t, agg.Consume(context.Background(), &staticRun{rows: rows}, 1))
	return agg
}

func row(key []any, measures []any) chunkio.Row { return chunkio.Row{Key: key, Measures: measures} }

func TestSingleAggregationFastPath(t *testing.T) {
	cube := geoCube()
	revenue := newAgg(t, "agg-revenue", []string{"country"},
		[]schema.MeasureAggregator{{Measure: "revenue", Aggregator: schema.Sum}},
		cube, []*schema.FieldType{schema.StringType}, []chunkio.Row{
			row([]any{"DE"}, []any{10.0}),
			row([]any{"DE"}, []any{5.0}),
			row([]any{"FR"}, []any{20.0}),
		})

	planner := NewPlanner(cube, nil)
	planner.Register(revenue)

	result, err := planner.Query(context.Background(), CubeQuery{
		Attributes: []string{"country"},
		Measures:   []string{"revenue"},
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Empty(t, result.DroppedMeasures)
	assert.False(t, result.Incomplete)

	byCountry := map[string]float64{}
	for _, r := range result.Rows {
		byCountry[r.Attributes["country"].(string)] = r.Measures["revenue"].(float64)
	}
	assert.Equal(t, 15.0, byCountry["DE"])
	assert.Equal(t, 20.0, byCountry["FR"])
	assert.Equal(t, 35.0, result.Totals["revenue"])
}

func TestMultiAggregationFanInUnionsMeasures(t *testing.T) {
	cube := geoCube()
	revenue := newAgg(t, "agg-revenue", []string{"country"},
		[]schema.MeasureAggregator{{Measure: "revenue", Aggregator: schema.Sum}},
		cube, []*schema.FieldType{schema.StringType}, []chunkio.Row{
			row([]any{"DE"}, []any{10.0}),
			row([]any{"FR"}, []any{20.0}),
		})
	orders := newAgg(t, "agg-orders", []string{"country"},
		[]schema.MeasureAggregator{{Measure: "orders", Aggregator: schema.Sum}},
		cube, []*schema.FieldType{schema.StringType}, []chunkio.Row{
			row([]any{"DE"}, []any{2.0}),
			row([]any{"FR"}, []any{4.0}),
		})

	planner := NewPlanner(cube, nil)
	planner.Register(revenue)
	planner.Register(orders)

	result, err := planner.Query(context.Background(), CubeQuery{
		Attributes: []string{"country"},
		Measures:   []string{"revenue", "orders", "avgOrderValue"},
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)

	for _, r := range result.Rows {
		assert.Contains(t, r.Measures, "revenue")
		assert.Contains(t, r.Measures, "orders")
		assert.Contains(t, r.Measures, "avgOrderValue")
		if r.Attributes["country"] == "DE" {
			assert.Equal(t, 10.0, r.Measures["revenue"])
			assert.Equal(t, 2.0, r.Measures["orders"])
			assert.Equal(t, 5.0, r.Measures["avgOrderValue"])
		}
	}
	assert.Equal(t, 30.0, result.Totals["revenue"])
	assert.Equal(t, 6.0, result.Totals["orders"])
}

func TestUnknownMeasureIsDropped(t *testing.T) {
	cube := geoCube()
	revenue := newAgg(t, "agg-revenue", []string{"country"},
		[]schema.MeasureAggregator{{Measure: "revenue", Aggregator: schema.Sum}},
		cube, []*schema.FieldType{schema.StringType}, []chunkio.Row{row([]any{"DE"}, []any{10.0})})

	planner := NewPlanner(cube, nil)
	planner.Register(revenue)

	result, err := planner.Query(context.Background(), CubeQuery{
		Attributes: []string{"country"},
		Measures:   []string{"revenue", "nonexistent"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"nonexistent"}, result.DroppedMeasures)
}

func TestAttributeExpansionFollowsDrillChain(t *testing.T) {
	cube := geoCube()
	revenue := newAgg(t, "agg-revenue", []string{"continent", "country", "region"},
		[]schema.MeasureAggregator{{Measure: "revenue", Aggregator: schema.Sum}},
		cube, []*schema.FieldType{schema.StringType, schema.StringType, schema.StringType}, []chunkio.Row{
			row([]any{"EU", "DE", "Bavaria"}, []any{10.0}),
		})

	planner := NewPlanner(cube, nil)
	planner.Register(revenue)

	result, err := planner.Query(context.Background(), CubeQuery{
		Attributes: []string{"region"},
		Measures:   []string{"revenue"},
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "EU", result.Rows[0].Attributes["continent"])
	assert.Equal(t, "DE", result.Rows[0].Attributes["country"])
	assert.Equal(t, "Bavaria", result.Rows[0].Attributes["region"])
}

func TestOrderingDescendingWithLimit(t *testing.T) {
	cube := geoCube()
	revenue := newAgg(t, "agg-revenue", []string{"country"},
		[]schema.MeasureAggregator{{Measure: "revenue", Aggregator: schema.Sum}},
		cube, []*schema.FieldType{schema.StringType}, []chunkio.Row{
			row([]any{"DE"}, []any{10.0}),
			row([]any{"FR"}, []any{30.0}),
			row([]any{"IT"}, []any{20.0}),
		})

	planner := NewPlanner(cube, nil)
	planner.Register(revenue)

	result, err := planner.Query(context.Background(), CubeQuery{
		Attributes: []string{"country"},
		Measures:   []string{"revenue"},
		Orderings:  []Ordering{{Field: "revenue", Descending: true}},
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, "FR", result.Rows[0].Attributes["country"])
	assert.Equal(t, "IT", result.Rows[1].Attributes["country"])
}

func TestHavingFiltersLowRevenue(t *testing.T) {
	cube := geoCube()
	revenue := newAgg(t, "agg-revenue", []string{"country"},
		[]schema.MeasureAggregator{{Measure: "revenue", Aggregator: schema.Sum}},
		cube, []*schema.FieldType{schema.StringType}, []chunkio.Row{
			row([]any{"DE"}, []any{5.0}),
			row([]any{"FR"}, []any{50.0}),
		})

	planner := NewPlanner(cube, nil)
	planner.Register(revenue)

	result, err := planner.Query(context.Background(), CubeQuery{
		Attributes: []string{"country"},
		Measures:   []string{"revenue"},
		Having:     predicate.Between("revenue", 10.0, 1000.0),
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "FR", result.Rows[0].Attributes["country"])
}

func TestDrillDownsSurfaceFinerAggregations(t *testing.T) {
	cube := geoCube()
	byCountry := newAgg(t, "agg-country", []string{"country"},
		[]schema.MeasureAggregator{{Measure: "revenue", Aggregator: schema.Sum}},
		cube, []*schema.FieldType{schema.StringType}, []chunkio.Row{row([]any{"DE"}, []any{10.0})})
	byRegion := newAgg(t, "agg-region", []string{"country", "region"},
		[]schema.MeasureAggregator{{Measure: "revenue", Aggregator: schema.Sum}},
		cube, []*schema.FieldType{schema.StringType, schema.StringType}, []chunkio.Row{
			row([]any{"DE", "Bavaria"}, []any{10.0}),
		})

	planner := NewPlanner(cube, nil)
	planner.Register(byCountry)
	planner.Register(byRegion)

	result, err := planner.Query(context.Background(), CubeQuery{
		Attributes: []string{"country"},
		Measures:   []string{"revenue"},
	})
	require.NoError(t, err)
	require.Len(t, result.DrillDowns, 1)
	assert.Equal(t, []string{"region"}, result.DrillDowns[0])
}
