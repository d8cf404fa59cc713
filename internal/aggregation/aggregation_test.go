package aggregation

import (
	"context"
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arx-os/datakernel-cube/internal/buf"
	"github.com/arx-os/datakernel-cube/internal/chunkindex"
	"github.com/arx-os/datakernel-cube/internal/chunkio"
	"github.com/arx-os/datakernel-cube/internal/predicate"
	"github.com/arx-os/datakernel-cube/internal/schema"
)

type memChunkStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemChunkStore() *memChunkStore { return &memChunkStore{data: map[string][]byte{}} }

func (m *memChunkStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), data...)
	m.data[key] = cp
	return nil
}

func (m *memChunkStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memChunkStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type memMetaStore struct {
	mu     sync.Mutex
	chunks map[string]map[uint64]*schema.Chunk
}

func newMemMetaStore() *memMetaStore {
	return &memMetaStore{chunks: map[string]map[uint64]*schema.Chunk{}}
}

func (m *memMetaStore) PutChunk(_ context.Context, c *schema.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks[c.AggregationID] == nil {
		m.chunks[c.AggregationID] = map[uint64]*schema.Chunk{}
	}
	m.chunks[c.AggregationID][c.ID] = c
	return nil
}

func (m *memMetaStore) DeleteChunk(_ context.Context, aggID string, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks[aggID], id)
	return nil
}

func (m *memMetaStore) ListChunks(_ context.Context, aggID string) ([]*schema.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*schema.Chunk
	for _, c := range m.chunks[aggID] {
		out = append(out, c)
	}
	return out, nil
}

func testCube() *schema.Cube {
	c := schema.NewCube("sales")
	c.AddDimension(&schema.Dimension{Name: "region", Type: schema.StringType})
	c.AddMeasure(&schema.Measure{Name: "revenue", Type: schema.Float64Type})
	return c
}

func testRowSchema() chunkio.RowSchema {
	return chunkio.RowSchema{
		KeyTypes:     []*schema.FieldType{schema.StringType},
		MeasureTypes: []*schema.FieldType{schema.Float64Type},
	}
}

func rawRun(rows []chunkio.Row) chunkio.RunReader {
	return &staticRun{rows: rows}
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

func newTestAggregation(t *testing.T) (*Aggregation, *memChunkStore, *memMetaStore) {
	t.Helper()
	cube := testCube()
	cfg := &schema.AggregationConfig{
		ID:                     "agg-region-revenue",
		Keys:                   []string{"region"},
		Measures:               []schema.MeasureAggregator{{Measure: "revenue", Aggregator: schema.Sum}},
		Predicate:              predicate.AlwaysTrue,
		PartitioningKeyLen:     1,
		ChunkRecordLimit:       1000,
		MaxChunksPerConsolidation: 4,
	}
	cs := newMemChunkStore()
	ms := newMemMetaStore()
	agg := New(cfg, cube, testRowSchema(), buf.NewPool(1, 1<<20), cs, ms)
	return agg, cs, ms
}

func TestConsumeFoldsDuplicateKeysAndPublishesChunk(t *testing.T) {
	agg, _, ms := newTestAggregation(t)
	rows := []chunkio.Row{
		{Key: []any{"EU"}, Measures: []any{10.0}},
		{Key: []any{"EU"}, Measures: []any{5.0}},
		{Key: []any{"US"}, Measures: []any{20.0}},
	}
	require.NoError(t, agg.Consume(context.Background(), rawRun(rows), 1))

	chunks, err := ms.ListChunks(context.Background(), agg.Config.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, int64(2), chunks[0].RecordCount)

	live := agg.Chunks(nil, nil)
	require.Len(t, live, 1)
	assert.Equal(t, []any{"EU"}, live[0].MinKey)
	assert.Equal(t, []any{"US"}, live[0].MaxKey)
}

func TestEstimateCostReflectsIntersectingChunkCount(t *testing.T) {
	agg, _, _ := newTestAggregation(t)
	require.NoError(t, agg.Consume(context.Background(), rawRun([]chunkio.Row{
		{Key: []any{"EU"}, Measures: []any{1.0}},
	}), 1))
	require.NoError(t, agg.Consume(context.Background(), rawRun([]chunkio.Row{
		{Key: []any{"US"}, Measures: []any{1.0}},
	}), 1))

	assert.Equal(t, 2, agg.EstimateCost(nil, nil))
	assert.Equal(t, 1, agg.EstimateCost([]any{"EU"}, []any{"EU"}))
}

func TestConsolidationMergesChunksAndRetiresInputs(t *testing.T) {
	agg, _, ms := newTestAggregation(t)
	require.NoError(t, agg.Consume(context.Background(), rawRun([]chunkio.Row{
		{Key: []any{"EU"}, Measures: []any{10.0}},
	}), 1))
	require.NoError(t, agg.Consume(context.Background(), rawRun([]chunkio.Row{
		{Key: []any{"EU"}, Measures: []any{5.0}},
		{Key: []any{"US"}, Measures: []any{2.0}},
	}), 1))
	require.Equal(t, 2, agg.index.Len())

	claim, err := agg.StartConsolidation(chunkindex.StrategyHotSegment)
	require.NoError(t, err)
	out, err := claim.Commit(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].RecordCount)

	assert.Equal(t, 1, agg.index.Len())
	remaining, err := ms.ListChunks(context.Background(), agg.Config.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, out[0].ID, remaining[0].ID)
}

type fakeClaimRecorder struct {
	mu      sync.Mutex
	counter int
	active  map[string][]uint64
}

func newFakeClaimRecorder() *fakeClaimRecorder {
	return &fakeClaimRecorder{active: map[string][]uint64{}}
}

func (f *fakeClaimRecorder) RecordClaim(_ context.Context, aggregationID string, chunkIDs []uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	id := aggregationID + "-claim-" + strconv.Itoa(f.counter)
	f.active[id] = append([]uint64(nil), chunkIDs...)
	return id, nil
}

func (f *fakeClaimRecorder) ReleaseClaim(_ context.Context, claimID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, claimID)
	return nil
}

func TestConsolidationRecordsAndReleasesDurableClaim(t *testing.T) {
	agg, _, _ := newTestAggregation(t)
	recorder := newFakeClaimRecorder()
	agg.ClaimRecorder = recorder

	require.NoError(t, agg.Consume(context.Background(), rawRun([]chunkio.Row{
		{Key: []any{"EU"}, Measures: []any{10.0}},
	}), 1))
	require.NoError(t, agg.Consume(context.Background(), rawRun([]chunkio.Row{
		{Key: []any{"US"}, Measures: []any{2.0}},
	}), 1))

	claim, err := agg.StartConsolidation(chunkindex.StrategyHotSegment)
	require.NoError(t, err)
	assert.Len(t, recorder.active, 1)

	_, err = claim.Commit(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, recorder.active)
}

func TestAbortedConsolidationReleasesDurableClaim(t *testing.T) {
	agg, _, _ := newTestAggregation(t)
	recorder := newFakeClaimRecorder()
	agg.ClaimRecorder = recorder

	require.NoError(t, agg.Consume(context.Background(), rawRun([]chunkio.Row{
		{Key: []any{"EU"}, Measures: []any{10.0}},
	}), 1))
	require.NoError(t, agg.Consume(context.Background(), rawRun([]chunkio.Row{
		{Key: []any{"US"}, Measures: []any{2.0}},
	}), 1))

	claim, err := agg.StartConsolidation(chunkindex.StrategyHotSegment)
	require.NoError(t, err)
	assert.Len(t, recorder.active, 1)

	claim.Abort()
	assert.Empty(t, recorder.active)
}

func TestStartConsolidationConflictsOnDoubleClaim(t *testing.T) {
	agg, _, _ := newTestAggregation(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, agg.Consume(context.Background(), rawRun([]chunkio.Row{
			{Key: []any{"EU"}, Measures: []any{1.0}},
		}), 1))
	}

	claim, err := agg.StartConsolidation(chunkindex.StrategyHotSegment)
	require.NoError(t, err)

	_, err2 := agg.StartConsolidation(chunkindex.StrategyHotSegment)
	assert.Error(t, err2)

	claim.Abort()
	_, err3 := agg.StartConsolidation(chunkindex.StrategyHotSegment)
	assert.NoError(t, err3)
}
