package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arx-os/datakernel-cube/internal/aggregation"
	"github.com/arx-os/datakernel-cube/internal/buf"
	"github.com/arx-os/datakernel-cube/internal/chunkio"
	"github.com/arx-os/datakernel-cube/internal/cube"
	"github.com/arx-os/datakernel-cube/internal/predicate"
	"github.com/arx-os/datakernel-cube/internal/schema"
)

type memChunkStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memChunkStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = append([]byte(nil), data...)
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
	chunks map[uint64]*schema.Chunk
}

func (m *memMetaStore) PutChunk(_ context.Context, c *schema.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks == nil {
		m.chunks = map[uint64]*schema.Chunk{}
	}
	m.chunks[c.ID] = c
	return nil
}
func (m *memMetaStore) DeleteChunk(_ context.Context, _ string, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, id)
	return nil
}
func (m *memMetaStore) ListChunks(_ context.Context, _ string) ([]*schema.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*schema.Chunk
	for _, c := range m.chunks {
		out = append(out, c)
	}
	return out, nil
}

type sliceRun struct {
	rows []chunkio.Row
	pos  int
}

func (s *sliceRun) Next() (chunkio.Row, error) {
	if s.pos >= len(s.rows) {
		return chunkio.Row{}, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}

func testCube() *schema.Cube {
	c := schema.NewCube("sales")
	c.AddDimension(&schema.Dimension{Name: "country", Type: schema.StringType})
	c.AddMeasure(&schema.Measure{Name: "revenue", Type: schema.Float64Type})
	return c
}

func testEngine(t *testing.T) *cube.Engine {
	t.Helper()
	c := testCube()
	cfg := &schema.AggregationConfig{
		ID:                 "revenue_by_country",
		Keys:               []string{"country"},
		Measures:           []schema.MeasureAggregator{{Measure: "revenue", Aggregator: schema.Sum}},
		Predicate:          predicate.AlwaysTrue,
		PartitioningKeyLen: 1,
		ChunkRecordLimit:   1000,
	}
	rs := chunkio.RowSchema{KeyTypes: []*schema.FieldType{schema.StringType}, MeasureTypes: []*schema.FieldType{schema.Float64Type}}
	agg := aggregation.New(cfg, c, rs, buf.NewPool(1, 1<<20), &memChunkStore{}, &memMetaStore{})
	require.NoError(t, agg.Consume(context.Background(), &sliceRun{rows: []chunkio.Row{
		{Key: []any{"DE"}, Measures: []any{10.0}},
	}}, 1))

	engine := cube.NewEngine(cube.NewPlanner(c, nil))
	engine.RegisterAggregation(agg)
	return engine
}

func TestQueryEndpointReturnsRows(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(NewHandler(testEngine(t)))

	body, err := json.Marshal(cube.CubeQuery{Attributes: []string{"country"}, Measures: []string{"revenue"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result cube.QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 10.0, result.Rows[0].Measures["revenue"])
}

func TestListChunksEndpointReturnsChunks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(NewHandler(testEngine(t)))

	req := httptest.NewRequest(http.MethodGet, "/api/aggregations/revenue_by_country/chunks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var chunks []*schema.Chunk
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chunks))
	require.Len(t, chunks, 1)
}

func TestHealthEndpointReportsHealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(NewHandler(testEngine(t)))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(NewHandler(testEngine(t)))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListChunksEndpointUnknownAggregationFails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(NewHandler(testEngine(t)))

	req := httptest.NewRequest(http.MethodGet, "/api/aggregations/missing/chunks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
