package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arx-os/datakernel-cube/internal/buf"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestObserveQueryLatencyRecordsSample(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveQueryLatency("sales", 15*time.Millisecond)

	var m dto.Metric
	require.NoError(t, c.QueryLatency.WithLabelValues("sales").(prometheus.Histogram).Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
}

func TestSetChunkAndOverlapCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.SetChunkCount("agg-1", 7)
	c.SetOverlapCount("agg-1", 2)

	assert.Equal(t, float64(7), gaugeValue(t, c.ChunkCount.WithLabelValues("agg-1")))
	assert.Equal(t, float64(2), gaugeValue(t, c.OverlapCount.WithLabelValues("agg-1")))
}

func TestRecordConsolidationPass(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordConsolidationPass("agg-1", 3)
	c.RecordConsolidationPass("agg-1", 2)

	var m dto.Metric
	require.NoError(t, c.ConsolidationPasses.WithLabelValues("agg-1").(prometheus.Counter).Write(&m))
	assert.Equal(t, float64(2), m.GetCounter().GetValue())

	require.NoError(t, c.ConsolidationChunks.WithLabelValues("agg-1").(prometheus.Counter).Write(&m))
	assert.Equal(t, float64(5), m.GetCounter().GetValue())
}

func TestReportPoolStatsPublishesCreatedAndPooled(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	pool := buf.NewPool(1, 1<<20)
	b1 := pool.AllocateAtLeast(64)
	b2 := pool.AllocateAtLeast(64)
	pool.Recycle(b1)

	c.ReportPoolStats(pool)

	_ = b2
	found := false
	for _, s := range pool.Stats() {
		if s.Created > 0 {
			found = true
			class := s.Size
			_ = class
		}
	}
	assert.True(t, found)
}

func TestNilCollectorMethodsAreNoOps(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveQueryLatency("x", time.Millisecond)
		c.SetChunkCount("x", 1)
		c.SetOverlapCount("x", 1)
		c.RecordConsolidationPass("x", 1)
		c.ReportPoolStats(buf.NewPool(1, 1024))
	})
}
