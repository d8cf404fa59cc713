// Package metrics wraps github.com/prometheus/client_golang/prometheus,
// grounded on arx-backend/gateway/metrics.go's MetricsCollector shape
// (one struct holding a named prometheus.*Vec per concern, a constructor
// that builds and registers them all up front). Unlike the teacher's
// collector, which registers into the global default registry via
// promauto, every metric here is registered against an injected
// prometheus.Registerer, matching internal/cache/metrics.go's precedent
// of a collector owned by its caller rather than a package-level global.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arx-os/datakernel-cube/internal/buf"
)

// Collector holds the engine's Prometheus metrics: pool balance per size
// class, chunk counts and overlap per aggregation, query latency, and
// consolidation pass counters (spec.md §8).
type Collector struct {
	PoolCreated *prometheus.GaugeVec
	PoolPooled  *prometheus.GaugeVec

	ChunkCount   *prometheus.GaugeVec
	OverlapCount *prometheus.GaugeVec

	QueryLatency *prometheus.HistogramVec

	ConsolidationPasses *prometheus.CounterVec
	ConsolidationChunks *prometheus.CounterVec
}

// New builds a Collector and registers every metric against reg. reg is
// typically a fresh prometheus.NewRegistry() in tests and the process's
// default registerer in production, but the core never reaches for
// prometheus.DefaultRegisterer itself.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		PoolCreated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cube_pool_created_total",
			Help: "Buffers ever allocated, per size class.",
		}, []string{"size_class"}),
		PoolPooled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cube_pool_pooled_total",
			Help: "Buffers currently sitting in a size class's free list.",
		}, []string{"size_class"}),
		ChunkCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cube_aggregation_chunk_count",
			Help: "Number of chunks currently registered for an aggregation.",
		}, []string{"aggregation_id"}),
		OverlapCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cube_aggregation_overlap_count",
			Help: "Number of key-range-overlapping chunk pairs for an aggregation.",
		}, []string{"aggregation_id"}),
		QueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cube_query_latency_seconds",
			Help:    "Planner.Query end-to-end latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"cube"}),
		ConsolidationPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cube_consolidation_passes_total",
			Help: "Completed consolidation passes.",
		}, []string{"aggregation_id"}),
		ConsolidationChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cube_consolidation_chunks_merged_total",
			Help: "Chunks merged away by consolidation.",
		}, []string{"aggregation_id"}),
	}

	reg.MustRegister(
		c.PoolCreated,
		c.PoolPooled,
		c.ChunkCount,
		c.OverlapCount,
		c.QueryLatency,
		c.ConsolidationPasses,
		c.ConsolidationChunks,
	)
	return c
}

// ObserveQueryLatency records how long a query against the named cube
// took to plan and execute.
func (c *Collector) ObserveQueryLatency(cube string, d time.Duration) {
	if c == nil {
		return
	}
	c.QueryLatency.WithLabelValues(cube).Observe(d.Seconds())
}

// ReportPoolStats publishes pool's per-size-class created/pooled counts,
// the pool-balance invariant spec.md §8 names as the strongest
// correctness signal for the buffer pool.
func (c *Collector) ReportPoolStats(pool *buf.Pool) {
	if c == nil {
		return
	}
	for _, s := range pool.Stats() {
		if s.Created == 0 {
			continue
		}
		class := strconv.Itoa(s.Size)
		c.PoolCreated.WithLabelValues(class).Set(float64(s.Created))
		c.PoolPooled.WithLabelValues(class).Set(float64(s.Pooled))
	}
}

// SetChunkCount reports the current chunk count for an aggregation.
func (c *Collector) SetChunkCount(aggregationID string, n int) {
	if c == nil {
		return
	}
	c.ChunkCount.WithLabelValues(aggregationID).Set(float64(n))
}

// SetOverlapCount reports the current overlapping-pair count for an
// aggregation's chunk index.
func (c *Collector) SetOverlapCount(aggregationID string, n int) {
	if c == nil {
		return
	}
	c.OverlapCount.WithLabelValues(aggregationID).Set(float64(n))
}

// RecordConsolidationPass increments the pass counter and adds
// mergedChunks to the merged-chunk counter for aggregationID.
func (c *Collector) RecordConsolidationPass(aggregationID string, mergedChunks int) {
	if c == nil {
		return
	}
	c.ConsolidationPasses.WithLabelValues(aggregationID).Inc()
	c.ConsolidationChunks.WithLabelValues(aggregationID).Add(float64(mergedChunks))
}
