// Package aggregation implements component C5 (spec.md §5): the
// ingest/query/consolidation lifecycle for one materialized aggregation.
// Each Aggregation owns a chunkindex.Index of its live chunks and drives
// chunk creation, cost estimation for the planner, and the consolidation
// claim/commit/abort state machine (New -> Live -> ClaimedForConsolidation
// -> Retired per schema.ChunkState).
package aggregation

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/arx-os/datakernel-cube/internal/buf"
	"github.com/arx-os/datakernel-cube/internal/chunkindex"
	"github.com/arx-os/datakernel-cube/internal/chunkio"
	"github.com/arx-os/datakernel-cube/internal/metrics"
	"github.com/arx-os/datakernel-cube/internal/predicate"
	"github.com/arx-os/datakernel-cube/internal/schema"
	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// ChunkStore is the durable chunk blob backend an Aggregation writes
// finished chunks to and reads them back from; internal/store/chunkstore
// provides file, S3 and coordinating implementations.
type ChunkStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// MetadataStore persists chunk identity/key-range rows so a restart can
// rebuild an Aggregation's index without re-scanning every chunk blob.
type MetadataStore interface {
	PutChunk(ctx context.Context, c *schema.Chunk) error
	DeleteChunk(ctx context.Context, aggregationID string, chunkID uint64) error
	ListChunks(ctx context.Context, aggregationID string) ([]*schema.Chunk, error)
}

// Aggregation is the runtime owner of one schema.AggregationConfig's chunks.
type Aggregation struct {
	Config *schema.AggregationConfig
	cube   predicate.Comparer
	schema chunkio.RowSchema

	index      *chunkindex.Index
	pool       *buf.Pool
	chunkStore ChunkStore
	metaStore  MetadataStore

	// Metrics is optional; a nil Collector makes every reporting call a
	// no-op, so Aggregations built without a metrics.Collector behave
	// exactly as before it existed.
	Metrics *metrics.Collector

	// ClaimRecorder is an optional durable ledger for in-flight
	// consolidation claims; a nil recorder (the default) makes claim
	// tracking purely in-memory, exactly as before this existed.
	ClaimRecorder ClaimRecorder

	nextChunkID atomic.Uint64
	claimed     sync.Map // chunkID(uint64) -> struct{}, guards against double-claim
}

// ClaimRecorder persists a durable record of an in-flight consolidation
// claim, so a crash mid-consolidation leaves an auditable trail rather than
// a chunk silently stuck in ClaimedForConsolidation with no record of why.
// internal/store/metastore.GormClaimStore is the production implementation.
type ClaimRecorder interface {
	RecordClaim(ctx context.Context, aggregationID string, chunkIDs []uint64) (string, error)
	ReleaseClaim(ctx context.Context, claimID string) error
}

// New constructs an Aggregation bound to its storage collaborators.
func New(cfg *schema.AggregationConfig, cube predicate.Comparer, rs chunkio.RowSchema, pool *buf.Pool, cs ChunkStore, ms MetadataStore) *Aggregation {
	cmp := func(a, b []any) int {
		for i := range a {
			if c := cube.Compare(cfg.Keys[i], a[i], b[i]); c != 0 {
				return c
			}
		}
		return 0
	}
	return &Aggregation{
		Config:     cfg,
		cube:       cube,
		schema:     rs,
		index:      chunkindex.NewIndex(cmp),
		pool:       pool,
		chunkStore: cs,
		metaStore:  ms,
	}
}

// Covers reports whether this aggregation's predicate and key set can
// answer a query filtered by qp over dimensions qDims, measures qMeasures.
func (a *Aggregation) Covers(qp *predicate.P, qDims []string, qMeasures []string) bool {
	for _, d := range qDims {
		if !containsString(a.Config.Keys, d) {
			return false
		}
	}
	for _, m := range qMeasures {
		found := false
		for _, ma := range a.Config.Measures {
			if ma.Measure == m {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return predicateImplies(qp, a.Config.Predicate, a.cube)
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// predicateImplies is a conservative, sound-but-incomplete implication
// check: it only recognises the case spec.md §6 requires the planner to
// handle, "query predicate's fully-specified dimensions are a superset of
// the aggregation predicate's fully-specified dimensions with matching
// values, and the aggregation predicate is otherwise AlwaysTrue". A
// mismatch anywhere returns false, meaning the aggregation is assumed not
// to cover the query rather than risk an unsound match.
func predicateImplies(query, aggPredicate *predicate.P, cmp predicate.Comparer) bool {
	simplifiedAgg := predicate.Simplify(aggPredicate, cmp)
	if simplifiedAgg.Kind == predicate.KindAlwaysTrue {
		return true
	}
	aggFixed := predicate.FullySpecified(aggPredicate, cmp)
	if len(aggFixed) == 0 {
		return false
	}
	queryFixed := predicate.FullySpecified(query, cmp)
	for dim, val := range aggFixed {
		qv, ok := queryFixed[dim]
		if !ok || cmp.Compare(dim, qv, val) != 0 {
			return false
		}
	}
	return true
}

// EstimateCost returns a rough relative cost for answering a query from
// this aggregation: the number of chunks the query's key range intersects,
// the cheapest available proxy for "how much data the reducer pipeline
// will need to read" without decoding anything.
func (a *Aggregation) EstimateCost(lo, hi []any) int {
	return len(a.index.ChunksIntersecting(lo, hi))
}

// Chunks returns every live chunk intersecting [lo,hi] (nil bounds are
// unbounded on that side), for the planner's pipeline assembly.
func (a *Aggregation) Chunks(lo, hi []any) []*schema.Chunk {
	return a.index.ChunksIntersecting(lo, hi)
}

// Consume ingests already key-sorted raw rows (typically produced by a
// chunkio.Sorter fed from raw input records) into one or more new chunks.
// Consecutive rows sharing a key are folded into a single stored row via
// each measure's Aggregator before chunk writing, so a chunk never stores
// two rows for the same key. Chunks are flushed through the configured
// chunk size and partitioning-key prefix, then published to the chunk
// store, metadata store and index.
func (a *Aggregation) Consume(ctx context.Context, rows chunkio.RunReader, schemaHash uint64) error {
	eq := func(i int, x, y any) bool {
		return a.cube.Compare(a.Config.Keys[i], x, y) == 0
	}
	folded := newCoalescingRun(rows, a.keyCompare(), ingestFolds(a.Config))

	var w *chunkio.Writer
	startWriter := func() {
		w = chunkio.NewWriter(a.pool, a.schema, a.Config.PartitioningKeyLen, a.Config.ChunkRecordLimit, schemaHash)
	}
	startWriter()

	flush := func() error {
		if w.Count() == 0 {
			return nil
		}
		return a.flushChunk(ctx, w)
	}

	for {
		row, err := folded.Next()
		if err != nil {
			break
		}
		if !w.Offer(row, eq) {
			if err := flush(); err != nil {
				return err
			}
			startWriter()
			w.Offer(row, eq)
		}
	}
	return flush()
}

// keyCompare derives a chunkio.RowCompare from this aggregation's cube
// comparer and key field order.
func (a *Aggregation) keyCompare() chunkio.RowCompare {
	return func(x, y []any) int {
		for i := range x {
			if c := a.cube.Compare(a.Config.Keys[i], x[i], y[i]); c != 0 {
				return c
			}
		}
		return 0
	}
}

func (a *Aggregation) flushChunk(ctx context.Context, w *chunkio.Writer) error {
	body, minKey, maxKey := w.Finish()
	defer body.Recycle()

	id := a.nextChunkID.Add(1)
	c := &schema.Chunk{
		ID:            id,
		AggregationID: a.Config.ID,
		MinKey:        minKey,
		MaxKey:        maxKey,
		RecordCount:   int64(w.Count()),
		SizeBytes:     int64(body.WritePos()),
		StorageKey:    chunkStorageKey(a.Config.ID, id),
	}

	data := append([]byte(nil), body.Array()[:body.WritePos()]...)
	if err := a.chunkStore.Put(ctx, c.StorageKey, data); err != nil {
		return cubeerr.Wrap(cubeerr.KindWriteFailed, "writing chunk", err).WithAggregation(a.Config.ID).WithChunk(id)
	}
	if err := a.metaStore.PutChunk(ctx, c); err != nil {
		return cubeerr.Wrap(cubeerr.KindMetadataFailed, "recording chunk", err).WithAggregation(a.Config.ID).WithChunk(id)
	}
	a.index.Add(c)
	a.reportChunkMetrics()
	return nil
}

// reportChunkMetrics publishes this aggregation's current chunk count and
// index overlap count, the consolidation-pressure signals spec.md §8
// names.
func (a *Aggregation) reportChunkMetrics() {
	a.Metrics.SetChunkCount(a.Config.ID, a.index.Len())
	a.Metrics.SetOverlapCount(a.Config.ID, a.index.OverlapCount())
}

func chunkStorageKey(aggregationID string, chunkID uint64) string {
	return aggregationID + "/" + strconv.FormatUint(chunkID, 10) + ".chunk"
}

// sortByID is a small helper used when a consolidation pass needs a stable
// processing order independent of key range.
func sortByID(chunks []*schema.Chunk) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
}
