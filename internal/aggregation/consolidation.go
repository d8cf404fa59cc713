package aggregation

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arx-os/datakernel-cube/internal/buf"
	"github.com/arx-os/datakernel-cube/internal/chunkindex"
	"github.com/arx-os/datakernel-cube/internal/chunkio"
	"github.com/arx-os/datakernel-cube/internal/logging"
	"github.com/arx-os/datakernel-cube/internal/schema"
	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// Claim is a held consolidation claim over a set of this aggregation's
// chunks (schema.ChunkClaimedForConsolidation). Exactly one claim can hold
// a given chunk at a time; a second StartConsolidation touching an
// already-claimed chunk fails immediately rather than queuing (spec.md §9
// Open Question (b)).
type Claim struct {
	agg     *Aggregation
	chunks  []*schema.Chunk
	claimID string
}

// StartConsolidation picks a candidate set via strategy and claims every
// chunk in it. Returns KindClaimConflict if no eligible set exists or if
// any candidate chunk is already claimed by another in-flight
// consolidation. When a.ClaimRecorder is set, the claim is also durably
// recorded before being returned.
func (a *Aggregation) StartConsolidation(strategy chunkindex.Strategy) (*Claim, error) {
	picked := chunkindex.PickConsolidationSet(a.index, strategy, a.Config.MaxChunksPerConsolidation)
	if picked == nil {
		return nil, cubeerr.New(cubeerr.KindClaimConflict, "no eligible consolidation set").WithAggregation(a.Config.ID)
	}
	sortByID(picked)

	var claimedSoFar []*schema.Chunk
	for _, c := range picked {
		if _, already := a.claimed.LoadOrStore(c.ID, struct{}{}); already {
			for _, cc := range claimedSoFar {
				a.claimed.Delete(cc.ID)
			}
			return nil, cubeerr.New(cubeerr.KindClaimConflict, "chunk already claimed by another consolidation").
				WithAggregation(a.Config.ID).WithChunk(c.ID)
		}
		claimedSoFar = append(claimedSoFar, c)
	}

	cl := &Claim{agg: a, chunks: picked}
	if a.ClaimRecorder != nil {
		ids := make([]uint64, len(picked))
		for i, c := range picked {
			ids[i] = c.ID
		}
		claimID, err := a.ClaimRecorder.RecordClaim(context.Background(), a.Config.ID, ids)
		if err != nil {
			cl.Abort()
			return nil, err
		}
		cl.claimID = claimID
	}
	return cl, nil
}

// Abort releases the claim without writing a replacement chunk; every
// claimed chunk remains Live and eligible for a future consolidation pass.
func (cl *Claim) Abort() {
	for _, c := range cl.chunks {
		cl.agg.claimed.Delete(c.ID)
	}
	cl.releaseRecordedClaim()
}

func (cl *Claim) releaseRecordedClaim() {
	if cl.agg.ClaimRecorder == nil || cl.claimID == "" {
		return
	}
	if err := cl.agg.ClaimRecorder.ReleaseClaim(context.Background(), cl.claimID); err != nil {
		logging.WithAggregation(cl.agg.Config.ID).Warn("releasing consolidation claim record", zap.Error(err))
	}
}

// Commit reads every claimed chunk back from the chunk store, merges them
// via a key-ordered k-way merge with per-measure Combine folding, writes
// the result as new chunk(s), publishes those, then retires the claimed
// inputs. On any failure the claim is aborted (inputs remain Live) and the
// error is returned; partially written replacement chunks are not
// published.
func (cl *Claim) Commit(ctx context.Context, schemaHash uint64) ([]*schema.Chunk, error) {
	a := cl.agg
	runs := make([]chunkio.RunReader, len(cl.chunks))
	bufs := make([]*buf.ByteBuf, len(cl.chunks))
	defer func() {
		for _, b := range bufs {
			if b != nil {
				b.Recycle()
			}
		}
	}()

	// Fetching each claimed chunk is independent I/O against the chunk
	// store, so it runs concurrently on a local errgroup rather than one at
	// a time.
	eg, egCtx := errgroup.WithContext(ctx)
	for i, c := range cl.chunks {
		i, c := i, c
		eg.Go(func() error {
			data, err := a.chunkStore.Get(egCtx, c.StorageKey)
			if err != nil {
				return cubeerr.Wrap(cubeerr.KindStore, "reading chunk for consolidation", err).
					WithAggregation(a.Config.ID).WithChunk(c.ID)
			}
			bb := a.pool.AllocateAtLeast(len(data))
			bb.Put(data)
			bufs[i] = bb

			rd, err := chunkio.NewReader(bb, a.schema)
			if err != nil {
				return cubeerr.Wrap(cubeerr.KindCodecSchemaMismatch, "decoding chunk for consolidation", err).
					WithAggregation(a.Config.ID).WithChunk(c.ID)
			}
			runs[i] = rd
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		cl.Abort()
		return nil, err
	}

	merged := chunkio.MergeRuns(runs, a.keyCompare())
	folded := newCoalescingRun(merged, a.keyCompare(), consolidationFolds(a.Config))

	eq := func(i int, x, y any) bool { return a.cube.Compare(a.Config.Keys[i], x, y) == 0 }
	var out []*schema.Chunk
	w := chunkio.NewWriter(a.pool, a.schema, a.Config.PartitioningKeyLen, a.Config.ChunkRecordLimit, schemaHash)
	flush := func() error {
		if w.Count() == 0 {
			return nil
		}
		c, err := a.writeConsolidatedChunk(ctx, w)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	}

	for {
		row, err := folded.Next()
		if err != nil {
			break
		}
		if !w.Offer(row, eq) {
			if err := flush(); err != nil {
				cl.Abort()
				return nil, err
			}
			w = chunkio.NewWriter(a.pool, a.schema, a.Config.PartitioningKeyLen, a.Config.ChunkRecordLimit, schemaHash)
			w.Offer(row, eq)
		}
	}
	if err := flush(); err != nil {
		cl.Abort()
		return nil, err
	}

	for _, c := range cl.chunks {
		if err := a.metaStore.DeleteChunk(ctx, a.Config.ID, c.ID); err != nil {
			return out, cubeerr.Wrap(cubeerr.KindMetadataFailed, "retiring consolidated chunk", err).
				WithAggregation(a.Config.ID).WithChunk(c.ID)
		}
		if err := a.chunkStore.Delete(ctx, c.StorageKey); err != nil {
			return out, cubeerr.Wrap(cubeerr.KindStore, "deleting consolidated chunk blob", err).
				WithAggregation(a.Config.ID).WithChunk(c.ID)
		}
		a.index.Remove(c.ID)
		a.claimed.Delete(c.ID)
	}
	a.Metrics.RecordConsolidationPass(a.Config.ID, len(cl.chunks))
	a.reportChunkMetrics()
	cl.releaseRecordedClaim()
	return out, nil
}

func (a *Aggregation) writeConsolidatedChunk(ctx context.Context, w *chunkio.Writer) (*schema.Chunk, error) {
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
		return nil, cubeerr.Wrap(cubeerr.KindWriteFailed, "writing consolidated chunk", err).
			WithAggregation(a.Config.ID).WithChunk(id)
	}
	if err := a.metaStore.PutChunk(ctx, c); err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindMetadataFailed, "recording consolidated chunk", err).
			WithAggregation(a.Config.ID).WithChunk(id)
	}
	a.index.Add(c)
	return c, nil
}
