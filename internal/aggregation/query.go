package aggregation

import (
	"context"

	"github.com/arx-os/datakernel-cube/internal/buf"
	"github.com/arx-os/datakernel-cube/internal/chunkio"
	"github.com/arx-os/datakernel-cube/internal/predicate"
	"github.com/arx-os/datakernel-cube/internal/reducer"
	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// Query opens every live chunk intersecting [lo,hi], folds rows sharing the
// same full key across chunks (chunks may still overlap before
// consolidation runs), and returns a sorted reducer.Node carrying this
// aggregation's full key tuple and, for each name in measures, the stored
// accumulator value. Values are left un-Finalized: the planner finalizes
// once, at the very end of the pipeline (DESIGN.md's Open Question (c)
// decision), so an intermediate fan-in merge can keep combining them.
func (a *Aggregation) Query(ctx context.Context, lo, hi []any, where *predicate.P, measures []string) (reducer.Node, error) {
	chunks := a.index.ChunksIntersecting(lo, hi)
	sortByID(chunks)

	runs := make([]chunkio.RunReader, 0, len(chunks))
	for _, c := range chunks {
		data, err := a.chunkStore.Get(ctx, c.StorageKey)
		if err != nil {
			return nil, cubeerr.Wrap(cubeerr.KindStore, "reading chunk for query", err).
				WithAggregation(a.Config.ID).WithChunk(c.ID)
		}
		bb := a.pool.AllocateAtLeast(len(data))
		bb.Put(data)
		rd, err := chunkio.NewReader(bb, a.schema)
		if err != nil {
			bb.Recycle()
			return nil, cubeerr.Wrap(cubeerr.KindCodecSchemaMismatch, "decoding chunk for query", err).
				WithAggregation(a.Config.ID).WithChunk(c.ID)
		}
		runs = append(runs, &recyclingRun{inner: rd, buf: bb})
	}

	merged := chunkio.MergeRuns(runs, a.keyCompare())
	folded := newCoalescingRun(merged, a.keyCompare(), consolidationFolds(a.Config))
	return &aggregationSource{agg: a, src: folded, where: where, measures: measures}, nil
}

// recyclingRun wraps a chunk Reader's buffer so the pooled buffer is
// recycled exactly once, the moment the run is exhausted, instead of only
// when the query's caller remembers to do so.
type recyclingRun struct {
	inner    chunkio.RunReader
	buf      *buf.ByteBuf
	recycled bool
}

func (r *recyclingRun) Next() (chunkio.Row, error) {
	row, err := r.inner.Next()
	if err != nil && !r.recycled {
		r.recycled = true
		r.buf.Recycle()
	}
	return row, err
}

// aggregationSource adapts a folded chunk row stream into a reducer.Node:
// rows failing the where predicate are skipped, and each row's positional
// measures are projected onto a name-keyed map restricted to measures.
type aggregationSource struct {
	agg      *Aggregation
	src      chunkio.RunReader
	where    *predicate.P
	measures []string
	closed   bool
	err      error
}

func (s *aggregationSource) Produce(ctx context.Context) (reducer.Row, error) {
	if s.err != nil {
		return reducer.Row{}, s.err
	}
	for {
		if err := ctx.Err(); err != nil {
			return reducer.Row{}, err
		}
		row, err := s.src.Next()
		if err != nil {
			return reducer.Row{}, err
		}
		if s.where != nil && !predicate.Matches(s.where, &keyRecord{keys: s.agg.Config.Keys, values: row.Key}, s.agg.cube) {
			continue
		}
		values := make(map[string]any, len(s.measures))
		for _, name := range s.measures {
			for i, ma := range s.agg.Config.Measures {
				if ma.Measure == name {
					values[name] = row.Measures[i]
					break
				}
			}
		}
		return reducer.Row{Key: append([]any(nil), row.Key...), Values: values}, nil
	}
}

func (s *aggregationSource) Suspend() {}
func (s *aggregationSource) Resume()  {}

func (s *aggregationSource) CloseWithError(err error) {
	if !s.closed {
		s.closed = true
		s.err = err
	}
}

// keyRecord adapts a chunk row's positional key tuple into a
// predicate.Record keyed by dimension name, using the aggregation's key
// field order.
type keyRecord struct {
	keys   []string
	values []any
}

func (k *keyRecord) Get(dim string) (any, bool) {
	for i, name := range k.keys {
		if name == dim {
			return k.values[i], true
		}
	}
	return nil, false
}
