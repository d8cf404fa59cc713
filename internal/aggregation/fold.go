package aggregation

import (
	"io"

	"github.com/arx-os/datakernel-cube/internal/chunkio"
	"github.com/arx-os/datakernel-cube/internal/schema"
)

// measureFold describes how to turn the first value seen for a key into an
// accumulator (init) and how to fold a subsequent value for the same key
// into that accumulator (fold). Ingest folding accumulates raw measure
// values; consolidation folding combines two chunks' already-accumulated
// values for the same key.
type measureFold struct {
	init func(first any) any
	fold func(acc, next any) any
}

func ingestFolds(cfg *schema.AggregationConfig) []measureFold {
	folds := make([]measureFold, len(cfg.Measures))
	for i, ma := range cfg.Measures {
		agg := ma.Aggregator
		folds[i] = measureFold{
			init: func(first any) any { return agg.Accumulate(agg.Zero(), first) },
			fold: func(acc, next any) any { return agg.Accumulate(acc, next) },
		}
	}
	return folds
}

func consolidationFolds(cfg *schema.AggregationConfig) []measureFold {
	folds := make([]measureFold, len(cfg.Measures))
	for i, ma := range cfg.Measures {
		agg := ma.Aggregator
		folds[i] = measureFold{
			init: func(first any) any { return first },
			fold: func(acc, next any) any { return agg.Combine(acc, next) },
		}
	}
	return folds
}

// coalescingRun wraps a key-sorted RunReader and merges consecutive rows
// sharing the same key into a single row per distinct key, per folds.
type coalescingRun struct {
	src   chunkio.RunReader
	cmp   chunkio.RowCompare
	folds []measureFold

	pending   chunkio.Row
	hasPending bool
	done      bool
}

func newCoalescingRun(src chunkio.RunReader, cmp chunkio.RowCompare, folds []measureFold) *coalescingRun {
	return &coalescingRun{src: src, cmp: cmp, folds: folds}
}

func (c *coalescingRun) Next() (chunkio.Row, error) {
	if c.done {
		return chunkio.Row{}, io.EOF
	}

	var key []any
	var acc []any
	if c.hasPending {
		key, acc = c.pending.Key, initAcc(c.folds, c.pending.Measures)
		c.hasPending = false
	} else {
		first, err := c.src.Next()
		if err != nil {
			c.done = true
			return chunkio.Row{}, io.EOF
		}
		key, acc = first.Key, initAcc(c.folds, first.Measures)
	}

	for {
		next, err := c.src.Next()
		if err != nil {
			c.done = true
			break
		}
		if c.cmp(next.Key, key) != 0 {
			c.pending = next
			c.hasPending = true
			break
		}
		for i, f := range c.folds {
			acc[i] = f.fold(acc[i], next.Measures[i])
		}
	}
	return chunkio.Row{Key: key, Measures: acc}, nil
}

func initAcc(folds []measureFold, values []any) []any {
	acc := make([]any, len(values))
	for i, f := range folds {
		acc[i] = f.init(values[i])
	}
	return acc
}
