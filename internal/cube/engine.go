package cube

import (
	"context"

	"github.com/arx-os/datakernel-cube/internal/aggregation"
	"github.com/arx-os/datakernel-cube/internal/chunkindex"
	"github.com/arx-os/datakernel-cube/internal/chunkio"
	"github.com/arx-os/datakernel-cube/internal/logging"
	"github.com/arx-os/datakernel-cube/internal/schema"
	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
	"go.uber.org/zap"
)

// Engine is the single entry point a driver (cmd/cubectl, the optional
// internal/api façade) uses to ingest rows, run queries and trigger
// consolidation against a schema.Cube's registered aggregations. It owns
// nothing the Planner and Aggregation types didn't already own; it exists
// purely to give external callers one object to hold instead of wiring a
// Planner and every Aggregation by hand.
type Engine struct {
	Planner      *Planner
	aggregations map[string]*aggregation.Aggregation
}

// NewEngine wraps an already-constructed Planner. Aggregations must still
// be registered with both the Planner (for query routing) and the Engine
// (for ingest/consolidate routing) via RegisterAggregation.
func NewEngine(p *Planner) *Engine {
	return &Engine{Planner: p, aggregations: map[string]*aggregation.Aggregation{}}
}

// RegisterAggregation binds an aggregation to both the engine (ingest,
// consolidate, chunk listing) and the underlying planner (query routing).
func (e *Engine) RegisterAggregation(agg *aggregation.Aggregation) {
	e.aggregations[agg.Config.ID] = agg
	e.Planner.Register(agg)
}

// Ingest consumes already key-sorted rows into aggregationID's live chunks.
func (e *Engine) Ingest(ctx context.Context, aggregationID string, rows chunkio.RunReader, schemaHash uint64) error {
	agg, ok := e.aggregations[aggregationID]
	if !ok {
		return cubeerr.New(cubeerr.KindNoCoveringAggregation, "unknown aggregation").WithAggregation(aggregationID)
	}
	logging.WithAggregation(aggregationID).Info("ingest starting")
	if err := agg.Consume(ctx, rows, schemaHash); err != nil {
		return err
	}
	logging.WithAggregation(aggregationID).Info("ingest complete")
	return nil
}

// Query runs q through the engine's planner.
func (e *Engine) Query(ctx context.Context, q CubeQuery) (*QueryResult, error) {
	return e.Planner.Query(ctx, q)
}

// Consolidate runs one consolidation pass over aggregationID's chunks using
// strategy, returning the replacement chunk(s) written.
func (e *Engine) Consolidate(ctx context.Context, aggregationID string, strategy chunkindex.Strategy, schemaHash uint64) ([]*schema.Chunk, error) {
	agg, ok := e.aggregations[aggregationID]
	if !ok {
		return nil, cubeerr.New(cubeerr.KindNoCoveringAggregation, "unknown aggregation").WithAggregation(aggregationID)
	}
	claim, err := agg.StartConsolidation(strategy)
	if err != nil {
		return nil, err
	}
	out, err := claim.Commit(ctx, schemaHash)
	if err != nil {
		logging.WithAggregation(aggregationID).Warn("consolidation aborted", zap.Error(err))
		return nil, err
	}
	logging.WithAggregation(aggregationID).Info("consolidation committed", zap.Int("replacement_chunks", len(out)))
	return out, nil
}

// ListChunks returns every chunk in aggregationID's key range [lo,hi]
// (nil bounds are unbounded on that side).
func (e *Engine) ListChunks(aggregationID string, lo, hi []any) ([]*schema.Chunk, error) {
	agg, ok := e.aggregations[aggregationID]
	if !ok {
		return nil, cubeerr.New(cubeerr.KindNoCoveringAggregation, "unknown aggregation").WithAggregation(aggregationID)
	}
	return agg.Chunks(lo, hi), nil
}
