package commands

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arx-os/datakernel-cube/internal/aggregation"
	"github.com/arx-os/datakernel-cube/internal/buf"
	"github.com/arx-os/datakernel-cube/internal/chunkio"
	"github.com/arx-os/datakernel-cube/internal/config"
	"github.com/arx-os/datakernel-cube/internal/cube"
	"github.com/arx-os/datakernel-cube/internal/metrics"
	"github.com/arx-os/datakernel-cube/internal/predicate"
	"github.com/arx-os/datakernel-cube/internal/schema"
	"github.com/arx-os/datakernel-cube/internal/store/chunkstore"
	"github.com/arx-os/datakernel-cube/internal/store/metastore"
)

// demoAggregationID is the single aggregation cubectl wires up when no
// schema is registered elsewhere. A production deployment loads its cube
// and aggregation set from config.Schema.Path; cubectl itself carries no
// schema-definition-language parser (no such format is named anywhere in
// this engine's scope), so it falls back to a single revenue-by-country
// rollup for ingest/query/consolidate/chunks to operate on.
const demoAggregationID = "revenue_by_country"

// app bundles buildEngine's constructed collaborators for callers (namely
// cubectl serve) that need more than the engine itself -- the buffer pool
// and metrics collector backing it, for periodic pool-balance reporting.
type app struct {
	Engine  *cube.Engine
	Pool    *buf.Pool
	Metrics *metrics.Collector
}

func buildEngine(ctx context.Context) (*cube.Engine, error) {
	a, err := buildApp(ctx)
	if err != nil {
		return nil, err
	}
	return a.Engine, nil
}

func buildApp(ctx context.Context) (*app, error) {
	cfg := config.Get()

	cs, err := buildChunkStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("building chunk store: %w", err)
	}
	ms, err := buildMetadataStore(cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("building metadata store: %w", err)
	}

	c := schema.NewCube("demo")
	c.AddDimension(&schema.Dimension{Name: "country", Type: schema.StringType})
	c.AddMeasure(&schema.Measure{Name: "revenue", Type: schema.Float64Type})

	aggCfg := &schema.AggregationConfig{
		ID:                 demoAggregationID,
		Keys:               []string{"country"},
		Measures:           []schema.MeasureAggregator{{Measure: "revenue", Aggregator: schema.Sum}},
		Predicate:          predicate.AlwaysTrue,
		PartitioningKeyLen: 1,
		ChunkRecordLimit:   cfg.Sorter.ItemsInMemory,

		MaxChunksPerConsolidation: cfg.Consolidation.MaxChunksToConsolidate,
	}
	rs := chunkio.RowSchema{
		KeyTypes:     []*schema.FieldType{schema.StringType},
		MeasureTypes: []*schema.FieldType{schema.Float64Type},
	}

	pool := buf.NewPool(1, 1<<30)
	coll := metrics.New(prometheus.DefaultRegisterer)

	agg := aggregation.New(aggCfg, c, rs, pool, cs, ms)
	agg.Metrics = coll

	planner := cube.NewPlanner(c, nil)
	planner.Metrics = coll

	engine := cube.NewEngine(planner)
	engine.RegisterAggregation(agg)
	return &app{Engine: engine, Pool: pool, Metrics: coll}, nil
}

func buildChunkStore(ctx context.Context, cfg config.StorageConfig) (aggregation.ChunkStore, error) {
	switch cfg.Backend {
	case "s3":
		return chunkstore.NewS3ChunkStore(ctx, chunkstore.S3Config{Bucket: cfg.Bucket, Region: cfg.Region, Endpoint: cfg.Endpoint})
	case "gcs":
		return chunkstore.NewGCSChunkStore(ctx, chunkstore.GCSConfig{Bucket: cfg.Bucket})
	case "azure":
		return chunkstore.NewAzureChunkStore(ctx, chunkstore.AzureConfig{AccountID: cfg.AccountID, Container: cfg.Bucket})
	case "file", "":
		path := cfg.Path
		if path == "" {
			path = "./data/chunks"
		}
		return chunkstore.NewFileChunkStore(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func buildMetadataStore(cfg config.MetadataConfig) (aggregation.MetadataStore, error) {
	switch cfg.Backend {
	case "postgres":
		return metastore.NewPostgresMetadataStore(cfg.DSN)
	case "memory", "":
		return metastore.NewMemoryMetadataStore(), nil
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.Backend)
	}
}
