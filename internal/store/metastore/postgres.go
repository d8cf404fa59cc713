// Package metastore provides concrete aggregation.MetadataStore adapters
// (component C5's metadata collaborator, spec.md §6).
package metastore

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/arx-os/datakernel-cube/internal/schema"
	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// chunkRow is the sqlx scan target for one chunks table row, grounded on
// core/backend/database/arxobject_store.go's db-tagged struct convention.
type chunkRow struct {
	ID            uint64 `db:"id"`
	AggregationID string `db:"aggregation_id"`
	Revision      uint64 `db:"revision"`
	MinKey        []byte `db:"min_key"`
	MaxKey        []byte `db:"max_key"`
	RecordCount   int64  `db:"record_count"`
	SizeBytes     int64  `db:"size_bytes"`
	StorageKey    string `db:"storage_key"`
}

const createChunksTable = `
CREATE TABLE IF NOT EXISTS cube_chunks (
	id             BIGINT NOT NULL,
	aggregation_id TEXT NOT NULL,
	revision       BIGINT NOT NULL DEFAULT 0,
	min_key        JSONB NOT NULL,
	max_key        JSONB NOT NULL,
	record_count   BIGINT NOT NULL,
	size_bytes     BIGINT NOT NULL,
	storage_key    TEXT NOT NULL,
	PRIMARY KEY (aggregation_id, id)
)`

// PostgresMetadataStore persists chunk catalog rows via sqlx+lib/pq,
// grounded on core/backend/database/arxobject_store.go's sqlx.Connect +
// prepared-statement shape.
type PostgresMetadataStore struct {
	db *sqlx.DB
}

// NewPostgresMetadataStore connects to dsn and ensures the chunk catalog
// table exists.
func NewPostgresMetadataStore(dsn string) (*PostgresMetadataStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindMetadataFailed, "connecting to metadata store", err)
	}
	if _, err := db.Exec(createChunksTable); err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindMetadataFailed, "initializing chunk catalog schema", err)
	}
	return &PostgresMetadataStore{db: db}, nil
}

func (s *PostgresMetadataStore) PutChunk(ctx context.Context, c *schema.Chunk) error {
	minKey, err := json.Marshal(c.MinKey)
	if err != nil {
		return cubeerr.Wrap(cubeerr.KindMetadataFailed, "encoding chunk min key", err).WithAggregation(c.AggregationID).WithChunk(c.ID)
	}
	maxKey, err := json.Marshal(c.MaxKey)
	if err != nil {
		return cubeerr.Wrap(cubeerr.KindMetadataFailed, "encoding chunk max key", err).WithAggregation(c.AggregationID).WithChunk(c.ID)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cube_chunks (id, aggregation_id, revision, min_key, max_key, record_count, size_bytes, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (aggregation_id, id) DO UPDATE SET
			revision = EXCLUDED.revision,
			min_key = EXCLUDED.min_key,
			max_key = EXCLUDED.max_key,
			record_count = EXCLUDED.record_count,
			size_bytes = EXCLUDED.size_bytes,
			storage_key = EXCLUDED.storage_key`,
		c.ID, c.AggregationID, c.Revision, minKey, maxKey, c.RecordCount, c.SizeBytes, c.StorageKey)
	if err != nil {
		return cubeerr.Wrap(cubeerr.KindMetadataFailed, "upserting chunk row", err).WithAggregation(c.AggregationID).WithChunk(c.ID)
	}
	return nil
}

func (s *PostgresMetadataStore) DeleteChunk(ctx context.Context, aggregationID string, chunkID uint64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cube_chunks WHERE aggregation_id = $1 AND id = $2`, aggregationID, chunkID)
	if err != nil {
		return cubeerr.Wrap(cubeerr.KindMetadataFailed, "deleting chunk row", err).WithAggregation(aggregationID).WithChunk(chunkID)
	}
	return nil
}

func (s *PostgresMetadataStore) ListChunks(ctx context.Context, aggregationID string) ([]*schema.Chunk, error) {
	var rows []chunkRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, aggregation_id, revision, min_key, max_key, record_count, size_bytes, storage_key
		FROM cube_chunks WHERE aggregation_id = $1`, aggregationID); err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindMetadataFailed, "listing chunks", err).WithAggregation(aggregationID)
	}

	out := make([]*schema.Chunk, 0, len(rows))
	for _, r := range rows {
		var minKey, maxKey []any
		if err := json.Unmarshal(r.MinKey, &minKey); err != nil {
			return nil, cubeerr.Wrap(cubeerr.KindMetadataFailed, "decoding chunk min key", err).WithAggregation(aggregationID).WithChunk(r.ID)
		}
		if err := json.Unmarshal(r.MaxKey, &maxKey); err != nil {
			return nil, cubeerr.Wrap(cubeerr.KindMetadataFailed, "decoding chunk max key", err).WithAggregation(aggregationID).WithChunk(r.ID)
		}
		out = append(out, &schema.Chunk{
			ID:            r.ID,
			AggregationID: r.AggregationID,
			Revision:      r.Revision,
			MinKey:        minKey,
			MaxKey:        maxKey,
			RecordCount:   r.RecordCount,
			SizeBytes:     r.SizeBytes,
			StorageKey:    r.StorageKey,
		})
	}
	return out, nil
}
