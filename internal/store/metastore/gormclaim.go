package metastore

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// claimRow is the gorm model backing the durable consolidation-claim
// record: which chunks a consolidation pass holds and when it started, so
// a crash mid-consolidation leaves an auditable trail instead of a chunk
// silently stuck in ClaimedForConsolidation. Grounded on arx-backend/db/db.go's
// gorm.Open(postgres.Open(dsn), ...) connection shape, generalized from a
// connection-pooled application database to a narrow, single-table claim
// ledger.
type claimRow struct {
	ID            string `gorm:"primaryKey"`
	AggregationID string `gorm:"index"`
	ChunkIDs      string // comma-joined chunk IDs
	StartedAt     time.Time
}

func (claimRow) TableName() string { return "cube_consolidation_claims" }

// GormClaimStore persists in-flight consolidation claims via gorm, the way
// db.go persists application state: one gorm.Open call, one AutoMigrate,
// plain CRUD thereafter.
type GormClaimStore struct {
	db      *gorm.DB
	counter atomic.Uint64
}

// NewGormClaimStore opens a postgres connection through gorm and migrates
// the claim ledger table.
func NewGormClaimStore(dsn string) (*GormClaimStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindMetadataFailed, "opening gorm claim store", err)
	}
	if err := db.AutoMigrate(&claimRow{}); err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindMetadataFailed, "migrating claim ledger", err)
	}
	return &GormClaimStore{db: db}, nil
}

// RecordClaim writes a new claim row covering aggregationID's chunkIDs and
// returns its ID.
func (s *GormClaimStore) RecordClaim(ctx context.Context, aggregationID string, chunkIDs []uint64) (string, error) {
	id := aggregationID + "-" + strconv.FormatUint(s.counter.Add(1), 10)
	row := claimRow{
		ID:            id,
		AggregationID: aggregationID,
		ChunkIDs:      joinChunkIDs(chunkIDs),
		StartedAt:     time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", cubeerr.Wrap(cubeerr.KindMetadataFailed, "recording consolidation claim", err).WithAggregation(aggregationID)
	}
	return id, nil
}

// ReleaseClaim deletes claimID's row, whether the consolidation it covered
// committed or aborted.
func (s *GormClaimStore) ReleaseClaim(ctx context.Context, claimID string) error {
	if err := s.db.WithContext(ctx).Delete(&claimRow{}, "id = ?", claimID).Error; err != nil {
		return cubeerr.Wrap(cubeerr.KindMetadataFailed, "releasing consolidation claim "+claimID, err)
	}
	return nil
}

func joinChunkIDs(ids []uint64) string {
	out := make([]byte, 0, len(ids)*8)
	for i, id := range ids {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, id, 10)
	}
	return string(out)
}
