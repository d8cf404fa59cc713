package chunkstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/arx-os/datakernel-cube/internal/logging"
)

// Store is the subset of aggregation.ChunkStore CoordinatingChunkStore
// fans out to; declared locally so this package doesn't import
// internal/aggregation just for a three-method interface.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// CoordinatingChunkStore writes synchronously to a primary backend and
// mirrors the same write to a secondary backend in the background,
// grounded on internal/storage/coordinator.go's role of bridging multiple
// storage backends behind one facade -- generalized here from "bridge
// distinct data layers" to "bridge a primary and a best-effort replica of
// the same layer." Reads are always served from the primary; Put and Delete
// go to the primary synchronously and are repeated on the mirror in the
// background. The mirror exists purely for durability, so its failures are
// logged, not propagated.
type CoordinatingChunkStore struct {
	primary Store
	mirror  Store
}

// NewCoordinatingChunkStore returns a store backed by primary, with every
// Put and Delete additionally mirrored to mirror.
func NewCoordinatingChunkStore(primary, mirror Store) *CoordinatingChunkStore {
	return &CoordinatingChunkStore{primary: primary, mirror: mirror}
}

func (c *CoordinatingChunkStore) Put(ctx context.Context, key string, data []byte) error {
	if err := c.primary.Put(ctx, key, data); err != nil {
		return err
	}
	go func() {
		if err := c.mirror.Put(context.Background(), key, data); err != nil {
			logging.Logger.Warn("chunk mirror write failed", zap.String("key", key), zap.Error(err))
		}
	}()
	return nil
}

func (c *CoordinatingChunkStore) Get(ctx context.Context, key string) ([]byte, error) {
	return c.primary.Get(ctx, key)
}

func (c *CoordinatingChunkStore) Delete(ctx context.Context, key string) error {
	if err := c.primary.Delete(ctx, key); err != nil {
		return err
	}
	go func() {
		if err := c.mirror.Delete(context.Background(), key); err != nil {
			logging.Logger.Warn("chunk mirror delete failed", zap.String("key", key), zap.Error(err))
		}
	}()
	return nil
}
