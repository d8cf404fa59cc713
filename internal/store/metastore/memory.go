package metastore

import (
	"context"
	"sync"

	"github.com/arx-os/datakernel-cube/internal/schema"
)

// MemoryMetadataStore is an in-process MetadataStore used by tests and the
// single-node CLI, grounded on internal/cache/advanced_cache.go's
// mutex-guarded map shape.
type MemoryMetadataStore struct {
	mu     sync.Mutex
	chunks map[string]map[uint64]*schema.Chunk

	inflightMu sync.Mutex
	inflight   map[string]*loadCall
}

type loadCall struct {
	done   chan struct{}
	result []*schema.Chunk
	err    error
}

// NewMemoryMetadataStore returns an empty in-memory store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		chunks:   map[string]map[uint64]*schema.Chunk{},
		inflight: map[string]*loadCall{},
	}
}

func (s *MemoryMetadataStore) PutChunk(_ context.Context, c *schema.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks[c.AggregationID] == nil {
		s.chunks[c.AggregationID] = map[uint64]*schema.Chunk{}
	}
	s.chunks[c.AggregationID][c.ID] = c
	return nil
}

func (s *MemoryMetadataStore) DeleteChunk(_ context.Context, aggregationID string, chunkID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks[aggregationID], chunkID)
	return nil
}

// ListChunks coalesces concurrent calls for the same aggregationID into one
// underlying load, the way §5 requires: a burst of simultaneous
// loadChunks calls (e.g. several queries opening the same aggregation at
// once) does one map read and fans the result out to every waiter, rather
// than each caller repeating the same work.
func (s *MemoryMetadataStore) ListChunks(ctx context.Context, aggregationID string) ([]*schema.Chunk, error) {
	s.inflightMu.Lock()
	if call, ok := s.inflight[aggregationID]; ok {
		s.inflightMu.Unlock()
		<-call.done
		return call.result, call.err
	}
	call := &loadCall{done: make(chan struct{})}
	s.inflight[aggregationID] = call
	s.inflightMu.Unlock()

	call.result, call.err = s.listChunksLocked(aggregationID)

	s.inflightMu.Lock()
	delete(s.inflight, aggregationID)
	s.inflightMu.Unlock()
	close(call.done)

	return call.result, call.err
}

func (s *MemoryMetadataStore) listChunksLocked(aggregationID string) ([]*schema.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schema.Chunk, 0, len(s.chunks[aggregationID]))
	for _, c := range s.chunks[aggregationID] {
		out = append(out, c)
	}
	return out, nil
}
