// Package chunkindex tracks the set of chunks backing one materialized
// aggregation (component C3, spec.md §4.3): a sorted-by-minKey view for
// range intersection during query planning, a by-id view for O(1) lookup
// during consolidation claim/release, and the strategies that pick which
// chunks a consolidation pass should merge.
package chunkindex

import (
	"sort"
	"sync"

	"github.com/arx-os/datakernel-cube/internal/schema"
)

// KeyCompare orders two key tuples lexicographically field by field; the
// aggregation engine supplies one bound to the owning Cube's Compare.
type KeyCompare func(a, b []any) int

// Index is the live chunk set for one aggregation. Safe for concurrent use:
// queries read under RLock while ingest/consolidation add or remove chunks
// under Lock, mirroring the RWMutex discipline in the teacher's
// internal/cache read-heavy cache shard.
type Index struct {
	mu   sync.RWMutex
	cmp  KeyCompare
	byID map[uint64]*schema.Chunk
	// sorted holds every live chunk ordered by MinKey; rebuilt lazily
	// whenever dirty is set, since consolidation passes touch many chunks
	// at once and a full re-sort per mutation would be wasteful.
	sorted []*schema.Chunk
	dirty  bool
}

// NewIndex creates an empty index using cmp to compare key tuples.
func NewIndex(cmp KeyCompare) *Index {
	return &Index{cmp: cmp, byID: map[uint64]*schema.Chunk{}}
}

// Add registers a newly visible chunk.
func (ix *Index) Add(c *schema.Chunk) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byID[c.ID] = c
	ix.dirty = true
}

// Remove drops a chunk (its consolidation replacement has been committed,
// or consolidation failed and it must revert from claimed back to nothing
// on a hard error path).
func (ix *Index) Remove(id uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.byID, id)
	ix.dirty = true
}

// Get returns the chunk with id, if live.
func (ix *Index) Get(id uint64) (*schema.Chunk, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.byID[id]
	return c, ok
}

// Len returns the number of live chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

func (ix *Index) rebuildLocked() {
	if !ix.dirty {
		return
	}
	ix.sorted = make([]*schema.Chunk, 0, len(ix.byID))
	for _, c := range ix.byID {
		ix.sorted = append(ix.sorted, c)
	}
	sort.Slice(ix.sorted, func(i, j int) bool {
		return ix.cmp(ix.sorted[i].MinKey, ix.sorted[j].MinKey) < 0
	})
	ix.dirty = false
}

// Snapshot returns every live chunk ordered by MinKey. The returned slice
// is owned by the caller.
func (ix *Index) Snapshot() []*schema.Chunk {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.rebuildLocked()
	out := make([]*schema.Chunk, len(ix.sorted))
	copy(out, ix.sorted)
	return out
}

func overlaps(cmp KeyCompare, c *schema.Chunk, lo, hi []any) bool {
	if lo != nil && cmp(c.MaxKey, lo) < 0 {
		return false
	}
	if hi != nil && cmp(c.MinKey, hi) > 0 {
		return false
	}
	return true
}

// ChunksIntersecting returns every live chunk whose [MinKey,MaxKey] range
// overlaps [lo,hi]. A nil lo or hi means unbounded on that side.
func (ix *Index) ChunksIntersecting(lo, hi []any) []*schema.Chunk {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.rebuildLocked()

	var out []*schema.Chunk
	for _, c := range ix.sorted {
		if overlaps(ix.cmp, c, lo, hi) {
			out = append(out, c)
		}
		// sorted is ordered by MinKey: once a chunk's MinKey exceeds hi, no
		// later chunk can intersect either.
		if hi != nil && ix.cmp(c.MinKey, hi) > 0 {
			break
		}
	}
	return out
}

// OverlapCount returns the number of unordered pairs of live chunks whose
// key ranges overlap, a cheap pressure signal for whether consolidation is
// falling behind (spec.md §5).
func (ix *Index) OverlapCount() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.rebuildLocked()

	count := 0
	for i := 0; i < len(ix.sorted); i++ {
		for j := i + 1; j < len(ix.sorted); j++ {
			if ix.cmp(ix.sorted[j].MinKey, ix.sorted[i].MaxKey) > 0 {
				break // sorted by MinKey: no later j can overlap i either
			}
			count++
		}
	}
	return count
}

// Strategy selects which live chunks a consolidation pass should merge.
type Strategy int

const (
	// StrategyHotSegment merges the most recently written small chunks
	// regardless of key overlap, keeping the write-side chunk count low.
	StrategyHotSegment Strategy = iota
	// StrategyMinKey merges the window of chunks with the greatest mutual
	// key-range overlap, reducing query-time fan-out.
	StrategyMinKey
)

// PickConsolidationSet chooses up to maxChunks Live chunks to consolidate,
// or nil if fewer than two candidates are available (consolidating a
// single chunk is a no-op).
func PickConsolidationSet(ix *Index, strategy Strategy, maxChunks int) []*schema.Chunk {
	switch strategy {
	case StrategyHotSegment:
		return pickHotSegment(ix, maxChunks)
	default:
		return pickMinKeyWindow(ix, maxChunks)
	}
}

func pickHotSegment(ix *Index, maxChunks int) []*schema.Chunk {
	ix.mu.RLock()
	ids := make([]*schema.Chunk, 0, len(ix.byID))
	for _, c := range ix.byID {
		ids = append(ids, c)
	}
	ix.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].ID > ids[j].ID })
	if len(ids) < 2 {
		return nil
	}
	if len(ids) > maxChunks {
		ids = ids[:maxChunks]
	}
	return ids
}

func pickMinKeyWindow(ix *Index, maxChunks int) []*schema.Chunk {
	sorted := ix.Snapshot()
	if len(sorted) < 2 {
		return nil
	}

	bestStart, bestOverlap := -1, -1
	for start := 0; start < len(sorted); start++ {
		end := start + 1
		for end < len(sorted) && end-start < maxChunks {
			if ix.cmp(sorted[end].MinKey, sorted[end-1].MaxKey) > 0 {
				break
			}
			end++
		}
		window := end - start
		if window >= 2 && window > bestOverlap {
			bestOverlap = window
			bestStart = start
		}
	}
	if bestStart < 0 {
		return nil
	}
	end := bestStart + bestOverlap
	out := make([]*schema.Chunk, end-bestStart)
	copy(out, sorted[bestStart:end])
	return out
}
