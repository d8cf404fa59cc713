package chunkio

import (
	"io"
	"sort"

	"github.com/arx-os/datakernel-cube/internal/buf"
)

// RowCompare orders two key tuples lexicographically; callers derive one
// from the owning cube's field comparators.
type RowCompare func(a, b []any) int

// RunReader is a sequential source of already-sorted rows; both Reader (a
// decoded chunk) and the sorter's own spilled/in-memory runs implement it.
type RunReader interface {
	Next() (Row, error)
}

// Sorter performs an external-memory k-way merge sort (component C4,
// spec.md §4.4): rows are buffered in memory up to MemoryLimit, then each
// full buffer is sorted and spilled out through the chunk codec into a
// pooled buffer (bounding live Row object count the same way an on-disk
// spill would bound live memory), and Merge yields every row across every
// run in sorted order via a k-way merge.
//
// The merge selection structure is a manual binary min-heap rather than a
// classic loser tree: the retrieval pack's own external-sort code
// (internal/indexer's Sorter.kWayMerge) hand-rolls a heap instead of
// container/heap specifically to avoid interface-boxing allocations, and a
// loser tree buys no asymptotic advantage over a heap at the branching
// factors this engine targets, so the same manual-heap shape is reused here.
type Sorter struct {
	pool        *buf.Pool
	schema      RowSchema
	schemaHash  uint64
	memoryLimit int
	cmp         RowCompare

	buffer  []Row
	spilled []RunReader
}

// NewSorter creates a Sorter that spills full buffers of memoryLimit rows.
func NewSorter(pool *buf.Pool, rs RowSchema, schemaHash uint64, memoryLimit int, cmp RowCompare) *Sorter {
	return &Sorter{pool: pool, schema: rs, schemaHash: schemaHash, memoryLimit: memoryLimit, cmp: cmp}
}

// Add buffers row, spilling to a pooled run once the in-memory buffer
// reaches MemoryLimit.
func (s *Sorter) Add(row Row) {
	s.buffer = append(s.buffer, row)
	if len(s.buffer) >= s.memoryLimit {
		s.spill()
	}
}

func (s *Sorter) spill() {
	sort.Slice(s.buffer, func(i, j int) bool { return s.cmp(s.buffer[i].Key, s.buffer[j].Key) < 0 })

	w := NewWriter(s.pool, s.schema, 0, len(s.buffer)+1, s.schemaHash)
	for _, row := range s.buffer {
		w.Offer(row, func(i int, x, y any) bool { return true })
	}
	b, _, _ := w.Finish()

	reader, err := NewReader(b, s.schema)
	if err != nil {
		// Finish() just wrote this buffer; a decode failure here means the
		// writer and reader codecs disagree, a programmer error.
		panic("chunkio: spilled run failed to reopen: " + err.Error())
	}
	s.spilled = append(s.spilled, reader)
	s.buffer = s.buffer[:0]
}

// Merge flushes any remaining in-memory rows as a final run (without
// spilling through the codec, since no further buffering is needed) and
// returns a RunReader yielding every row across every run in sorted order.
// Ties between runs break by run arrival order: a run spilled earlier wins
// ties over one spilled later, and the final in-memory remainder, which is
// always the last run, loses ties to every spilled run, so
// Merge's output order is deterministic given the order rows were Added.
func (s *Sorter) Merge() RunReader {
	runs := make([]RunReader, 0, len(s.spilled)+1)
	runs = append(runs, s.spilled...)
	if len(s.buffer) > 0 {
		sort.Slice(s.buffer, func(i, j int) bool { return s.cmp(s.buffer[i].Key, s.buffer[j].Key) < 0 })
		runs = append(runs, &sliceRun{rows: append([]Row(nil), s.buffer...)})
	}
	return newMergedRun(runs, s.cmp)
}

type sliceRun struct {
	rows []Row
	pos  int
}

func (r *sliceRun) Next() (Row, error) {
	if r.pos >= len(r.rows) {
		return Row{}, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

// MergeRuns runs a k-way merge directly over caller-supplied runs (used by
// the aggregation engine's consolidation pass to fold several existing
// chunks' readers into one sorted stream, independent of any Sorter state).
func MergeRuns(runs []RunReader, cmp RowCompare) RunReader {
	return newMergedRun(runs, cmp)
}

type mergeItem struct {
	row Row
	run int
}

// mergeHeap is a manual binary min-heap over mergeItem, ordered by key and
// then by run index so that equal keys resolve in run-arrival order.
type mergeHeap struct {
	items []mergeItem
	cmp   RowCompare
}

func (h *mergeHeap) less(i, j int) bool {
	c := h.cmp(h.items[i].row.Key, h.items[j].row.Key)
	if c != 0 {
		return c < 0
	}
	return h.items[i].run < h.items[j].run
}

func (h *mergeHeap) swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergeHeap) push(item mergeItem) {
	h.items = append(h.items, item)
	h.up(len(h.items) - 1)
}

func (h *mergeHeap) pop() mergeItem {
	top := h.items[0]
	n := len(h.items) - 1
	h.items[0] = h.items[n]
	h.items = h.items[:n]
	if n > 0 {
		h.down(0)
	}
	return top
}

func (h *mergeHeap) up(j int) {
	for j > 0 {
		i := (j - 1) / 2
		if i == j || !h.less(j, i) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h *mergeHeap) down(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		j := left
		if right := left + 1; right < n && h.less(right, left) {
			j = right
		}
		if !h.less(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
}

type mergedRun struct {
	runs []RunReader
	heap *mergeHeap
}

func newMergedRun(runs []RunReader, cmp RowCompare) *mergedRun {
	h := &mergeHeap{cmp: cmp}
	for i, r := range runs {
		row, err := r.Next()
		if err == nil {
			h.push(mergeItem{row: row, run: i})
		}
	}
	return &mergedRun{runs: runs, heap: h}
}

// Next returns the next row in global sorted order, or io.EOF once every
// run is exhausted.
func (m *mergedRun) Next() (Row, error) {
	if len(m.heap.items) == 0 {
		return Row{}, io.EOF
	}
	item := m.heap.pop()
	next, err := m.runs[item.run].Next()
	if err == nil {
		m.heap.push(mergeItem{row: next, run: item.run})
	}
	return item.row, nil
}
