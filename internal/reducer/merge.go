package reducer

import (
	"context"
	"io"
)

// KeyCompare orders two key tuples lexicographically.
type KeyCompare func(a, b []any) int

// ReduceFunc combines the Values of two rows sharing a key. The planner's
// aggregation fan-in reducer (spec.md §4.6) unions measure sets: a measure
// present on only one side passes through unchanged, so ReduceFunc only
// needs to decide what happens when both sides carry the same measure name
// (which should not happen across disjoint aggregations, but a
// last-write-wins merge keeps the node total).
type ReduceFunc func(a, b map[string]any) map[string]any

// UnionValues is the default ReduceFunc: every measure from b is copied
// into a's map, overwriting on name collision.
func UnionValues(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// MergeReducer merges n sorted inputs into one sorted output (invariant:
// output keys are non-decreasing); on equal keys it combines values via
// reduce instead of emitting both rows. Grounded on chunkio's manual
// min-heap k-way merge (internal/chunkio/sort.go's mergeHeap), generalized
// from single-row emission per key to fold-equal-keys-via-reduce.
type MergeReducer struct {
	ins    []Node
	cmp    KeyCompare
	reduce ReduceFunc
	heap   *rowHeap
	filled bool
}

func NewMergeReducer(ins []Node, cmp KeyCompare, reduce ReduceFunc) *MergeReducer {
	return &MergeReducer{ins: ins, cmp: cmp, reduce: reduce, heap: &rowHeap{cmp: cmp}}
}

func (m *MergeReducer) ensureFilled(ctx context.Context) error {
	if m.filled {
		return nil
	}
	m.filled = true
	for i, in := range m.ins {
		row, err := in.Produce(ctx)
		if err == nil {
			m.heap.push(rowItem{row: row, src: i})
		} else if err != io.EOF {
			return err
		}
	}
	return nil
}

// Produce returns the next merged row: all rows sharing the minimum key
// across every still-live input, folded together via reduce, or io.EOF
// once every input is exhausted.
func (m *MergeReducer) Produce(ctx context.Context) (Row, error) {
	if err := m.ensureFilled(ctx); err != nil {
		return Row{}, err
	}
	if m.heap.len() == 0 {
		return Row{}, io.EOF
	}

	item := m.heap.pop()
	if err := m.advance(ctx, item.src); err != nil && err != io.EOF {
		return Row{}, err
	}
	merged := item.row

	for m.heap.len() > 0 && m.cmp(m.heap.top().row.Key, merged.Key) == 0 {
		next := m.heap.pop()
		merged = Row{Key: merged.Key, Values: m.reduce(merged.Values, next.row.Values)}
		if err := m.advance(ctx, next.src); err != nil && err != io.EOF {
			return Row{}, err
		}
	}
	return merged, nil
}

func (m *MergeReducer) advance(ctx context.Context, src int) error {
	row, err := m.ins[src].Produce(ctx)
	if err != nil {
		return err
	}
	m.heap.push(rowItem{row: row, src: src})
	return nil
}

func (m *MergeReducer) Suspend() {
	for _, in := range m.ins {
		in.Suspend()
	}
}

func (m *MergeReducer) Resume() {
	for _, in := range m.ins {
		in.Resume()
	}
}

func (m *MergeReducer) CloseWithError(err error) {
	for _, in := range m.ins {
		in.CloseWithError(err)
	}
}

type rowItem struct {
	row Row
	src int
}

// rowHeap is a manual binary min-heap over rowItem, ordered by key and
// then by source index so equal keys surface in input-arrival order.
type rowHeap struct {
	items []rowItem
	cmp   KeyCompare
}

func (h *rowHeap) len() int      { return len(h.items) }
func (h *rowHeap) top() rowItem  { return h.items[0] }

func (h *rowHeap) less(i, j int) bool {
	c := h.cmp(h.items[i].row.Key, h.items[j].row.Key)
	if c != 0 {
		return c < 0
	}
	return h.items[i].src < h.items[j].src
}

func (h *rowHeap) swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *rowHeap) push(item rowItem) {
	h.items = append(h.items, item)
	h.up(len(h.items) - 1)
}

func (h *rowHeap) pop() rowItem {
	top := h.items[0]
	n := len(h.items) - 1
	h.items[0] = h.items[n]
	h.items = h.items[:n]
	if n > 0 {
		h.down(0)
	}
	return top
}

func (h *rowHeap) up(j int) {
	for j > 0 {
		i := (j - 1) / 2
		if i == j || !h.less(j, i) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h *rowHeap) down(i int) {
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
