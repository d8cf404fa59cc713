// Package reducer implements component C7 (spec.md §4.7): a small
// dataflow runtime of Splitter, Mapper/Filter, and k-way merge reducer
// nodes, each exposing the produce/suspend/resume/endOfStream/
// closeWithError contract the planner's pipeline assembly (C6) wires
// together.
package reducer

import (
	"context"
	"io"
)

// Row is one reduced record flowing through the pipeline: a key tuple (the
// query's dimension values, in query dimension order) plus a measure-name
// keyed value map. Using a name-keyed map rather than chunkio.Row's
// positional slice is deliberate: a k-way merge reducer over several
// aggregations must union measure sets that differ per input, which a
// positional representation cannot express without a shared superschema
// known in advance.
type Row struct {
	Key    []any
	Values map[string]any
}

// clone returns a Row with its own Values map, so a Mapper or the merge
// reducer can mutate the map it returns without aliasing a still-live
// upstream row (Splitter relies on this to deliver the same logical row to
// several independent downstream chains).
func (r Row) clone() Row {
	v := make(map[string]any, len(r.Values))
	for k, val := range r.Values {
		v[k] = val
	}
	return Row{Key: append([]any(nil), r.Key...), Values: v}
}

// Node is implemented by every pipeline stage. Produce pulls the next row,
// returning io.EOF once the stream is exhausted. Suspend/Resume implement
// the backpressure contract of spec.md §4.7: Suspend must take effect
// within one element-delivery's latency, and a Resume must eventually
// follow a paired Suspend once the caller has demand again.
// CloseWithError tears the node, and everything feeding it, down
// immediately; after it returns no further element flows through this
// node, and every buffer the node owns has been recycled.
type Node interface {
	Produce(ctx context.Context) (Row, error)
	Suspend()
	Resume()
	CloseWithError(err error)
}

// SliceSource adapts an in-memory, already-sorted slice of Rows into a
// Node; the planner's single-aggregation fast path and tests use it as a
// leaf of the pipeline graph.
type SliceSource struct {
	rows []Row
	pos  int
	err  error
}

func NewSliceSource(rows []Row) *SliceSource { return &SliceSource{rows: rows} }

func (s *SliceSource) Produce(ctx context.Context) (Row, error) {
	if s.err != nil {
		return Row{}, s.err
	}
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	if s.pos >= len(s.rows) {
		return Row{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// Suspend/Resume are no-ops: a SliceSource is already paced entirely by its
// caller's Produce calls, so there is nothing to throttle.
func (s *SliceSource) Suspend() {}
func (s *SliceSource) Resume()  {}

func (s *SliceSource) CloseWithError(err error) {
	if s.err == nil {
		s.err = err
	}
}

// MapFunc transforms a Row, returning keep=false to drop it. A Filter is a
// MapFunc that returns its input unchanged and only varies keep.
type MapFunc func(Row) (Row, bool)

// Mapper applies fn to every row produced by in, skipping dropped rows
// transparently so callers never observe a "no row, no error" result.
type Mapper struct {
	in Node
	fn MapFunc
}

func NewMapper(in Node, fn MapFunc) *Mapper { return &Mapper{in: in, fn: fn} }

func NewFilter(in Node, keep func(Row) bool) *Mapper {
	return &Mapper{in: in, fn: func(r Row) (Row, bool) { return r, keep(r) }}
}

func (m *Mapper) Produce(ctx context.Context) (Row, error) {
	for {
		row, err := m.in.Produce(ctx)
		if err != nil {
			return Row{}, err
		}
		out, keep := m.fn(row)
		if keep {
			return out, nil
		}
	}
}

func (m *Mapper) Suspend()              { m.in.Suspend() }
func (m *Mapper) Resume()               { m.in.Resume() }
func (m *Mapper) CloseWithError(e error) { m.in.CloseWithError(e) }
