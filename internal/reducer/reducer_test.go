package reducer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func intKeyCompare(a, b []any) int {
	ai, bi := a[0].(int), b[0].(int)
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	default:
		return 0
	}
}

func row(k int, values map[string]any) Row {
	return Row{Key: []any{k}, Values: values}
}

func drain(t *testing.T, n Node) []Row {
	t.Helper()
	var out []Row
	for {
		r, err := n.Produce(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func TestMapperTransformsEveryRow(t *testing.T) {
	src := NewSliceSource([]Row{row(1, map[string]any{"n": 1.0}), row(2, map[string]any{"n": 2.0})})
	m := NewMapper(src, func(r Row) (Row, bool) {
		r.Values["n"] = r.Values["n"].(float64) * 10
		return r, true
	})
	out := drain(t, m)
	require.Len(t, out, 2)
	assert.Equal(t, 10.0, out[0].Values["n"])
	assert.Equal(t, 20.0, out[1].Values["n"])
}

func TestFilterDropsRows(t *testing.T) {
	src := NewSliceSource([]Row{row(1, nil), row(2, nil), row(3, nil)})
	f := NewFilter(src, func(r Row) bool { return r.Key[0].(int)%2 == 1 })
	out := drain(t, f)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Key[0])
	assert.Equal(t, 3, out[1].Key[0])
}

func TestSplitterDeliversEveryRowToEveryOutput(t *testing.T) {
	src := NewSliceSource([]Row{row(1, map[string]any{"a": 1}), row(2, map[string]any{"a": 2})})
	sp := NewSplitter(src, 2)
	outs := sp.Outputs()

	a := drain(t, outs[0])
	require.Len(t, a, 2)
	assert.Equal(t, 1, a[0].Key[0])
	assert.Equal(t, 2, a[1].Key[0])

	b := drain(t, outs[1])
	require.Len(t, b, 2)
	assert.Equal(t, 1, b[0].Key[0])
	assert.Equal(t, 2, b[1].Key[0])
}

func TestSplitterOutputsAreIndependentCopies(t *testing.T) {
	src := NewSliceSource([]Row{row(1, map[string]any{"a": 1})})
	sp := NewSplitter(src, 2)
	outs := sp.Outputs()

	r0, err := outs[0].Produce(context.Background())
	require.NoError(t, err)
	r0.Values["a"] = 99

	r1, err := outs[1].Produce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Values["a"])
}

func TestSplitterPropagatesCloseWithError(t *testing.T) {
	src := NewSliceSource([]Row{row(1, nil)})
	sp := NewSplitter(src, 2)
	outs := sp.Outputs()

	boom := errors.New("boom")
	outs[0].CloseWithError(boom)

	_, err := outs[0].Produce(context.Background())
	assert.Equal(t, boom, err)
}

func TestSplitterLimiterPacesFillsAndPropagatesCancellation(t *testing.T) {
	src := NewSliceSource([]Row{row(1, nil), row(2, nil)})
	sp := NewSplitter(src, 1)
	sp.SetLimiter(rate.NewLimiter(rate.Limit(1000), 1))
	outs := sp.Outputs()

	out := drain(t, outs[0])
	require.Len(t, out, 2)

	src2 := NewSliceSource([]Row{row(1, nil)})
	sp2 := NewSplitter(src2, 1)
	sp2.SetLimiter(rate.NewLimiter(rate.Limit(1), 0))
	outs2 := sp2.Outputs()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := outs2[0].Produce(ctx)
	assert.Error(t, err)
}

func TestMergeReducerOrdersAcrossInputs(t *testing.T) {
	left := NewSliceSource([]Row{row(1, map[string]any{"revenue": 10.0}), row(3, map[string]any{"revenue": 30.0})})
	right := NewSliceSource([]Row{row(2, map[string]any{"orders": 5.0})})

	mr := NewMergeReducer([]Node{left, right}, intKeyCompare, UnionValues)
	out := drain(t, mr)
	require.Len(t, out, 3)
	assert.Equal(t, []any{1}, out[0].Key)
	assert.Equal(t, []any{2}, out[1].Key)
	assert.Equal(t, []any{3}, out[2].Key)
}

func TestMergeReducerUnionsValuesOnEqualKeys(t *testing.T) {
	left := NewSliceSource([]Row{row(1, map[string]any{"revenue": 10.0})})
	right := NewSliceSource([]Row{row(1, map[string]any{"orders": 5.0})})

	mr := NewMergeReducer([]Node{left, right}, intKeyCompare, UnionValues)
	out := drain(t, mr)
	require.Len(t, out, 1)
	assert.Equal(t, 10.0, out[0].Values["revenue"])
	assert.Equal(t, 5.0, out[0].Values["orders"])
}

func TestMergeReducerCombinesTwoWayTieByArrivalOrder(t *testing.T) {
	a := NewSliceSource([]Row{row(1, map[string]any{"src": "a"})})
	b := NewSliceSource([]Row{row(1, map[string]any{"src": "b"})})

	mr := NewMergeReducer([]Node{a, b}, intKeyCompare, func(x, y map[string]any) map[string]any {
		// last-write-wins on collision; b arrives second so it wins
		return UnionValues(x, y)
	})
	out := drain(t, mr)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Values["src"])
}
