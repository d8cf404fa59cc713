package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func foldAll(agg *Aggregator, values []any) any {
	acc := agg.Zero()
	for _, v := range values {
		acc = agg.Accumulate(acc, v)
	}
	return agg.Finalize(acc)
}

func TestSumAggregator(t *testing.T) {
	got := foldAll(Sum, []any{1.0, 2.5, 3.5})
	assert.Equal(t, 7.0, got)
}

func TestCountAggregator(t *testing.T) {
	got := foldAll(Count, []any{1.0, 2.0, 3.0, 4.0})
	assert.Equal(t, int64(4), got)
}

func TestMinMaxAggregators(t *testing.T) {
	values := []any{5.0, 1.0, 9.0, -3.0}
	assert.Equal(t, -3.0, foldAll(Min, values))
	assert.Equal(t, 9.0, foldAll(Max, values))
}

func TestCombineIsAssociativeForSum(t *testing.T) {
	a := foldAll(Sum, []any{1.0, 2.0})
	b := foldAll(Sum, []any{3.0, 4.0})
	combined := Sum.Combine(a, b)
	whole := foldAll(Sum, []any{1.0, 2.0, 3.0, 4.0})
	assert.Equal(t, whole, combined)
}

func TestLastAggregatorKeepsMostRecentByTime(t *testing.T) {
	acc := Last.Zero()
	acc = Last.Accumulate(acc, LastValue{At: 5, Value: "a"})
	acc = Last.Accumulate(acc, LastValue{At: 9, Value: "b"})
	acc = Last.Accumulate(acc, LastValue{At: 7, Value: "c"})
	assert.Equal(t, "b", Last.Finalize(acc))
}

func TestHLLEstimatesCardinalityApproximately(t *testing.T) {
	acc := HLL.Zero()
	const n = 5000
	for i := 0; i < n; i++ {
		acc = HLL.Accumulate(acc, int64(i))
	}
	estimate := HLL.Finalize(acc).(int64)
	// Approximate sketch: allow wide error bounds rather than asserting an
	// exact count.
	assert.Greater(t, estimate, int64(n/2))
	assert.Less(t, estimate, int64(n*2))
}

func TestHLLMergeIsUnionLike(t *testing.T) {
	a := HLL.Zero()
	for i := 0; i < 1000; i++ {
		a = HLL.Accumulate(a, int64(i))
	}
	b := HLL.Zero()
	for i := 500; i < 1500; i++ {
		b = HLL.Accumulate(b, int64(i))
	}
	merged := HLL.Combine(a, b)
	estimate := HLL.Finalize(merged).(int64)
	assert.Greater(t, estimate, int64(750))
	assert.Less(t, estimate, int64(3000))
}
