package chunkio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arx-os/datakernel-cube/internal/buf"
	"github.com/arx-os/datakernel-cube/internal/schema"
)

var testSchema = RowSchema{
	KeyTypes:     []*schema.FieldType{schema.Int64Type},
	MeasureTypes: []*schema.FieldType{schema.Float64Type},
}

func row(key int64, measure float64) Row {
	return Row{Key: []any{key}, Measures: []any{measure}}
}

func intCompare(a, b []any) int {
	ai, bi := a[0].(int64), b[0].(int64)
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	default:
		return 0
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	pool := buf.NewPool(1, 1<<20)
	w := NewWriter(pool, testSchema, 1, 100, 0xABCD)

	rows := []Row{row(1, 1.5), row(2, 2.5), row(3, 3.5)}
	for _, r := range rows {
		ok := w.Offer(r, func(i int, x, y any) bool { return x.(int64) == y.(int64) })
		require.True(t, ok)
	}
	b, minKey, maxKey := w.Finish()
	assert.Equal(t, []any{int64(1)}, minKey)
	assert.Equal(t, []any{int64(3)}, maxKey)

	rd, err := NewReader(b, testSchema)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rd.Header().RecordCount)

	var decoded []Row
	for {
		r, err := rd.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		decoded = append(decoded, r)
	}
	assert.Equal(t, rows, decoded)
	b.Recycle()
	assert.True(t, pool.Balanced())
}

func TestWriterRejectsNewPartitionOnceFull(t *testing.T) {
	pool := buf.NewPool(1, 1<<20)
	// recordLimit 2: the fourth row belongs to a new partition and should
	// be rejected once the limit is reached.
	w := NewWriter(pool, testSchema, 1, 2, 0)
	eq := func(i int, x, y any) bool { return x.(int64) == y.(int64) }

	require.True(t, w.Offer(row(1, 1), eq))
	require.True(t, w.Offer(row(1, 2), eq)) // same partition key, limit not enforced mid-partition
	require.True(t, w.Offer(row(1, 3), eq)) // still same partition key as lastRow
	ok := w.Offer(row(2, 4), eq)            // new partition key, limit reached
	assert.False(t, ok)

	b, _, _ := w.Finish()
	b.Recycle()
}

func TestReaderRejectsBadMagic(t *testing.T) {
	pool := buf.NewPool(1, 1<<20)
	writer := buf.NewWriter(pool, 16)
	writer.WriteI32(0)
	writer.WriteI16(1)
	writer.WriteI64(0)
	writer.WriteI64(0)

	_, err := NewReader(writer.Buf(), testSchema)
	require.Error(t, err)
	writer.Buf().Recycle()
}

func TestSorterSpillsAndMergesInSortedOrder(t *testing.T) {
	pool := buf.NewPool(1, 1<<20)
	sorter := NewSorter(pool, testSchema, 0, 4, intCompare)

	input := []int64{5, 1, 4, 2, 9, 3, 7, 8, 6}
	for _, k := range input {
		sorter.Add(row(k, float64(k)))
	}
	merged := sorter.Merge()

	var got []int64
	for {
		r, err := merged.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, r.Key[0].(int64))
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestMergeRunsBreaksTiesByRunArrivalOrder(t *testing.T) {
	runA := &sliceRun{rows: []Row{row(1, 100), row(2, 100)}}
	runB := &sliceRun{rows: []Row{row(1, 200), row(2, 200)}}

	merged := MergeRuns([]RunReader{runA, runB}, intCompare)

	var got []float64
	for {
		r, err := merged.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, r.Measures[0].(float64))
	}
	// runA arrived first, so for each tied key its row precedes runB's.
	assert.Equal(t, []float64{100, 200, 100, 200}, got)
}
