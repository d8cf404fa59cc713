package chunkio

import (
	"github.com/arx-os/datakernel-cube/internal/buf"
)

// Writer builds chunk files bounded by RecordLimit, never splitting a
// partitioning-key prefix (spec.md §4.3: "all rows sharing a
// partitioning-key prefix land in the same chunk"). Rows must arrive in key
// order; the writer only inspects the previous row's partitioning prefix to
// decide whether admitting the next row would straddle a boundary.
type Writer struct {
	schema       RowSchema
	partitionLen int
	recordLimit  int
	schemaHash   uint64

	pool *buf.Pool
	w    *buf.Writer

	count    int
	minKey   []any
	maxKey   []any
	lastRow  *Row
	finished bool
}

// NewWriter creates a Writer. partitionLen is the number of leading key
// fields that make up the partitioning key; recordLimit bounds the chunk's
// record count once a partitioning-key boundary is reached.
func NewWriter(pool *buf.Pool, rs RowSchema, partitionLen, recordLimit int, schemaHash uint64) *Writer {
	w := buf.NewWriter(pool, 4096)
	WriteHeader(w, Header{Magic: magic, Version: formatVersion, SchemaHash: schemaHash})
	return &Writer{
		schema:       rs,
		partitionLen: partitionLen,
		recordLimit:  recordLimit,
		schemaHash:   schemaHash,
		pool:         pool,
		w:            w,
	}
}

func samePartition(a, b []any, n int, eq func(i int, x, y any) bool) bool {
	for i := 0; i < n; i++ {
		if !eq(i, a[i], b[i]) {
			return false
		}
	}
	return true
}

// Offer appends row if doing so would not exceed RecordLimit past a
// partitioning-key boundary, using eq to compare partitioning-key fields.
// It returns false (without writing row) when the chunk is full and row
// starts a new partitioning-key group, signalling the caller to Finish this
// chunk and start a new one for row.
func (w *Writer) Offer(row Row, eq func(i int, x, y any) bool) bool {
	if w.count >= w.recordLimit && w.lastRow != nil &&
		!samePartition(w.lastRow.Key, row.Key, w.partitionLen, eq) {
		return false
	}

	w.schema.encode(w.w, row)
	w.count++
	if w.minKey == nil {
		w.minKey = append([]any(nil), row.Key...)
	}
	w.maxKey = append([]any(nil), row.Key...)
	rowCopy := row
	w.lastRow = &rowCopy
	return true
}

// Finish rewrites the header's record count and returns the finished
// chunk's buffer along with its key range. The caller owns the returned
// buffer and must Recycle it (directly, or indirectly via a chunk store
// that consumes and recycles it after upload).
func (w *Writer) Finish() (*buf.ByteBuf, []any, []any) {
	w.finished = true
	full := w.w.Buf()
	body := full.Array()[:full.WritePos()]
	withCount := buf.NewWriter(w.pool, len(body))
	WriteHeader(withCount, Header{Magic: magic, Version: formatVersion, SchemaHash: w.schemaHash, RecordCount: int64(w.count)})
	withCount.Buf().Put(body[headerFixedLen:])
	full.Recycle()
	return withCount.Buf(), w.minKey, w.maxKey
}

// Count returns the number of rows written so far.
func (w *Writer) Count() int { return w.count }
