// Package chunkio implements component C4 (spec.md §4.3/§4.4): a
// size-bounded chunk writer that never splits a partitioning-key prefix
// across two chunks, a lazy forward-only chunk reader, and an external
// k-way merge sorter used to build chunks from unsorted ingest batches and
// to fold overlapping chunks during consolidation.
package chunkio

import (
	"github.com/arx-os/datakernel-cube/internal/buf"
	"github.com/arx-os/datakernel-cube/internal/schema"
	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// magic identifies a chunk file; version allows the wire format to evolve
// without breaking readers of older chunks.
const (
	magic          = uint32(0x43554245) // "CUBE"
	formatVersion  = 1
	headerFixedLen = 4 + 2 + 8 + 8 // magic + version + schemaHash + count
)

// Header is the fixed-layout prologue of every chunk file.
type Header struct {
	Magic         uint32
	Version       uint16
	SchemaHash    uint64
	RecordCount   int64
}

// WriteHeader writes h to w.
func WriteHeader(w *buf.Writer, h Header) {
	w.WriteI32(int32(h.Magic))
	w.WriteI16(int16(h.Version))
	w.WriteI64(int64(h.SchemaHash))
	w.WriteI64(h.RecordCount)
}

// ReadHeader reads and validates a chunk header.
func ReadHeader(r *buf.Reader) (Header, error) {
	m, err := r.ReadI32()
	if err != nil {
		return Header{}, err
	}
	if uint32(m) != magic {
		return Header{}, cubeerr.New(cubeerr.KindCodecBadMagic, "not a chunk file")
	}
	v, err := r.ReadI16()
	if err != nil {
		return Header{}, err
	}
	if uint16(v) != formatVersion {
		return Header{}, cubeerr.New(cubeerr.KindCodecSchemaMismatch, "unsupported chunk format version")
	}
	h, err := r.ReadI64()
	if err != nil {
		return Header{}, err
	}
	n, err := r.ReadI64()
	if err != nil {
		return Header{}, err
	}
	return Header{Magic: magic, Version: formatVersion, SchemaHash: uint64(h), RecordCount: n}, nil
}

// Row is a single encoded chunk record: the ordered key tuple (matching an
// AggregationConfig's Keys) and the ordered aggregated measure values
// (matching its Measures), kept as `any` so the writer can re-encode them
// with each field's FieldType without the caller supplying codec logic.
type Row struct {
	Key      []any
	Measures []any
}

// RowSchema describes how to encode/decode a Row's fields, derived from an
// AggregationConfig plus the owning Cube's field types.
type RowSchema struct {
	KeyTypes     []*schema.FieldType
	MeasureTypes []*schema.FieldType
}

func (s RowSchema) encode(w *buf.Writer, row Row) {
	for i, ft := range s.KeyTypes {
		_ = ft.Encode(w, row.Key[i])
	}
	for i, ft := range s.MeasureTypes {
		_ = ft.Encode(w, row.Measures[i])
	}
}

func (s RowSchema) decode(r *buf.Reader) (Row, error) {
	row := Row{Key: make([]any, len(s.KeyTypes)), Measures: make([]any, len(s.MeasureTypes))}
	for i, ft := range s.KeyTypes {
		v, err := ft.Decode(r)
		if err != nil {
			return Row{}, err
		}
		row.Key[i] = v
	}
	for i, ft := range s.MeasureTypes {
		v, err := ft.Decode(r)
		if err != nil {
			return Row{}, err
		}
		row.Measures[i] = v
	}
	return row, nil
}
