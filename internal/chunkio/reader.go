package chunkio

import (
	"io"

	"github.com/arx-os/datakernel-cube/internal/buf"
)

// Reader decodes rows from a chunk buffer forward-only and lazily: each
// Next call decodes exactly one row, so a consumer that stops early never
// pays for decoding the remainder.
type Reader struct {
	schema RowSchema
	r      *buf.Reader
	header Header
	read   int64
}

// NewReader validates the chunk header and returns a Reader positioned at
// the first row.
func NewReader(b *buf.ByteBuf, rs RowSchema) (*Reader, error) {
	b.SetReadPos(0)
	r := buf.NewReader(b)
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{schema: rs, r: r, header: h}, nil
}

// Header returns the chunk's validated header.
func (rd *Reader) Header() Header { return rd.header }

// Next decodes the next row, returning io.EOF once every row the header
// promised has been read.
func (rd *Reader) Next() (Row, error) {
	if rd.read >= rd.header.RecordCount {
		return Row{}, io.EOF
	}
	row, err := rd.schema.decode(rd.r)
	if err != nil {
		return Row{}, err
	}
	rd.read++
	return row, nil
}
