package buf

import (
	"encoding/binary"
	"math"

	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// This file implements the wire codec contract from spec.md §4.1: primitive
// values are written big-endian MSB-first, floats as the bit pattern of
// their integer counterpart, strings as a varint length prefix followed by
// bytes, and "nullable" variants encode length as len+1 so 0 marks null.
// Varints use 7-bit little-endian continuation groups, exactly as
// encoding/binary.PutUvarint/Uvarint do -- no third-party varint library
// appears anywhere in the retrieval pack at this layer (see DESIGN.md).

const (
	maxVarInt32Bytes = 5
	maxVarInt64Bytes = 10
)

// Writer appends codec-encoded values to a pooled ByteBuf, growing it via
// Pool.ReallocateAtLeast whenever the next write would not fit.
type Writer struct {
	pool *Pool
	buf  *ByteBuf
}

// NewWriter allocates an initial buffer of at least initialSize bytes from
// pool and returns a Writer over it.
func NewWriter(pool *Pool, initialSize int) *Writer {
	return &Writer{pool: pool, buf: pool.AllocateAtLeast(initialSize)}
}

// Buf returns the underlying buffer. The writer keeps writing into whatever
// buffer this currently points to, which may change across calls that grow
// it.
func (w *Writer) Buf() *ByteBuf { return w.buf }

func (w *Writer) ensure(n int) {
	if w.buf.Writable() < n {
		w.buf = w.pool.ReallocateAtLeast(w.buf, w.buf.writePos+n)
	}
}

// WriteBool writes a single-byte boolean.
func (w *Writer) WriteBool(v bool) {
	w.ensure(1)
	if v {
		w.buf.PutByte(1)
	} else {
		w.buf.PutByte(0)
	}
}

// WriteI16 writes a big-endian 2-byte signed integer.
func (w *Writer) WriteI16(v int16) {
	w.ensure(2)
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(v))
	w.buf.Put(tmp[:])
}

// WriteI32 writes a big-endian 4-byte signed integer.
func (w *Writer) WriteI32(v int32) {
	w.ensure(4)
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	w.buf.Put(tmp[:])
}

// WriteI64 writes a big-endian 8-byte signed integer.
func (w *Writer) WriteI64(v int64) {
	w.ensure(8)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	w.buf.Put(tmp[:])
}

// WriteF32 writes the big-endian bit pattern of a float32.
func (w *Writer) WriteF32(v float32) {
	w.WriteI32(int32(math.Float32bits(v)))
}

// WriteF64 writes the big-endian bit pattern of a float64.
func (w *Writer) WriteF64(v float64) {
	w.WriteI64(int64(math.Float64bits(v)))
}

// WriteVarInt32 writes v as a 7-bit little-endian continuation varint, at
// most 5 bytes.
func (w *Writer) WriteVarInt32(v uint32) {
	var tmp [maxVarInt32Bytes]byte
	n := binary.PutUvarint(tmp[:], uint64(v))
	w.ensure(n)
	w.buf.Put(tmp[:n])
}

// WriteVarInt64 writes v as a 7-bit little-endian continuation varint, at
// most 10 bytes.
func (w *Writer) WriteVarInt64(v uint64) {
	var tmp [maxVarInt64Bytes]byte
	n := binary.PutUvarint(tmp[:], v)
	w.ensure(n)
	w.buf.Put(tmp[:n])
}

// WriteUTF8 writes a varint length prefix followed by the UTF-8 bytes of s.
func (w *Writer) WriteUTF8(s string) {
	w.WriteVarInt32(uint32(len(s)))
	w.ensure(len(s))
	w.buf.Put([]byte(s))
}

// WriteISO88591 writes a varint length prefix followed by the low byte of
// each rune in s, per ISO-8859-1.
func (w *Writer) WriteISO88591(s string) {
	runes := []rune(s)
	w.WriteVarInt32(uint32(len(runes)))
	w.ensure(len(runes))
	for _, r := range runes {
		w.buf.PutByte(byte(r))
	}
}

// WriteNullableUTF8 writes len(s)+1 so that a zero length byte marks null.
// A nil *string encodes as null.
func (w *Writer) WriteNullableUTF8(s *string) {
	if s == nil {
		w.WriteVarInt32(0)
		return
	}
	w.WriteVarInt32(uint32(len(*s)) + 1)
	w.ensure(len(*s))
	w.buf.Put([]byte(*s))
}

// Reader decodes codec-encoded values from a ByteBuf, reporting
// cubeerr.KindCodecTruncated / KindCodecOverflow on malformed input instead
// of panicking, per spec.md §4.1 and §7.
type Reader struct {
	buf *ByteBuf
}

// NewReader wraps buf for decoding.
func NewReader(b *ByteBuf) *Reader { return &Reader{buf: b} }

func (r *Reader) require(n int) error {
	if r.buf.Readable() < n {
		return cubeerr.New(cubeerr.KindCodecTruncated, "not enough bytes remaining")
	}
	return nil
}

// ReadBool reads a single-byte boolean.
func (r *Reader) ReadBool() (bool, error) {
	if err := r.require(1); err != nil {
		return false, err
	}
	return r.buf.GetByte() != 0, nil
}

// ReadI16 reads a big-endian 2-byte signed integer.
func (r *Reader) ReadI16() (int16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(r.buf.Get(2))), nil
}

// ReadI32 reads a big-endian 4-byte signed integer.
func (r *Reader) ReadI32() (int32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.buf.Get(4))), nil
}

// ReadI64 reads a big-endian 8-byte signed integer.
func (r *Reader) ReadI64() (int64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(r.buf.Get(8))), nil
}

// ReadF32 reads the big-endian bit pattern of a float32.
func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadI32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(v)), nil
}

// ReadF64 reads the big-endian bit pattern of a float64.
func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadI64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(v)), nil
}

func (r *Reader) readUvarint(maxBytes int) (uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < maxBytes; i++ {
		if err := r.require(1); err != nil {
			return 0, err
		}
		b := r.buf.GetByte()
		result |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return result, nil
		}
		shift += 7
	}
	return 0, cubeerr.New(cubeerr.KindCodecOverflow, "varint exceeds maximum width")
}

// ReadVarInt32 reads a varint of at most 5 bytes.
func (r *Reader) ReadVarInt32() (uint32, error) {
	v, err := r.readUvarint(maxVarInt32Bytes)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, cubeerr.New(cubeerr.KindCodecOverflow, "varint32 value out of range")
	}
	return uint32(v), nil
}

// ReadVarInt64 reads a varint of at most 10 bytes.
func (r *Reader) ReadVarInt64() (uint64, error) {
	return r.readUvarint(maxVarInt64Bytes)
}

// ReadUTF8 reads a varint length prefix followed by that many UTF-8 bytes.
func (r *Reader) ReadUTF8() (string, error) {
	n, err := r.ReadVarInt32()
	if err != nil {
		return "", err
	}
	if err := r.require(int(n)); err != nil {
		return "", err
	}
	return string(r.buf.Get(int(n))), nil
}

// ReadISO88591 reads a varint rune-count prefix followed by that many
// ISO-8859-1 bytes, each promoted to a rune.
func (r *Reader) ReadISO88591() (string, error) {
	n, err := r.ReadVarInt32()
	if err != nil {
		return "", err
	}
	if err := r.require(int(n)); err != nil {
		return "", err
	}
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = rune(r.buf.GetByte())
	}
	return string(runes), nil
}

// ReadNullableUTF8 reads a nullable UTF-8 string: a zero-length prefix
// means null, otherwise the prefix is len+1.
func (r *Reader) ReadNullableUTF8() (*string, error) {
	n, err := r.ReadVarInt32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if err := r.require(int(n - 1)); err != nil {
		return nil, err
	}
	s := string(r.buf.Get(int(n - 1)))
	return &s, nil
}
