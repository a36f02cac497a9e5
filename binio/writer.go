package binio

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
)

// minCapacity is the first allocation made by an empty Writer.
const minCapacity = 64

// Writer serializes values into a growable buffer. Capacity is over-allocated
// to amortize growth; Len reports only the bytes actually written.
type Writer struct {
	buf   []byte
	pos   int
	used  int
	order binary.ByteOrder
	name  string

	bits bitWriter
}

// NewWriter returns an empty Writer with no associated file.
func NewWriter(order binary.ByteOrder) *Writer {
	return &Writer{order: order}
}

// Create returns an empty Writer whose Commit writes to the named file.
func Create(name string, order binary.ByteOrder) *Writer {
	return &Writer{order: order, name: name}
}

// Name returns the associated file name.
func (w *Writer) Name() string { return w.name }

// Order returns the byte order used for multi-byte values.
func (w *Writer) Order() binary.ByteOrder { return w.order }

// Len returns the number of bytes written (the high-water mark), not the
// allocated capacity.
func (w *Writer) Len() int { return w.used }

// Size is an alias for Len.
func (w *Writer) Size() int { return w.used }

// Position returns the index of the next byte to be written.
func (w *Writer) Position() int { return w.pos }

// Bytes returns the written portion of the buffer. The slice aliases the
// Writer's storage until the next write.
func (w *Writer) Bytes() []byte { return w.buf[:w.used] }

// SetPosition moves the write cursor. Moving past the current length grows
// the buffer with zeros.
func (w *Writer) SetPosition(p int) error {
	if p < 0 {
		return errors.Wrapf(ErrInvalidArgument, "position %d below zero", p)
	}
	if p > w.used {
		w.reserve(p - w.pos)
		clear(w.buf[w.used:p])
		w.used = p
	}
	w.pos = p
	return nil
}

// Skip advances the write cursor by n bytes.
func (w *Writer) Skip(n int) error {
	return w.SetPosition(w.pos + n)
}

// Reset discards everything written while keeping the allocation.
func (w *Writer) Reset() {
	w.pos = 0
	w.used = 0
	w.bits = bitWriter{}
}

// Commit writes the used portion of the buffer to the associated file.
func (w *Writer) Commit() error {
	if w.name == "" {
		return errors.Wrap(ErrInvalidArgument, "commit: writer has no file name")
	}
	if err := os.WriteFile(w.name, w.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "binio: commit %s", w.name)
	}
	return nil
}

// CommitTo copies the used portion of the buffer into dst and returns the
// number of bytes copied.
func (w *Writer) CommitTo(dst []byte) int {
	return copy(dst, w.Bytes())
}

// reserve makes room for n bytes at the cursor, at least doubling capacity.
func (w *Writer) reserve(n int) {
	need := w.pos + n
	if need <= len(w.buf) {
		return
	}
	size := len(w.buf) * 2
	if size < minCapacity {
		size = minCapacity
	}
	if size < need {
		size = need
	}
	buf := make([]byte, size)
	copy(buf, w.buf[:w.used])
	w.buf = buf
}

// claim returns the n bytes at the cursor, advancing past them. n must not
// be negative.
func (w *Writer) claim(n int) []byte {
	w.reserve(n)
	b := w.buf[w.pos : w.pos+n]
	w.pos += n
	if w.pos > w.used {
		w.used = w.pos
	}
	return b
}

// WriteUint8 writes one byte.
func (w *Writer) WriteUint8(v uint8) {
	w.claim(1)[0] = v
}

// WriteInt8 writes a signed byte.
func (w *Writer) WriteInt8(v int8) {
	w.WriteUint8(uint8(v))
}

// WriteBool8 writes one byte, 1 for true and 0 for false.
func (w *Writer) WriteBool8(v bool) {
	if v {
		w.WriteUint8(1)
		return
	}
	w.WriteUint8(0)
}

// WriteUint16 writes two bytes in buffer order.
func (w *Writer) WriteUint16(v uint16) {
	w.order.PutUint16(w.claim(2), v)
}

// WriteInt16 writes a signed 16-bit value in buffer order.
func (w *Writer) WriteInt16(v int16) {
	w.WriteUint16(uint16(v))
}

// WriteUint32 writes four bytes in buffer order.
func (w *Writer) WriteUint32(v uint32) {
	w.order.PutUint32(w.claim(4), v)
}

// WriteInt32 writes a signed 32-bit value in buffer order.
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteUint64 writes eight bytes in buffer order.
func (w *Writer) WriteUint64(v uint64) {
	w.order.PutUint64(w.claim(8), v)
}

// WriteInt64 writes a signed 64-bit value in buffer order.
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteFloat32 writes an IEEE 754 single in buffer order.
func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 writes an IEEE 754 double in buffer order.
func (w *Writer) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

// WriteBytes writes b verbatim.
func (w *Writer) WriteBytes(b []byte) {
	copy(w.claim(len(b)), b)
}

// WriteString writes s followed by a NUL terminator.
func (w *Writer) WriteString(s string) {
	b := w.claim(len(s) + 1)
	copy(b, s)
	b[len(s)] = 0
}

// WriteStringEven writes s, a NUL terminator, and one padding zero when the
// terminator-inclusive length is odd.
func (w *Writer) WriteStringEven(s string) {
	w.WriteString(s)
	if (len(s)+1)%2 == 1 {
		w.WriteUint8(0)
	}
}

// WriteString32 writes a 4-byte count (len(s)+1) in buffer order followed by
// s and its NUL terminator.
func (w *Writer) WriteString32(s string) {
	w.WriteUint32(uint32(len(s) + 1))
	w.WriteString(s)
}

// WriteFixedString writes exactly n bytes: s truncated or NUL padded. It
// writes nothing when n is not positive.
func (w *Writer) WriteFixedString(s string, n int) {
	if n <= 0 {
		return
	}
	b := w.claim(n)
	c := copy(b, s)
	for i := c; i < n; i++ {
		b[i] = 0
	}
}
