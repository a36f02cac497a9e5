// Package binio provides position-addressable binary readers and writers over
// in-memory buffers with a byte order chosen per buffer.
//
// Every multi-byte accessor honors the buffer's order except where a caller
// explicitly patches bytes itself. Unsigned accessors use Go's exact-width
// unsigned types, so values above the signed range of a width round-trip exactly.
package binio

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// Errors returned by readers and writers.
var (
	// ErrOutOfRange is returned when a read needs more bytes than remain.
	ErrOutOfRange = errors.New("binio: out of range")
	// ErrInvalidArgument is returned for illegal positions and misuse.
	ErrInvalidArgument = errors.New("binio: invalid argument")
)

// Reader reads values sequentially or at arbitrary positions from a byte slice.
type Reader struct {
	data  []byte
	pos   int
	order binary.ByteOrder
	name  string

	bits bitReader
}

// NewReader returns a Reader over data. When copyData is false the Reader
// aliases data and the caller must not modify it while reading.
func NewReader(data []byte, order binary.ByteOrder, copyData bool) *Reader {
	if copyData {
		data = append([]byte(nil), data...)
	}
	return &Reader{data: data, order: order}
}

// ReadFrom drains r completely and returns a Reader over its contents.
func ReadFrom(r io.Reader, order binary.ByteOrder) (*Reader, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.Wrap(err, "binio: drain input")
	}
	return &Reader{data: buf.Bytes(), order: order}, nil
}

// Open loads the named file into a Reader.
func Open(name string, order binary.ByteOrder) (*Reader, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "binio: open %s", name)
	}
	return &Reader{data: data, order: order, name: name}, nil
}

// Name returns the file the Reader was loaded from, if any.
func (r *Reader) Name() string { return r.name }

// Order returns the byte order used for multi-byte values.
func (r *Reader) Order() binary.ByteOrder { return r.order }

// Len returns the total number of bytes in the buffer.
func (r *Reader) Len() int { return len(r.data) }

// Size is an alias for Len.
func (r *Reader) Size() int { return len(r.data) }

// Position returns the index of the next byte to be read.
func (r *Reader) Position() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// HasMore reports whether unread bytes remain.
func (r *Reader) HasMore() bool { return r.pos < len(r.data) }

// SetPosition moves the read cursor. p may equal Len (end of data) but not
// exceed it.
func (r *Reader) SetPosition(p int) error {
	if p < 0 {
		return errors.Wrapf(ErrInvalidArgument, "position %d below zero", p)
	}
	if p > len(r.data) {
		return errors.Wrapf(ErrInvalidArgument, "position %d past end of data (length %d)", p, len(r.data))
	}
	r.pos = p
	return nil
}

// Reset moves the cursor back to the beginning.
func (r *Reader) Reset() {
	r.pos = 0
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	return r.SetPosition(r.pos + n)
}

// next returns the next n bytes and advances past them.
func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "negative length %d", n)
	}
	if n > len(r.data)-r.pos {
		return nil, errors.Wrapf(ErrOutOfRange, "read %d bytes at %d of %d", n, r.pos, len(r.data))
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInt8 reads one byte as a signed value.
func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

// ReadBool8 reads one byte; any non-zero value is true.
func (r *Reader) ReadBool8() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

// ReadUint16 reads two bytes in buffer order.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

// ReadInt16 reads a signed 16-bit value in buffer order.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads four bytes in buffer order.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

// ReadInt32 reads a signed 32-bit value in buffer order.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads eight bytes in buffer order.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

// ReadInt64 reads a signed 64-bit value in buffer order.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads an IEEE 754 single in buffer order.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE 754 double in buffer order.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.next(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// ReadString reads up to a NUL terminator or the end of the buffer. The
// cursor is left just past the terminator.
func (r *Reader) ReadString() (string, error) {
	s, _, err := r.readTerminated()
	return s, err
}

// ReadStringEven behaves like ReadString but consumes one padding byte when
// the terminator-inclusive length is odd, keeping the cursor word aligned.
func (r *Reader) ReadStringEven() (string, error) {
	s, terminated, err := r.readTerminated()
	if err != nil {
		return "", err
	}
	if terminated && (len(s)+1)%2 == 1 {
		if _, err := r.next(1); err != nil {
			return "", err
		}
	}
	return s, nil
}

// ReadString32 reads a 4-byte count in buffer order followed by count bytes,
// the last of which is the NUL terminator.
func (r *Reader) ReadString32() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if uint64(n) > uint64(r.Remaining()) {
		return "", errors.Wrapf(ErrOutOfRange, "string of %d bytes at %d of %d", n, r.pos, len(r.data))
	}
	b, err := r.next(int(n))
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(b, []byte{0})), nil
}

// ReadStringNewline reads a line ending in "\n", "\r", "\r\n" or NUL and
// consumes the terminator. A line running to the end of the buffer is returned
// as is.
func (r *Reader) ReadStringNewline() (string, error) {
	if r.pos >= len(r.data) {
		return "", errors.Wrapf(ErrOutOfRange, "line at %d of %d", r.pos, len(r.data))
	}
	rest := r.data[r.pos:]
	i := bytes.IndexAny(rest, "\n\r\x00")
	if i < 0 {
		r.pos = len(r.data)
		return string(rest), nil
	}
	r.pos += i + 1
	if rest[i] == '\r' && i+1 < len(rest) && rest[i+1] == '\n' {
		r.pos++
	}
	return string(rest[:i]), nil
}

// ReadFixedString reads exactly n bytes and returns the text before the first
// NUL among them.
func (r *Reader) ReadFixedString(n int) (string, error) {
	b, err := r.next(n)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

func (r *Reader) readTerminated() (string, bool, error) {
	if r.pos >= len(r.data) {
		return "", false, errors.Wrapf(ErrOutOfRange, "string at %d of %d", r.pos, len(r.data))
	}
	rest := r.data[r.pos:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		r.pos = len(r.data)
		return string(rest), false, nil
	}
	r.pos += i + 1
	return string(rest[:i]), true, nil
}
