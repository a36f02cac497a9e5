package binio

import "github.com/pkg/errors"

// Bit access packs values least significant bit first, filling each byte from
// its low bit upward. Byte order does not apply inside a bit section.

type bitWriter struct {
	active bool
	cur    uint8
	n      int
}

type bitReader struct {
	active bool
	cur    uint8
	left   int
}

// BeginBits starts a bit section. Byte-level writes are not allowed until
// EndBits.
func (w *Writer) BeginBits() error {
	if w.bits.active {
		return errors.Wrap(ErrInvalidArgument, "bits already begun")
	}
	w.bits = bitWriter{active: true}
	return nil
}

// WriteBits writes the low n bits of v.
func (w *Writer) WriteBits(v uint32, n int) error {
	if !w.bits.active {
		return errors.Wrap(ErrInvalidArgument, "WriteBits outside BeginBits")
	}
	if n < 0 || n > 32 {
		return errors.Wrapf(ErrInvalidArgument, "bit count %d", n)
	}
	for i := 0; i < n; i++ {
		w.bits.cur |= uint8((v>>uint(i))&1) << uint(w.bits.n)
		w.bits.n++
		if w.bits.n == 8 {
			w.WriteUint8(w.bits.cur)
			w.bits.cur, w.bits.n = 0, 0
		}
	}
	return nil
}

// EndBits flushes a partially filled byte and ends the bit section.
func (w *Writer) EndBits() error {
	if !w.bits.active {
		return errors.Wrap(ErrInvalidArgument, "EndBits without BeginBits")
	}
	if w.bits.n > 0 {
		w.WriteUint8(w.bits.cur)
	}
	w.bits = bitWriter{}
	return nil
}

// BeginBits starts a bit section on the reader.
func (r *Reader) BeginBits() error {
	if r.bits.active {
		return errors.Wrap(ErrInvalidArgument, "bits already begun")
	}
	r.bits = bitReader{active: true}
	return nil
}

// ReadBits reads n bits (at most 32).
func (r *Reader) ReadBits(n int) (uint32, error) {
	if !r.bits.active {
		return 0, errors.Wrap(ErrInvalidArgument, "ReadBits outside BeginBits")
	}
	if n < 0 || n > 32 {
		return 0, errors.Wrapf(ErrInvalidArgument, "bit count %d", n)
	}
	var v uint32
	for i := 0; i < n; i++ {
		if r.bits.left == 0 {
			b, err := r.ReadUint8()
			if err != nil {
				return 0, err
			}
			r.bits.cur, r.bits.left = b, 8
		}
		v |= uint32(r.bits.cur&1) << uint(i)
		r.bits.cur >>= 1
		r.bits.left--
	}
	return v, nil
}

// EndBits discards the unread bits of the current byte.
func (r *Reader) EndBits() error {
	if !r.bits.active {
		return errors.Wrap(ErrInvalidArgument, "EndBits without BeginBits")
	}
	r.bits = bitReader{}
	return nil
}
