package binio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orders = []struct {
	name  string
	order binary.ByteOrder
}{
	{"little", binary.LittleEndian},
	{"big", binary.BigEndian},
}

func TestWriter_LittleEndianBytes(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	w.WriteUint8(0xFF)
	w.WriteUint16(0xFF)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x00}, w.Bytes())
	assert.Equal(t, 3, w.Len())
}

func TestWriter_BigEndianBytes(t *testing.T) {
	w := NewWriter(binary.BigEndian)
	w.WriteUint16(0x0102)
	w.WriteInt32(-2)
	assert.Equal(t, []byte{0x01, 0x02, 0xFF, 0xFF, 0xFF, 0xFE}, w.Bytes())
}

func TestRoundTrip_Integers(t *testing.T) {
	for _, o := range orders {
		t.Run(o.name, func(t *testing.T) {
			w := NewWriter(o.order)
			w.WriteUint8(0xFF)
			w.WriteInt8(-128)
			w.WriteUint16(0xFFFF)
			w.WriteUint16(0x8001)
			w.WriteInt16(-2)
			w.WriteUint32(0xFFFFFFFF)
			w.WriteUint32(0x80000000)
			w.WriteInt32(math.MinInt32)
			w.WriteUint64(math.MaxUint64)
			w.WriteUint64(1 << 63)
			w.WriteInt64(math.MinInt64)
			w.WriteFloat32(1.5)
			w.WriteFloat64(-1.234)
			w.WriteBool8(true)

			r := NewReader(w.Bytes(), o.order, true)

			u8, err := r.ReadUint8()
			require.NoError(t, err)
			assert.Equal(t, uint8(0xFF), u8)

			i8, err := r.ReadInt8()
			require.NoError(t, err)
			assert.Equal(t, int8(-128), i8)

			u16, err := r.ReadUint16()
			require.NoError(t, err)
			assert.Equal(t, uint16(0xFFFF), u16)

			u16, err = r.ReadUint16()
			require.NoError(t, err)
			assert.Equal(t, uint16(0x8001), u16)

			i16, err := r.ReadInt16()
			require.NoError(t, err)
			assert.Equal(t, int16(-2), i16)

			u32, err := r.ReadUint32()
			require.NoError(t, err)
			assert.Equal(t, uint32(0xFFFFFFFF), u32)

			u32, err = r.ReadUint32()
			require.NoError(t, err)
			assert.Equal(t, uint32(0x80000000), u32)

			i32, err := r.ReadInt32()
			require.NoError(t, err)
			assert.Equal(t, int32(math.MinInt32), i32)

			u64, err := r.ReadUint64()
			require.NoError(t, err)
			assert.Equal(t, uint64(math.MaxUint64), u64)

			u64, err = r.ReadUint64()
			require.NoError(t, err)
			assert.Equal(t, uint64(1<<63), u64)

			i64, err := r.ReadInt64()
			require.NoError(t, err)
			assert.Equal(t, int64(math.MinInt64), i64)

			f32, err := r.ReadFloat32()
			require.NoError(t, err)
			assert.Equal(t, float32(1.5), f32)

			f64, err := r.ReadFloat64()
			require.NoError(t, err)
			assert.Equal(t, -1.234, f64)

			b, err := r.ReadBool8()
			require.NoError(t, err)
			assert.True(t, b)

			assert.False(t, r.HasMore())
		})
	}
}

func TestReader_SetPositionRandomAccess(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	w.WriteUint32(7)
	w.WriteUint32(0xDEADBEEF)

	r := NewReader(w.Bytes(), binary.LittleEndian, false)
	require.NoError(t, r.SetPosition(4))
	v, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)

	r.Reset()
	v, err = r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)
}

func TestReader_Errors(t *testing.T) {
	r := NewReader([]byte{1, 2, 3}, binary.LittleEndian, false)

	_, err := r.ReadUint32()
	assert.True(t, errors.Is(err, ErrOutOfRange))
	assert.Equal(t, 0, r.Position(), "failed read must not move the cursor")

	assert.True(t, errors.Is(r.SetPosition(-1), ErrInvalidArgument))
	assert.True(t, errors.Is(r.SetPosition(4), ErrInvalidArgument))
	assert.NoError(t, r.SetPosition(3))
	assert.False(t, r.HasMore())

	_, err = r.ReadUint8()
	assert.True(t, errors.Is(err, ErrOutOfRange))

	_, err = r.ReadString()
	assert.True(t, errors.Is(err, ErrOutOfRange))

	assert.True(t, errors.Is(r.Skip(1), ErrInvalidArgument))
}

func TestWriter_SetPosition(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	assert.True(t, errors.Is(w.SetPosition(-1), ErrInvalidArgument))

	require.NoError(t, w.SetPosition(6))
	assert.Equal(t, 6, w.Len())
	w.WriteUint8(9)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 9}, w.Bytes())

	require.NoError(t, w.SetPosition(0))
	w.WriteUint16(0x0201)
	assert.Equal(t, 7, w.Len(), "overwrite must not shrink the used size")
	assert.Equal(t, []byte{1, 2, 0, 0, 0, 0, 9}, w.Bytes())
}

func TestWriter_GrowsGeometrically(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	for i := 0; i < 1000; i++ {
		w.WriteUint32(uint32(i))
	}
	assert.Equal(t, 4000, w.Len())
	assert.GreaterOrEqual(t, cap(w.buf), w.Len())

	r := NewReader(w.Bytes(), binary.LittleEndian, false)
	for i := 0; i < 1000; i++ {
		v, err := r.ReadUint32()
		require.NoError(t, err)
		require.Equal(t, uint32(i), v)
	}
}

func TestWriter_ResetKeepsAllocation(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	w.WriteUint64(1)
	before := len(w.buf)
	w.Reset()
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, before, len(w.buf))
}

func TestString_RoundTrip(t *testing.T) {
	for _, o := range orders {
		t.Run(o.name, func(t *testing.T) {
			w := NewWriter(o.order)
			w.WriteString("hello")
			w.WriteString("")
			w.WriteString32("conduit")
			w.WriteString32("")

			r := NewReader(w.Bytes(), o.order, false)

			s, err := r.ReadString()
			require.NoError(t, err)
			assert.Equal(t, "hello", s)

			s, err = r.ReadString()
			require.NoError(t, err)
			assert.Equal(t, "", s)

			s, err = r.ReadString32()
			require.NoError(t, err)
			assert.Equal(t, "conduit", s)

			s, err = r.ReadString32()
			require.NoError(t, err)
			assert.Equal(t, "", s)
			assert.False(t, r.HasMore())
		})
	}
}

func TestString32_Layout(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	w.WriteString32("hi")
	assert.Equal(t, []byte{3, 0, 0, 0, 'h', 'i', 0}, w.Bytes())
}

func TestString32_Truncated(t *testing.T) {
	r := NewReader([]byte{9, 0, 0, 0, 'h', 0}, binary.LittleEndian, false)
	_, err := r.ReadString32()
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestReadString_Unterminated(t *testing.T) {
	r := NewReader([]byte("tail"), binary.LittleEndian, false)
	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "tail", s)
	assert.Equal(t, 4, r.Position())
}

func TestReadStringEven_Padding(t *testing.T) {
	// "ab" + NUL is 3 bytes: odd, so one pad byte follows.
	data := []byte{'a', 'b', 0, 'X', 'c', 0}

	plain := NewReader(data, binary.LittleEndian, false)
	s, err := plain.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ab", s)
	assert.Equal(t, 3, plain.Position())

	even := NewReader(data, binary.LittleEndian, false)
	s, err = even.ReadStringEven()
	require.NoError(t, err)
	assert.Equal(t, "ab", s)
	assert.Equal(t, 4, even.Position())

	// "c" + NUL is already even.
	s, err = even.ReadStringEven()
	require.NoError(t, err)
	assert.Equal(t, "c", s)
	assert.Equal(t, 6, even.Position())
}

func TestWriteStringEven_RoundTrip(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	w.WriteStringEven("ab")
	w.WriteStringEven("abc")
	assert.Equal(t, 8, w.Len())

	r := NewReader(w.Bytes(), binary.LittleEndian, false)
	for _, want := range []string{"ab", "abc"} {
		s, err := r.ReadStringEven()
		require.NoError(t, err)
		assert.Equal(t, want, s)
	}
	assert.False(t, r.HasMore())
}

func TestReader_HugeLength(t *testing.T) {
	r := NewReader([]byte{1, 2, 3}, binary.LittleEndian, false)
	_, err := r.ReadUint8()
	require.NoError(t, err)

	_, err = r.ReadBytes(math.MaxInt)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = r.ReadFixedString(math.MaxInt)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	assert.Equal(t, 1, r.Position())
}

func TestFixedString_NonPositiveLength(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	w.WriteUint8(7)
	w.WriteFixedString("abc", 0)
	w.WriteFixedString("abc", -1)
	assert.Equal(t, []byte{7}, w.Bytes())
	assert.Equal(t, 1, w.Position())
}

func TestReadStringNewline(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	w.WriteString("Hello\n")
	assert.Equal(t, 7, w.Len())

	r := NewReader(w.Bytes(), binary.LittleEndian, false)
	s, err := r.ReadStringNewline()
	require.NoError(t, err)
	assert.Equal(t, "Hello", s)
	assert.True(t, r.HasMore(), "NUL after the newline is left unread")
	s, err = r.ReadString()
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestReadStringNewline_Terminators(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	w.WriteString("Hello\n")
	w.WriteString("Hello2\r\n\n")

	r := NewReader(w.Bytes(), binary.LittleEndian, false)
	for i, want := range []string{"Hello", "", "Hello2", "", ""} {
		s, err := r.ReadStringNewline()
		require.NoError(t, err, "line %d", i)
		assert.Equal(t, want, s, "line %d", i)
	}
	assert.False(t, r.HasMore())

	_, err := r.ReadStringNewline()
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestReadStringNewline_CarriageReturnAndEnd(t *testing.T) {
	r := NewReader([]byte("a\rb\n\rtail"), binary.LittleEndian, false)
	for _, want := range []string{"a", "b", "", "tail"} {
		s, err := r.ReadStringNewline()
		require.NoError(t, err)
		assert.Equal(t, want, s)
	}
	assert.False(t, r.HasMore())
}

func TestFixedString(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	w.WriteFixedString("abc", 5)
	w.WriteFixedString("toolong", 3)
	assert.Equal(t, []byte{'a', 'b', 'c', 0, 0, 't', 'o', 'o'}, w.Bytes())

	r := NewReader(w.Bytes(), binary.LittleEndian, false)
	s, err := r.ReadFixedString(5)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
	s, err = r.ReadFixedString(3)
	require.NoError(t, err)
	assert.Equal(t, "too", s)
}

func TestReader_CopyData(t *testing.T) {
	data := []byte{1, 2}
	copied := NewReader(data, binary.LittleEndian, true)
	aliased := NewReader(data, binary.LittleEndian, false)
	data[0] = 9

	v, err := copied.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v)

	v, err = aliased.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(9), v)
}

func TestReadBytes_ReturnsCopy(t *testing.T) {
	data := []byte{1, 2, 3}
	r := NewReader(data, binary.LittleEndian, false)
	b, err := r.ReadBytes(2)
	require.NoError(t, err)
	b[0] = 7
	assert.Equal(t, byte(1), data[0])
	assert.Equal(t, 1, r.Remaining())
}

func TestReadFrom(t *testing.T) {
	r, err := ReadFrom(strings.NewReader("\x2a\x00\x00\x00rest"), binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, 8, r.Len())

	v, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)
}

func TestCommit_File(t *testing.T) {
	name := filepath.Join(t.TempDir(), "out.bin")

	w := Create(name, binary.BigEndian)
	w.WriteUint32(1234)
	w.WriteFloat64(1.234)
	require.NoError(t, w.Commit())

	r, err := Open(name, binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, name, r.Name())
	assert.Equal(t, 12, r.Len())

	u, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), u)
	f, err := r.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, 1.234, f)
}

func TestCommit_NoName(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	assert.True(t, errors.Is(w.Commit(), ErrInvalidArgument))
}

func TestCommitTo(t *testing.T) {
	w := NewWriter(binary.LittleEndian)
	w.WriteUint16(0x0201)
	dst := make([]byte, 8)
	assert.Equal(t, 2, w.CommitTo(dst))
	assert.True(t, bytes.HasPrefix(dst, []byte{1, 2}))
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), binary.LittleEndian)
	assert.Error(t, err)
}
