package conduit

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/Zereker/conduit/binio"
)

// Serializer is implemented by messages that can write themselves into a
// binary buffer. The conduit never needs to know the concrete type.
type Serializer interface {
	// Serialize writes the message payload. The header is written by the
	// conduit and must not be included.
	Serialize(w *binio.Writer) error
}

// Deserializer is implemented by messages that can read themselves back from
// a received payload.
type Deserializer interface {
	// Deserialize reads the payload. The reader holds exactly one message.
	Deserialize(r *binio.Reader) error
}

// Message is the usual shape of an application message: it travels both ways.
type Message interface {
	Serializer
	Deserializer
}

// RawMessage is an uninterpreted payload. It is useful for relays and for
// callers that do their own decoding.
type RawMessage []byte

// Serialize writes the payload bytes unchanged.
func (m RawMessage) Serialize(w *binio.Writer) error {
	w.WriteBytes(m)
	return nil
}

// Deserialize copies every remaining payload byte into m.
func (m *RawMessage) Deserialize(r *binio.Reader) error {
	b, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return err
	}
	*m = b
	return nil
}

// encodeMessage serializes m behind a message header. The type field uses
// order; the size field is patched in big-endian once the payload length is
// known.
func encodeMessage(order binary.ByteOrder, msgType uint32, m Serializer) ([]byte, error) {
	if msgType == 0 {
		return nil, ErrReservedType
	}

	w := binio.NewWriter(order)
	w.WriteUint32(msgType)
	w.WriteUint32(0)

	if m != nil {
		if err := m.Serialize(w); err != nil {
			return nil, errors.Wrapf(err, "conduit: serialize message type %d", msgType)
		}
	}

	data := w.Bytes()
	binary.BigEndian.PutUint32(data[4:headerSize], uint32(len(data)-headerSize))
	return data, nil
}
