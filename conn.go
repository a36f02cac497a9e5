// Package conduit provides reliable, message-oriented transport over TCP.
// Each message travels as an 8-byte header (type code, payload length)
// followed by a payload serialized with the binio codec. Receiving is driven
// by non-blocking reads, so one goroutine can service many conduits by
// polling them in turn.
package conduit

import (
	"context"
	"encoding/binary"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Zereker/conduit/binio"
)

// headerSize is the length of the fixed message header: a 4-byte type in the
// conduit's byte order and a 4-byte big-endian payload length.
const headerSize = 8

// state is the receive state of a conduit.
type state int

const (
	// stateNoMessage means no header has been parsed since the last consumption.
	stateNoMessage state = iota
	// stateReceiving means a header was parsed and the payload is incomplete.
	stateReceiving
	// stateHolding means a complete message waits to be consumed.
	stateHolding
)

func (s state) String() string {
	switch s {
	case stateNoMessage:
		return "no-message"
	case stateReceiving:
		return "receiving"
	case stateHolding:
		return "holding"
	}
	return "unknown"
}

// Stats counts the traffic seen by a conduit. Byte counts include headers.
type Stats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
}

// Conn is a message conduit over one connected TCP socket.
//
// The receive state machine is not safe for concurrent use: drive a Conn
// from one goroutine at a time. OK, Close and Stats may be called from any
// goroutine.
type Conn struct {
	id      string
	rawConn *net.TCPConn
	raw     syscall.RawConn
	logger  Logger

	opts options

	closed atomic.Bool

	state         state
	header        [headerSize]byte
	headerUsed    int
	messageType   uint32
	messageSize   int
	receiveBuffer []byte
	usedSize      int

	// pendingErr holds a failure hit while polling for the next message
	// inside Receive; it is reported by the next MessageWaiting call.
	pendingErr error

	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	bytesSent        atomic.Uint64
	bytesReceived    atomic.Uint64
}

// NewConn wraps an established TCP connection in a conduit.
func NewConn(conn *net.TCPConn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, errors.Wrap(err, "conduit: raw connection")
	}

	// Messages are written whole, so Nagle only adds latency.
	_ = conn.SetNoDelay(true)

	c := &Conn{
		id:      uuid.NewString(),
		rawConn: conn,
		raw:     raw,
		logger:  opts.logger,
		opts:    opts,
	}

	c.logger.Debug("conduit opened", "id", c.id, "addr", c.Addr(),
		"byte_order", opts.byteOrder.String(),
		"max_message_size", opts.maxMessageSize,
		"partial_headers", opts.partialHeaders)

	return c, nil
}

// Dial connects to address and returns a conduit over the new connection.
func Dial(ctx context.Context, address string, opt ...Option) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "conduit: dial %s", address)
	}

	c, err := NewConn(conn.(*net.TCPConn), opt...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// ID returns a random identifier assigned when the conduit was created.
func (c *Conn) ID() string { return c.id }

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// LocalAddr returns the local address of the connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.rawConn.LocalAddr()
}

// OK reports whether the conduit is still connected. It turns false after
// Close or after any I/O failure.
func (c *Conn) OK() bool {
	return !c.closed.Load()
}

// IsClosed returns true if the conduit has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Close closes the underlying connection. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Debug("conduit closed", "id", c.id, "addr", c.Addr())
	return c.rawConn.Close()
}

// Stats returns a snapshot of the traffic counters.
func (c *Conn) Stats() Stats {
	return Stats{
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		BytesSent:        c.bytesSent.Load(),
		BytesReceived:    c.bytesReceived.Load(),
	}
}

// MessageWaiting advances the receive state machine as far as the data
// already on the socket allows and reports whether a complete message is
// held. It never blocks.
func (c *Conn) MessageWaiting() (bool, error) {
	if err := c.pendingErr; err != nil {
		c.pendingErr = nil
		return false, err
	}

	for {
		switch c.state {
		case stateHolding:
			return true, nil

		case stateReceiving:
			if !c.OK() {
				return false, nil
			}
			if c.usedSize < c.messageSize {
				if err := c.receiveIntoBuffer(); err != nil {
					return false, err
				}
			}
			if c.usedSize == c.messageSize {
				c.state = stateHolding
				return true, nil
			}
			return false, nil

		case stateNoMessage:
			if !c.OK() {
				return false, nil
			}
			ok, err := c.receiveHeader()
			if err != nil || !ok {
				return false, err
			}
			// Fall through to stateReceiving: the payload may already be here.
		}
	}
}

// WaitingMessageType returns the type of the held message, or 0 when no
// complete message is waiting.
func (c *Conn) WaitingMessageType() (uint32, error) {
	ok, err := c.MessageWaiting()
	if !ok {
		return 0, err
	}
	return c.messageType, nil
}

// WaitForMessage returns the type of the next complete message, blocking up
// to timeout for data to arrive (timeout <= 0 waits indefinitely). It returns
// 0 and no error on timeout, and also when data arrived but the message is
// still incomplete.
func (c *Conn) WaitForMessage(timeout time.Duration) (uint32, error) {
	t, err := c.WaitingMessageType()
	if err != nil || t != 0 {
		return t, err
	}
	if !c.OK() {
		return 0, errors.Wrapf(ErrConnectionClosed, "wait on %s", c.id)
	}

	wait := timeout
	if wait <= 0 {
		wait = -1
	}
	ready, err := pollReadable(c.raw, wait, c.IsClosed)
	if !c.OK() {
		return 0, errors.Wrapf(ErrConnectionClosed, "wait on %s", c.id)
	}
	if err != nil {
		return 0, c.fail("poll", err)
	}
	if !ready {
		return 0, nil
	}
	return c.WaitingMessageType()
}

// Receive deserializes the held message into m and consumes it. It returns
// false when no complete message is waiting. The message is consumed even
// when Deserialize fails.
func (c *Conn) Receive(m Deserializer) (bool, error) {
	ok, err := c.MessageWaiting()
	if !ok {
		return false, err
	}

	msgType := c.messageType
	err = m.Deserialize(binio.NewReader(c.receiveBuffer, c.opts.byteOrder, false))
	c.consume()
	if err != nil {
		return true, errors.Wrapf(err, "conduit: deserialize message type %d", msgType)
	}
	return true, nil
}

// Discard drops the held message without deserializing it. It returns false
// when no complete message is waiting.
func (c *Conn) Discard() (bool, error) {
	ok, err := c.MessageWaiting()
	if !ok {
		return false, err
	}
	c.consume()
	return true, nil
}

// Send serializes m behind a header carrying msgType and writes it with the
// bounded-retry loop. It may block briefly while the socket buffer drains.
func (c *Conn) Send(msgType uint32, m Serializer) error {
	if !c.OK() {
		return errors.Wrapf(ErrConnectionClosed, "send to %s", c.id)
	}
	data, err := encodeMessage(c.opts.byteOrder, msgType, m)
	if err != nil {
		return err
	}
	return c.sendBuffer(data)
}

// consume releases the held message and looks for the next one, which may
// already be buffered on the socket.
func (c *Conn) consume() {
	c.messagesReceived.Add(1)
	c.receiveBuffer = c.receiveBuffer[:0]
	c.usedSize = 0
	c.messageType = 0
	c.messageSize = 0
	c.state = stateNoMessage

	if _, err := c.MessageWaiting(); err != nil {
		c.pendingErr = err
	}
}

// receiveHeader reads the fixed header and prepares the receive buffer. It
// reports whether a complete header was parsed.
func (c *Conn) receiveHeader() (bool, error) {
	n, err := readNow(c.raw, c.header[c.headerUsed:])
	if err != nil {
		return false, c.fail("read header", err)
	}
	if n == 0 {
		return false, nil
	}
	c.bytesReceived.Add(uint64(n))
	c.headerUsed += n

	if c.headerUsed < headerSize {
		if c.opts.partialHeaders {
			return false, nil
		}
		got := c.headerUsed
		c.headerUsed = 0
		c.logger.Warn("conduit desynchronized", "id", c.id, "addr", c.Addr(), "header_bytes", got)
		_ = c.Close()
		return false, errors.Wrapf(ErrProtocolDesync, "read %d of %d header bytes", got, headerSize)
	}
	c.headerUsed = 0

	msgType := c.opts.byteOrder.Uint32(c.header[0:4])
	size := binary.BigEndian.Uint32(c.header[4:8])
	if uint64(size) > uint64(c.opts.maxMessageSize) {
		c.logger.Warn("conduit message too large", "id", c.id, "type", msgType,
			"size", size, "limit", c.opts.maxMessageSize)
		_ = c.Close()
		return false, errors.Wrapf(ErrMessageTooLarge, "type %d announces %d bytes, limit %d",
			msgType, size, c.opts.maxMessageSize)
	}

	c.messageType = msgType
	c.messageSize = int(size)
	c.receiveBuffer = make([]byte, size)
	c.usedSize = 0
	c.state = stateReceiving
	return true, nil
}

// receiveIntoBuffer appends whatever payload bytes are available.
func (c *Conn) receiveIntoBuffer() error {
	n, err := readNow(c.raw, c.receiveBuffer[c.usedSize:])
	if err != nil {
		return c.fail("read", err)
	}
	c.bytesReceived.Add(uint64(n))
	c.usedSize += n
	return nil
}

// sendBuffer writes data completely, sleeping between attempts that make no
// progress and giving up after the configured number of them in a row.
func (c *Conn) sendBuffer(data []byte) error {
	sent, failures := 0, 0
	for sent < len(data) {
		n, err := writeNow(c.raw, data[sent:])
		if err != nil {
			return c.fail("send", err)
		}
		if n == 0 {
			failures++
			if failures >= c.opts.sendAttempts {
				return c.fail("send", ErrSendTimeout)
			}
			time.Sleep(c.opts.sendRetryInterval)
			continue
		}
		failures = 0
		sent += n
		c.bytesSent.Add(uint64(n))
	}
	c.messagesSent.Add(1)
	return nil
}

// fail invalidates the conduit after an I/O error and returns the error to
// surface to the caller.
func (c *Conn) fail(op string, err error) error {
	c.logger.Debug("conduit i/o error", "id", c.id, "addr", c.Addr(), "op", op, "error", err)
	_ = c.Close()
	return &IOError{Op: op, Addr: c.Addr(), Err: err}
}
