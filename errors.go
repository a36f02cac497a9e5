package conduit

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// Errors returned by conduit and acceptor operations.
var (
	// ErrIOFailure matches every *IOError.
	ErrIOFailure = errors.New("i/o failure")
	// ErrProtocolDesync is returned when a message header arrives incomplete.
	// The conduit is closed because the stream position is unknown.
	ErrProtocolDesync = errors.New("protocol desynchronized")
	// ErrMessageTooLarge is returned when a header announces a payload above
	// the configured maximum.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrConnectionClosed is returned when operating on a closed conduit.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrAcceptorClosed is returned when waiting on a closed acceptor.
	ErrAcceptorClosed = errors.New("acceptor closed")
	// ErrReservedType is returned when sending with message type 0.
	ErrReservedType = errors.New("message type 0 is reserved")
)

// Causes carried by an *IOError.
var (
	// ErrSendTimeout means the send loop made no progress for the maximum
	// number of consecutive attempts.
	ErrSendTimeout = errors.New("send timed out")
	// ErrNoConnection means accept yielded nothing although one was pending.
	ErrNoConnection = errors.New("accept yielded no connection")
)

// IOError records a socket level failure. The conduit or acceptor that
// produced it is no longer usable.
type IOError struct {
	Op   string
	Addr net.Addr
	Err  error
}

func (e *IOError) Error() string {
	if e.Addr == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is reports ErrIOFailure as a match so callers can test the error kind
// without knowing the cause.
func (e *IOError) Is(target error) bool { return target == ErrIOFailure }
