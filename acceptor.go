package conduit

import (
	"context"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// acceptGrace bounds the accept call made after the listener polled ready.
const acceptGrace = 100 * time.Millisecond

// Handler is the interface for handling conduits produced by Serve.
type Handler interface {
	// Handle is called in its own goroutine for each new conduit.
	// The implementation owns the conduit and must close it.
	Handle(conn *Conn)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(conn *Conn)

// Handle calls f(conn).
func (f HandlerFunc) Handle(conn *Conn) { f(conn) }

// Acceptor listens for TCP connections and turns each into a Conn.
type Acceptor struct {
	listener *net.TCPListener
	raw      syscall.RawConn
	logger   Logger
	opts     acceptorOptions

	mu     sync.Mutex
	closed bool
}

// Listen binds an acceptor to port on all interfaces. Port 0 picks a free
// port; see Addr.
func Listen(port int, opts ...AcceptorOption) (*Acceptor, error) {
	return New(&net.TCPAddr{Port: port}, opts...)
}

// New creates an acceptor bound to the specified address.
// Returns an error if the address cannot be bound.
func New(addr *net.TCPAddr, opts ...AcceptorOption) (*Acceptor, error) {
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "conduit: listen %s", addr)
	}

	raw, err := listener.SyscallConn()
	if err != nil {
		_ = listener.Close()
		return nil, errors.Wrap(err, "conduit: raw listener")
	}

	a := &Acceptor{
		listener: listener,
		raw:      raw,
	}
	for _, opt := range opts {
		opt(&a.opts)
	}
	if a.opts.logger == nil {
		a.opts.logger = defaultLogger()
	}
	if a.opts.pollInterval <= 0 {
		a.opts.pollInterval = defaultPollInterval
	}
	a.logger = a.opts.logger

	a.logger.Debug("acceptor listening", "addr", listener.Addr())
	return a, nil
}

// Addr returns the listener's network address.
func (a *Acceptor) Addr() net.Addr {
	return a.listener.Addr()
}

// OK reports whether the acceptor is bound and not closed.
func (a *Acceptor) OK() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listener != nil && !a.closed
}

// ClientWaiting reports, without blocking, whether a connection is pending.
func (a *Acceptor) ClientWaiting() bool {
	if !a.OK() {
		return false
	}
	ready, err := pollReadable(a.raw, 0, nil)
	if err != nil {
		a.logger.Debug("acceptor poll error", "addr", a.Addr(), "error", err)
		return false
	}
	return ready
}

// WaitForConnection waits up to timeout for a pending connection and returns
// it as a Conn. A timeout <= 0 waits indefinitely. When the timeout expires
// it returns nil and no error.
func (a *Acceptor) WaitForConnection(timeout time.Duration) (*Conn, error) {
	if !a.OK() {
		return nil, ErrAcceptorClosed
	}

	wait := timeout
	if wait <= 0 {
		wait = -1
	}
	ready, err := pollReadable(a.raw, wait, func() bool { return !a.OK() })
	if !a.OK() {
		return nil, ErrAcceptorClosed
	}
	if err != nil {
		return nil, &IOError{Op: "poll", Addr: a.Addr(), Err: err}
	}
	if !ready {
		return nil, nil
	}

	// The connection is pending, so accept should not wait; the deadline
	// only guards against a peer that reset in between.
	_ = a.listener.SetDeadline(time.Now().Add(acceptGrace))
	tcpConn, err := a.listener.AcceptTCP()
	_ = a.listener.SetDeadline(time.Time{})
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &IOError{Op: "accept", Addr: a.Addr(), Err: ErrNoConnection}
		}
		return nil, &IOError{Op: "accept", Addr: a.Addr(), Err: err}
	}

	conn, err := NewConn(tcpConn, a.opts.connOpts...)
	if err != nil {
		_ = tcpConn.Close()
		return nil, err
	}

	a.logger.Debug("accepted connection", "id", conn.ID(), "remote_addr", conn.Addr())
	return conn, nil
}

// Serve accepts connections and dispatches each conduit to handler in its
// own goroutine. It blocks until the context is canceled, the acceptor is
// closed, or accepting fails.
func (a *Acceptor) Serve(ctx context.Context, handler Handler) error {
	a.logger.Info("acceptor serving", "addr", a.Addr())

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("acceptor stopped", "addr", a.Addr())
			return ctx.Err()
		default:
		}

		conn, err := a.WaitForConnection(a.opts.pollInterval)
		if err != nil {
			if errors.Is(err, ErrNoConnection) {
				a.logger.Debug("pending connection vanished", "addr", a.Addr())
				continue
			}
			if errors.Is(err, ErrAcceptorClosed) {
				return err
			}
			a.logger.Error("accept error", "error", err)
			return err
		}
		if conn == nil {
			continue
		}

		go handler.Handle(conn)
	}
}

// Close closes the listener. Conduits already produced stay open.
func (a *Acceptor) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.logger.Debug("acceptor closed", "addr", a.Addr())
	return a.listener.Close()
}
