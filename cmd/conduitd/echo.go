package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/conduit"
)

func newEchoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "echo",
		Short: "Send every message back to the peer that sent it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acceptor, err := listen(a)
			if err != nil {
				return err
			}
			defer acceptor.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			s := newEchoServer(a.logger, a.cfg.PollInterval)
			defer s.closeAll()

			a.logger.Info("server start", "addr", acceptor.Addr())
			err = acceptor.Serve(ctx, s)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// echoServer tracks live conduits so they can be closed on shutdown.
type echoServer struct {
	logger *slog.Logger
	wait   time.Duration

	sync.RWMutex
	connections map[string]*conduit.Conn
}

func newEchoServer(logger *slog.Logger, wait time.Duration) *echoServer {
	return &echoServer{
		logger:      logger,
		wait:        wait,
		connections: make(map[string]*conduit.Conn),
	}
}

// Handle echoes messages until the conduit fails or is closed.
func (s *echoServer) Handle(conn *conduit.Conn) {
	s.addConn(conn)
	defer s.deleteConn(conn)
	defer conn.Close()

	for conn.OK() {
		msgType, err := conn.WaitForMessage(s.wait)
		if err != nil {
			s.logger.Debug("connection error", "id", conn.ID(), "error", err)
			return
		}
		if msgType == 0 {
			continue
		}

		var m conduit.RawMessage
		if _, err := conn.Receive(&m); err != nil {
			s.logger.Warn("dropping message", "id", conn.ID(), "type", msgType, "error", err)
			continue
		}
		if err := conn.Send(msgType, m); err != nil {
			s.logger.Error("echo failed", "id", conn.ID(), "error", err)
			return
		}
	}
}

func (s *echoServer) addConn(conn *conduit.Conn) {
	s.Lock()
	defer s.Unlock()

	s.logger.Info("add new conn", "id", conn.ID(), "addr", conn.Addr())
	s.connections[conn.ID()] = conn
}

func (s *echoServer) deleteConn(conn *conduit.Conn) {
	s.Lock()
	defer s.Unlock()

	delete(s.connections, conn.ID())
}

func (s *echoServer) count() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.connections)
}

func (s *echoServer) closeAll() {
	s.RLock()
	defer s.RUnlock()

	for _, conn := range s.connections {
		_ = conn.Close()
	}
}

// listen binds an acceptor on the configured address.
func listen(a *app) (*conduit.Acceptor, error) {
	addr, err := net.ResolveTCPAddr("tcp", a.cfg.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", a.cfg.Address)
	}
	return conduit.New(addr, a.cfg.acceptorOptions(a.logger)...)
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
