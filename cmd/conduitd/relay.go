package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/conduit"
)

// relayIdle is how long the relay sleeps after a pass that moved nothing.
const relayIdle = time.Millisecond

func newRelayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Forward every message to all other connected peers",
		Long: `relay accepts connections and, from a single goroutine, polls every
conduit in turn. Each complete message is forwarded unchanged to all other
connected peers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acceptor, err := listen(a)
			if err != nil {
				return err
			}
			defer acceptor.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			r := newRelay(acceptor, a.logger)
			defer r.closeAll()
			return r.run(ctx)
		},
	}
}

// relay services an acceptor and its conduits from one goroutine.
type relay struct {
	acceptor *conduit.Acceptor
	logger   *slog.Logger
	conns    []*conduit.Conn
}

func newRelay(acceptor *conduit.Acceptor, logger *slog.Logger) *relay {
	return &relay{acceptor: acceptor, logger: logger}
}

func (r *relay) run(ctx context.Context) error {
	r.logger.Info("relay start", "addr", r.acceptor.Addr())

	for {
		busy, err := r.step()
		if err != nil {
			return err
		}
		if busy {
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped", "addr", r.acceptor.Addr())
			return nil
		case <-time.After(relayIdle):
		}
	}
}

// step accepts a pending connection if there is one, then drains every
// complete message. It reports whether anything happened.
func (r *relay) step() (bool, error) {
	busy := false

	if r.acceptor.ClientWaiting() {
		conn, err := r.acceptor.WaitForConnection(relayIdle)
		switch {
		case errors.Is(err, conduit.ErrNoConnection):
			r.logger.Debug("pending connection vanished")
		case err != nil:
			return false, err
		case conn != nil:
			r.logger.Info("peer joined", "id", conn.ID(), "addr", conn.Addr())
			r.conns = append(r.conns, conn)
			busy = true
		}
	}

	for _, conn := range r.conns {
		for {
			msgType, err := conn.WaitingMessageType()
			if err != nil {
				r.logger.Warn("peer failed", "id", conn.ID(), "error", err)
				break
			}
			if msgType == 0 {
				break
			}

			var m conduit.RawMessage
			if _, err := conn.Receive(&m); err != nil {
				r.logger.Warn("dropping message", "id", conn.ID(), "type", msgType, "error", err)
				continue
			}
			busy = true

			targets := r.others(conn)
			r.logger.Debug("relaying", "id", conn.ID(), "type", msgType, "size", len(m), "targets", len(targets))
			if err := conduit.Multisend(targets, msgType, m); err != nil {
				r.logger.Warn("relay send failed", "type", msgType, "error", err)
			}
		}
	}

	r.prune()
	return busy, nil
}

// others returns the live conduits except from.
func (r *relay) others(from *conduit.Conn) []*conduit.Conn {
	out := make([]*conduit.Conn, 0, len(r.conns))
	for _, c := range r.conns {
		if c != from && c.OK() {
			out = append(out, c)
		}
	}
	return out
}

// prune drops conduits that failed or were closed.
func (r *relay) prune() {
	live := r.conns[:0]
	for _, c := range r.conns {
		if c.OK() {
			live = append(live, c)
			continue
		}
		s := c.Stats()
		r.logger.Info("peer left", "id", c.ID(), "received", s.MessagesReceived, "sent", s.MessagesSent)
	}
	clear(r.conns[len(live):])
	r.conns = live
}

func (r *relay) closeAll() {
	for _, c := range r.conns {
		_ = c.Close()
	}
	r.conns = nil
}
