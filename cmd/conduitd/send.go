package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/conduit"
)

type sendFlags struct {
	msgType uint32
	wait    time.Duration
	timeout time.Duration
}

func newSendCmd(a *app) *cobra.Command {
	var f sendFlags

	cmd := &cobra.Command{
		Use:   "send [payload]",
		Short: "Send one message and optionally print the reply",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload conduit.RawMessage
			if len(args) == 1 {
				payload = conduit.RawMessage(args[0])
			}
			return runSend(cmd, a, f, payload)
		},
	}

	cmd.Flags().Uint32VarP(&f.msgType, "type", "t", 1, "message type, must not be 0")
	cmd.Flags().DurationVar(&f.wait, "wait", 0, "wait this long for a reply (0 sends and exits)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Second, "dial timeout")
	return cmd
}

func runSend(cmd *cobra.Command, a *app, f sendFlags, payload conduit.RawMessage) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	conn, err := conduit.Dial(dialCtx, a.cfg.Address, a.cfg.connOptions(a.logger)...)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Send(f.msgType, payload); err != nil {
		return err
	}
	a.logger.Debug("message sent", "id", conn.ID(), "type", f.msgType, "size", len(payload))

	if f.wait <= 0 {
		return nil
	}

	deadline := time.Now().Add(f.wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errors.Errorf("no reply within %s", f.wait)
		}

		msgType, err := conn.WaitForMessage(remaining)
		if err != nil {
			return err
		}
		if msgType == 0 {
			continue
		}

		var reply conduit.RawMessage
		if _, err := conn.Receive(&reply); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "type=%d size=%d payload=%q\n", msgType, len(reply), string(reply))
		return nil
	}
}
