// Command conduitd runs demonstration servers and a client for the conduit
// message transport.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	address    string
	byteOrder  string
	logLevel   string
}

// app carries the state resolved in PersistentPreRunE.
type app struct {
	flags  globalFlags
	cfg    Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "conduitd",
		Short: "Message conduit demo server and client",
		Long: `conduitd exercises the conduit transport. The relay and echo commands
accept connections and forward or echo every message they receive; send
delivers a single message and optionally waits for a reply.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.flags.configPath, "config", "", "TOML config file")
	flags.StringVar(&a.flags.address, "addr", "", "listen or dial address (default \"127.0.0.1:12345\")")
	flags.StringVar(&a.flags.byteOrder, "byte-order", "", "header type and payload byte order: little or big")
	flags.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(newRelayCmd(a), newEchoCmd(a), newSendCmd(a))
	return rootCmd
}

// init loads the config file and applies the flags that were set on top.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.flags.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Address = a.flags.address
	}
	if flags.Changed("byte-order") {
		if cfg.ByteOrder, err = parseByteOrder(a.flags.byteOrder); err != nil {
			return err
		}
	}
	if flags.Changed("log-level") {
		if cfg.LogLevel, err = parseLogLevel(a.flags.logLevel); err != nil {
			return err
		}
	}

	a.cfg = cfg
	a.logger = newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
