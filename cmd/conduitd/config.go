package main

import (
	"encoding/binary"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/Zereker/conduit"
)

// Config is the runtime configuration of conduitd.
type Config struct {
	Address           string
	ByteOrder         binary.ByteOrder
	MaxMessageSize    int
	SendAttempts      int
	SendRetryInterval time.Duration
	PollInterval      time.Duration
	PartialHeaders    bool
	LogLevel          slog.Level
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Address:           "127.0.0.1:12345",
		ByteOrder:         binary.LittleEndian,
		MaxMessageSize:    16 * 1024 * 1024,
		SendAttempts:      100,
		SendRetryInterval: time.Millisecond,
		PollInterval:      100 * time.Millisecond,
		LogLevel:          slog.LevelInfo,
	}
}

type fileConfig struct {
	Address           string `toml:"address"`
	ByteOrder         string `toml:"byte_order"`
	MaxMessageSize    int    `toml:"max_message_size"`
	SendAttempts      int    `toml:"send_attempts"`
	SendRetryInterval string `toml:"send_retry_interval"`
	PollInterval      string `toml:"poll_interval"`
	PartialHeaders    bool   `toml:"partial_headers"`
	LogLevel          string `toml:"log_level"`
}

// loadConfig overlays the keys present in the TOML file at path onto the
// defaults. An empty path returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrap(err, "load conduitd config")
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("address") {
		if addr := strings.TrimSpace(raw.Address); addr != "" {
			cfg.Address = addr
		}
	}

	if meta.IsDefined("byte_order") {
		order, err := parseByteOrder(raw.ByteOrder)
		if err != nil {
			return Config{}, err
		}
		cfg.ByteOrder = order
	}

	if meta.IsDefined("max_message_size") {
		if raw.MaxMessageSize <= 0 {
			return Config{}, errors.Errorf("max_message_size must be positive, got %d", raw.MaxMessageSize)
		}
		cfg.MaxMessageSize = raw.MaxMessageSize
	}

	if meta.IsDefined("send_attempts") {
		if raw.SendAttempts <= 0 {
			return Config{}, errors.Errorf("send_attempts must be positive, got %d", raw.SendAttempts)
		}
		cfg.SendAttempts = raw.SendAttempts
	}

	if meta.IsDefined("send_retry_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SendRetryInterval))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse send_retry_interval")
		}
		cfg.SendRetryInterval = d
	}

	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse poll_interval")
		}
		cfg.PollInterval = d
	}

	if meta.IsDefined("partial_headers") {
		cfg.PartialHeaders = raw.PartialHeaders
	}

	if meta.IsDefined("log_level") {
		level, err := parseLogLevel(raw.LogLevel)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}

func parseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "little", "little-endian", "le":
		return binary.LittleEndian, nil
	case "big", "big-endian", "be":
		return binary.BigEndian, nil
	}
	return nil, errors.Errorf("unknown byte order %q", s)
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, errors.Wrap(err, "parse log_level")
	}
	return level, nil
}

// newLogger builds the process logger.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// connOptions translates the configuration into conduit options.
func (c Config) connOptions(logger conduit.Logger) []conduit.Option {
	return []conduit.Option{
		conduit.ByteOrderOption(c.ByteOrder),
		conduit.MessageMaxSize(c.MaxMessageSize),
		conduit.SendRetryOption(c.SendAttempts, c.SendRetryInterval),
		conduit.PartialHeaderOption(c.PartialHeaders),
		conduit.LoggerOption(logger),
	}
}

func (c Config) acceptorOptions(logger conduit.Logger) []conduit.AcceptorOption {
	return []conduit.AcceptorOption{
		conduit.AcceptorLoggerOption(logger),
		conduit.PollIntervalOption(c.PollInterval),
		conduit.ConnOptions(c.connOptions(logger)...),
	}
}
