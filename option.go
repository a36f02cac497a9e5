package conduit

import (
	"encoding/binary"
	"time"
)

// Default configuration values.
const (
	// defaultMaxMessageSize is the default maximum payload accepted from a header (16MB).
	defaultMaxMessageSize = 16 * 1024 * 1024
	// defaultSendAttempts is the number of consecutive zero-progress writes
	// tolerated before a send fails.
	defaultSendAttempts = 100
	// defaultSendRetryInterval is the pause between zero-progress writes.
	defaultSendRetryInterval = time.Millisecond
	// defaultPollInterval bounds each wait inside Acceptor.Serve.
	defaultPollInterval = 100 * time.Millisecond
)

// options holds the configuration for a conduit.
type options struct {
	logger    Logger
	byteOrder binary.ByteOrder

	maxMessageSize    int
	sendAttempts      int
	sendRetryInterval time.Duration

	// partialHeaders buffers a header split across reads instead of
	// treating it as a desynchronized stream.
	partialHeaders bool
}

// Option is a function that configures conduit options.
type Option func(*options)

// checkOptions sets default values for conduit options.
func checkOptions(opts *options) {
	if opts.byteOrder == nil {
		opts.byteOrder = binary.LittleEndian
	}

	if opts.maxMessageSize <= 0 {
		opts.maxMessageSize = defaultMaxMessageSize
	}

	if opts.sendAttempts <= 0 {
		opts.sendAttempts = defaultSendAttempts
	}

	if opts.sendRetryInterval <= 0 {
		opts.sendRetryInterval = defaultSendRetryInterval
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}

// ByteOrderOption returns an Option that sets the byte order of the header
// type field and of every payload buffer. The header size field is always
// big-endian. Defaults to little-endian.
func ByteOrderOption(order binary.ByteOrder) Option {
	return func(o *options) {
		o.byteOrder = order
	}
}

// MessageMaxSize returns an Option that sets the largest payload a header may
// announce. Larger messages close the conduit with ErrMessageTooLarge.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// SendRetryOption returns an Option that bounds the send loop: it fails after
// attempts consecutive zero-progress writes, sleeping interval between them.
func SendRetryOption(attempts int, interval time.Duration) Option {
	return func(o *options) {
		o.sendAttempts = attempts
		o.sendRetryInterval = interval
	}
}

// PartialHeaderOption returns an Option that controls how a header split
// across reads is handled. When false (the default) the conduit is closed
// with ErrProtocolDesync; when true the bytes are kept until the header is
// complete.
func PartialHeaderOption(enabled bool) Option {
	return func(o *options) {
		o.partialHeaders = enabled
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// acceptorOptions holds the configuration for an Acceptor.
type acceptorOptions struct {
	logger       Logger
	pollInterval time.Duration
	connOpts     []Option
}

// AcceptorOption configures an Acceptor.
type AcceptorOption func(*acceptorOptions)

// AcceptorLoggerOption sets the logger for the acceptor.
func AcceptorLoggerOption(logger Logger) AcceptorOption {
	return func(o *acceptorOptions) {
		o.logger = logger
	}
}

// PollIntervalOption sets how long each wait inside Serve blocks before the
// context is checked again.
func PollIntervalOption(interval time.Duration) AcceptorOption {
	return func(o *acceptorOptions) {
		o.pollInterval = interval
	}
}

// ConnOptions sets the options applied to every accepted conduit.
func ConnOptions(opts ...Option) AcceptorOption {
	return func(o *acceptorOptions) {
		o.connOpts = append(o.connOpts, opts...)
	}
}
