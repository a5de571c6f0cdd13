package beanstalk

import (
	"context"
	"net"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

// Default configuration values.
const (
	// defaultInitialDelay is the first wait after a failed connection attempt.
	defaultInitialDelay = 10 * time.Millisecond
	// defaultMaxDelay caps the wait between connection attempts.
	defaultMaxDelay = 5 * time.Second
	// defaultBufferSize is the number of encoded commands queued for the writer.
	defaultBufferSize = 64
	// defaultReadBufferSize is the size of a single read from the connection.
	defaultReadBufferSize = 4096
	// defaultCloseTimeout bounds how long Close waits for the server to hang up.
	defaultCloseTimeout = time.Second
	// defaultMaxFrameSize is the largest reply body accepted from the server.
	defaultMaxFrameSize = 16 << 20
)

// ErrInvalidRetryDelay is returned when the initial delay is zero or the backoff
// cap is below it.
var ErrInvalidRetryDelay = errors.New("invalid retry delay")

// DialFunc opens the transport. net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// options holds the configuration for a client.
type options struct {
	logger  Logger
	decoder Decoder
	dial    DialFunc
	metrics *metrics.Set

	initialDelay time.Duration // negative disables retry
	maxDelay     time.Duration
	dialTimeout  time.Duration
	closeTimeout time.Duration
	writeTimeout time.Duration // zero means no write deadline

	bufferSize     int  // size of buffered send channel
	readBufferSize int  // bytes per read
	maxFrameSize   int  // largest reply body accepted
	replayState    bool // re-issue use/watch/ignore after a reconnect
}

// Option is a function that configures client options.
type Option func(*options)

func newOptions(opt []Option) options {
	opts := options{
		logger:       defaultLogger(),
		initialDelay: defaultInitialDelay,
		maxDelay:     defaultMaxDelay,
		closeTimeout: defaultCloseTimeout,
	}
	for _, o := range opt {
		o(&opts)
	}
	return opts
}

// checkOptions validates and sets default values for client options.
func checkOptions(opts *options) error {
	if opts.initialDelay == 0 {
		return errors.Wrap(ErrInvalidRetryDelay, "initial delay must be positive, or negative to disable retrying")
	}
	if opts.initialDelay > 0 && opts.maxDelay < opts.initialDelay {
		return errors.Wrapf(ErrInvalidRetryDelay, "max %v below initial %v", opts.maxDelay, opts.initialDelay)
	}

	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}

	if opts.closeTimeout <= 0 {
		opts.closeTimeout = defaultCloseTimeout
	}

	if opts.maxFrameSize <= 0 {
		opts.maxFrameSize = defaultMaxFrameSize
	}

	if opts.logger == nil {
		opts.logger = discardLogger()
	}

	if opts.dial == nil {
		d := &net.Dialer{Timeout: opts.dialTimeout, KeepAlive: 30 * time.Second}
		opts.dial = d.DialContext
	}

	if opts.metrics == nil {
		opts.metrics = metrics.NewSet()
	}

	return nil
}

// RetryDelayOption sets the backoff used while connecting. The first wait is
// initial and doubles after every failure up to max. A negative initial delay
// disables retrying: the first failure is returned to the caller. Zero is
// rejected by Dial.
func RetryDelayOption(initial, max time.Duration) Option {
	return func(o *options) {
		o.initialDelay = initial
		o.maxDelay = max
	}
}

// NoRetryOption makes every connect loop give up after one failed attempt.
// Dial then fails on the first unsuccessful attempt. After an established
// connection drops, the client still dials once; if that fails it stays
// Disconnected.
func NoRetryOption() Option {
	return func(o *options) {
		o.initialDelay = -1
	}
}

// DecoderOption sets the decoder applied to document replies (stats and tube
// listings). Without one, Frame.Doc stays nil and only Frame.Body is set.
func DecoderOption(d Decoder) Option {
	return func(o *options) {
		o.decoder = d
	}
}

// DialerOption replaces the function used to open the transport.
func DialerOption(dial DialFunc) Option {
	return func(o *options) {
		o.dial = dial
	}
}

// DialTimeoutOption bounds each connection attempt.
func DialTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = timeout
	}
}

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// ReadBufferSizeOption sets how many bytes are read from the connection at once.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// MaxFrameSizeOption sets the largest reply body the client accepts. A reply
// declaring more drops the connection with ErrFrameTooLarge.
func MaxFrameSizeOption(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// WriteTimeoutOption sets a deadline on every write to the connection. A write
// that stalls longer drops the connection. Reads carry no deadline because a
// reserve may legitimately wait forever.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// CloseTimeoutOption bounds how long Close waits for the server to hang up
// after quit before the socket is closed locally.
func CloseTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.closeTimeout = timeout
	}
}

// ReplayStateOption makes the client re-issue the used tube and watch list on
// every new connection. By default a reconnected client starts from the
// server's defaults (tube "default" used and watched).
func ReplayStateOption(replay bool) Option {
	return func(o *options) {
		o.replayState = replay
	}
}

// MetricsOption registers the client's metrics in set instead of a private one.
func MetricsOption(set *metrics.Set) Option {
	return func(o *options) {
		o.metrics = set
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used; nil silences the client.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
