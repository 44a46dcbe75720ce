package nats

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/eventbus"
)

// Default configuration values
var (
	// DefaultBufferSize is the per-subscription receive buffer
	DefaultBufferSize = 256

	// DefaultName names buses created without WithName
	DefaultName = "nats"

	// DefaultFlushTimeout bounds the subscription round trip when the
	// Subscribe context has no deadline
	DefaultFlushTimeout = 5 * time.Second
)

// options holds configuration for the bus (unexported)
type options struct {
	name           string
	bufferSize     int
	maxSubscribers int
	maxPostboxes   int
	flushTimeout   time.Duration
	logger         *slog.Logger
}

// Option configures the NATS bus
type Option func(*options)

// WithName sets the bus name used in logs and metrics
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithBufferSize sets how many messages each subscription buffers between
// the NATS connection and Recv. Messages arriving at a full buffer are
// dropped by the client and counted as slow consumer drops.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithMaxSubscribers bounds the subscription table. Zero means unlimited.
func WithMaxSubscribers(n int) Option {
	return func(o *options) {
		o.maxSubscribers = n
	}
}

// WithMaxPostboxes bounds the number of live senders. Zero means unlimited.
func WithMaxPostboxes(n int) Option {
	return func(o *options) {
		o.maxPostboxes = n
	}
}

// WithFlushTimeout sets the bound used by Subscribe when its context has no
// deadline.
func WithFlushTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.flushTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// newOptions creates options with defaults and applies provided options
func newOptions(opts ...Option) *options {
	o := &options{
		name:         DefaultName,
		bufferSize:   DefaultBufferSize,
		flushTimeout: DefaultFlushTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = eventbus.Logger("nats>" + o.name)
	}
	return o
}
