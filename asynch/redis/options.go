package redis

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/eventbus"
)

// Default configuration values
var (
	// DefaultBufferSize is the per-subscription receive buffer
	DefaultBufferSize = 100

	// DefaultName names buses created without WithName
	DefaultName = "redis"

	// DefaultAttemptTimeout bounds the single publish made when Send is
	// called with a context that is already done
	DefaultAttemptTimeout = time.Second
)

// options holds configuration for the bus (unexported)
type options struct {
	name           string
	bufferSize     int
	attemptTimeout time.Duration
	maxSubscribers int
	maxPostboxes   int
	logger         *slog.Logger
}

// Option configures the Redis bus
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
// the Redis connection and Recv.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithAttemptTimeout bounds the one publish attempt Send makes when its
// context is already done (for example asynch.ToPostbox with NoWait).
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.attemptTimeout = d
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
		name:           DefaultName,
		bufferSize:     DefaultBufferSize,
		attemptTimeout: DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = eventbus.Logger("redis>" + o.name)
	}
	return o
}
