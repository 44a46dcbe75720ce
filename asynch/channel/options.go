package channel

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/eventbus"
)

// Default configuration values
var (
	// DefaultCapacity is the central queue capacity
	DefaultCapacity = 64

	// DefaultBufferSize is the per-receiver buffer size
	DefaultBufferSize = 16

	// DefaultName names buses created without WithName
	DefaultName = "channel"
)

// options holds configuration for the bus (unexported)
type options struct {
	name            string
	capacity        int
	bufferSize      int
	deliveryTimeout time.Duration
	maxSubscribers  int
	maxPostboxes    int
	logger          *slog.Logger
}

// Option configures the channel bus
type Option func(*options)

// WithName sets the bus name used in logs and metrics
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithCapacity sets how many accepted payloads may wait for dispatch.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithBufferSize sets how many payloads each receiver buffers ahead of Recv.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.bufferSize = n
		}
	}
}

// WithDeliveryTimeout bounds how long the dispatcher waits on a full
// receiver. Zero (default) waits indefinitely, which pushes backpressure
// back to senders. With a timeout, a receiver that stays full misses the
// payload and the drop is counted.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(o *options) {
		o.deliveryTimeout = d
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

// WithLogger sets the logger for the bus
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
		name:       DefaultName,
		capacity:   DefaultCapacity,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = eventbus.Logger("channel>" + o.name)
	}
	return o
}
