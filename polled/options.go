package polled

import (
	"log/slog"

	"github.com/rbaliyan/eventbus"
)

// Default configuration values
var (
	// DefaultCapacity is the queue capacity when none is set
	DefaultCapacity = 16

	// DefaultName names buses created without WithName
	DefaultName = "polled"
)

// options holds configuration for the bus (unexported)
type options struct {
	name           string
	capacity       int
	maxSubscribers int
	maxPostboxes   int
	recovery       bool
	logger         *slog.Logger
}

// Option configures the polled bus
type Option func(*options)

// WithName sets the bus name used in logs and metrics
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithCapacity sets how many payloads may wait for the next Spin.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithMaxSubscribers bounds the subscription table. Zero means unlimited.
func WithMaxSubscribers(n int) Option {
	return func(o *options) {
		o.maxSubscribers = n
	}
}

// WithMaxPostboxes bounds the number of live postbox handles.
// Zero means unlimited.
func WithMaxPostboxes(n int) Option {
	return func(o *options) {
		o.maxPostboxes = n
	}
}

// WithRecovery enables/disables panic recovery around handlers.
// Recovery should stay enabled; it can be disabled for testing.
func WithRecovery(enabled bool) Option {
	return func(o *options) {
		o.recovery = enabled
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
		name:     DefaultName,
		capacity: DefaultCapacity,
		recovery: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = eventbus.Logger("polled>" + o.name)
	}
	return o
}
