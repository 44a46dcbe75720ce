package push

import (
	"log/slog"

	"github.com/rbaliyan/eventbus"
)

// Default configuration values
var (
	// DefaultCapacity is the central queue capacity
	DefaultCapacity = 64

	// DefaultInboxSize is the per-subscription buffer size
	DefaultInboxSize = 64

	// DefaultName names buses created without WithName
	DefaultName = "push"
)

// options holds configuration for the bus (unexported)
type options struct {
	name           string
	capacity       int
	inboxSize      int
	maxSubscribers int
	maxPostboxes   int
	recovery       bool
	onDrop         func(subscriber string)
	logger         *slog.Logger
}

// Option configures the push bus
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

// WithInboxSize sets the per-subscription buffer. A subscriber whose inbox
// is full misses the payload; the drop is counted in Stats.
func WithInboxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.inboxSize = n
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
func WithRecovery(enabled bool) Option {
	return func(o *options) {
		o.recovery = enabled
	}
}

// WithDropHandler sets a callback invoked with the subscription id whenever
// a payload is dropped for it. It runs on the dispatcher goroutine and must
// not block.
func WithDropHandler(fn func(subscriber string)) Option {
	return func(o *options) {
		if fn != nil {
			o.onDrop = fn
		}
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
		name:      DefaultName,
		capacity:  DefaultCapacity,
		inboxSize: DefaultInboxSize,
		recovery:  true,
		onDrop:    func(string) {}, // no-op default
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = eventbus.Logger("push>" + o.name)
	}
	return o
}
