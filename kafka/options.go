package kafka

import (
	"log/slog"

	"github.com/rbaliyan/eventbus"
)

// Default configuration values
var (
	// DefaultName names providers created without WithName
	DefaultName = "kafka"
)

// options holds configuration for the provider (unexported)
type options struct {
	name         string
	maxPostboxes int
	logger       *slog.Logger
}

// Option configures the Kafka postbox provider
type Option func(*options)

// WithName sets the provider name used in logs and metrics
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithMaxPostboxes bounds the number of live postbox handles.
// Zero means unlimited.
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
		name: DefaultName,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = eventbus.Logger("kafka>" + o.name)
	}
	return o
}
