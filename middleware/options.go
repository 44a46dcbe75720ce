package middleware

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/eventbus"
)

// Default configuration values
var (
	DefaultStoreTimeout = time.Second
)

// options holds configuration shared by the middlewares (unexported)
type options struct {
	storeTimeout time.Duration
	onSkip       func(key string)
	logger       *slog.Logger
}

// Option configures a middleware
type Option func(*options)

// WithStoreTimeout bounds each dedupe store call. Handlers have no context,
// so this is the only bound on a slow store.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.storeTimeout = d
		}
	}
}

// WithSkipHandler is called with the key of every payload Dedupe skips.
func WithSkipHandler(fn func(key string)) Option {
	return func(o *options) {
		if fn != nil {
			o.onSkip = fn
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
		storeTimeout: DefaultStoreTimeout,
		onSkip:       func(string) {},
		logger:       eventbus.Logger("middleware"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
