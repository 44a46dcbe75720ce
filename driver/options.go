package driver

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/eventbus"
)

// Default configuration values
var (
	// DefaultSpinWait bounds each Spin so the loop notices cancellation
	DefaultSpinWait = 100 * time.Millisecond
)

// options holds configuration for the driver loop (unexported)
type options struct {
	spinWait time.Duration
	interval time.Duration
	onFault  func(error) bool
	logger   *slog.Logger
}

// Option configures the driver loop
type Option func(*options)

// WithSpinWait sets the wait passed to every Spin. Negative values are
// ignored: an unbounded Spin would never observe cancellation.
func WithSpinWait(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.spinWait = d
		}
	}
}

// WithInterval pauses between spins. Use it for spinners that return
// immediately, such as push buses or eventbus.Nop.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithFaultHandler is called with every fault other than ErrClosed. The loop
// continues if it returns true and stops with the fault otherwise. The
// default stops.
func WithFaultHandler(fn func(error) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.onFault = fn
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
		spinWait: DefaultSpinWait,
		onFault:  func(error) bool { return false },
		logger:   eventbus.Logger("driver"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
