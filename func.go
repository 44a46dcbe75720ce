package eventbus

import (
	"io"
	"time"
)

// PostboxFunc adapts an ordinary function to a Postbox.
type PostboxFunc[P any] func(payload P, wait time.Duration) (bool, error)

// Post calls f(payload, wait).
func (f PostboxFunc[P]) Post(payload P, wait time.Duration) (bool, error) {
	return f(payload, wait)
}

// PostboxProviderFunc adapts an ordinary function to a PostboxProvider.
type PostboxProviderFunc[P any] func() (Postbox[P], error)

// Postbox calls f().
func (f PostboxProviderFunc[P]) Postbox() (Postbox[P], error) {
	return f()
}

// SpinnerFunc adapts an ordinary function to a Spinner.
type SpinnerFunc func(wait time.Duration) error

// Spin calls f(wait).
func (f SpinnerFunc) Spin(wait time.Duration) error {
	return f(wait)
}

// Nop is a Spinner for buses that deliver on their own goroutines.
var Nop Spinner = SpinnerFunc(func(time.Duration) error { return nil })

// sharedProvider returns the same postbox to every caller.
type sharedProvider[P any] struct {
	pb Postbox[P]
}

// Shared returns a provider that hands out pb to every caller. It suits
// postboxes that are already safe for concurrent use.
func Shared[P any](pb Postbox[P]) PostboxProvider[P] {
	return sharedProvider[P]{pb: pb}
}

func (s sharedProvider[P]) Postbox() (Postbox[P], error) {
	return s.pb, nil
}

// Release closes v if it holds a slot (implements io.Closer).
// Shared and zero sized handles are left alone.
func Release(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Compile-time interface checks
var _ Postbox[int] = PostboxFunc[int](nil)
var _ PostboxProvider[int] = PostboxProviderFunc[int](nil)
var _ Spinner = SpinnerFunc(nil)
var _ PostboxProvider[int] = sharedProvider[int]{}
