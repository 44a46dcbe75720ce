package eventbus

import (
	"errors"
	"fmt"
)

// Capability faults. Backpressure is never reported through these.
var (
	// ErrClosed indicates the bus or its underlying primitive was shut down.
	ErrClosed = errors.New("bus closed")

	// ErrInvalidated indicates the handle itself was released.
	ErrInvalidated = errors.New("handle released")

	// ErrExhausted indicates a registration table is full.
	ErrExhausted = errors.New("registration table exhausted")
)

// ErrNilHandler is returned by Subscribe when the handler is nil. It is a
// caller error, not a capability fault.
var ErrNilHandler = errors.New("nil handler")

// Fault is the error kind shared by every capability in this module.
// Op names the operation that failed ("post", "subscribe", "spin", ...).
type Fault struct {
	Op  string
	Err error
}

func (f *Fault) Error() string {
	if f.Op == "" {
		return f.Err.Error()
	}
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault wraps err as a fault of op.
func NewFault(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Op: op, Err: err}
}

// IsFault reports whether err is a capability fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}
