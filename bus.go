package eventbus

import "time"

// Postbox injects payloads into a bus.
//
// Post returns true when the payload was accepted for delivery. Acceptance is
// not a delivery confirmation: subscribers may observe the payload later, or
// not at all if the bus documents drops. Post returns false when the payload
// could not be accepted within wait. The error is reserved for capability
// faults (handle released, bus closed) and is never used for backpressure.
type Postbox[P any] interface {
	Post(payload P, wait time.Duration) (bool, error)
}

// Handler receives payloads delivered to a subscription. A bus may invoke it
// from any goroutine, so it must be safe for that.
type Handler[P any] func(payload P)

// Subscription is a live registration. Deliveries continue until Close.
//
// Close is idempotent. Once it returns no new invocation of the handler
// starts; an invocation already running may still complete.
type Subscription interface {
	Close() error
}

// Bus registers handlers for published payloads.
//
// Each accepted payload is delivered to every subscription active at the
// time it is dispatched, in acceptance order. Subscribe fails only when the
// registration itself cannot be made.
type Bus[P any] interface {
	Subscribe(handler Handler[P]) (Subscription, error)
}

// PostboxProvider hands out postboxes scoped to the caller. Implementations
// may return a fresh handle per call or one shared handle. Handles that
// implement io.Closer hold a slot in the provider and should be released
// with Release once no longer needed.
type PostboxProvider[P any] interface {
	Postbox() (Postbox[P], error)
}

// Spinner advances a polling bus. Spin blocks until some work was done or
// wait elapsed. Buses that deliver on their own goroutines implement it as
// a no-op.
type Spinner interface {
	Spin(wait time.Duration) error
}
