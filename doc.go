// Package eventbus defines the capability contracts of a small publish/subscribe
// event bus that can be driven either by polling or by its own goroutines.
//
// The package holds no bus of its own. Concrete buses live in subpackages:
//   - polled: delivery happens inside Spin, on the caller's goroutine
//   - push: delivery happens on goroutines owned by the bus, Spin is a no-op
//   - kafka: a postbox provider handing payloads to a Kafka producer
//   - asynch: the suspending (context based) contracts and their buses
//
// Supporting packages decorate or host any of them: ratelimit throttles
// postboxes, middleware wraps handlers, driver runs Spin loops, metrics
// exports Stats to Prometheus and fxbus provides buses to fx applications.
//
// # Contracts
//
// A producer obtains a Postbox from a PostboxProvider and posts payloads:
//
//	pb, err := bus.Postbox()
//	if err != nil {
//	    return err // capability fault: bus closed, table full
//	}
//	defer eventbus.Release(pb)
//
//	ok, err := pb.Post(order, eventbus.NoWait)
//	switch {
//	case err != nil:
//	    // fault: the bus or the handle is unusable
//	case !ok:
//	    // backpressure: the bus could not take the payload right now
//	}
//
// A consumer registers a Handler and keeps the returned Subscription for as
// long as it wants deliveries:
//
//	sub, err := bus.Subscribe(func(o Order) {
//	    fmt.Println("order", o.ID)
//	})
//	if err != nil {
//	    return err
//	}
//	defer sub.Close()
//
// Polling buses also implement Spinner. A driver loop calls Spin to move
// queued payloads to subscribers; see package driver.
//
// # Two channels for failure
//
// Post and Send report backpressure with a boolean and faults with an error.
// A full queue or an elapsed wait is a normal outcome and never an error.
// Capability faults are *Fault values wrapping ErrClosed, ErrInvalidated or
// ErrExhausted. Network buses also report broker failures as a *Fault wrapping
// the transport error. Errors that are not faults are caller mistakes, such
// as a payload the codec cannot encode (codec.ErrEncodeFailure) or a nil
// handler (ErrNilHandler). Use errors.Is or IsFault to tell them apart.
//
// # Wait bounds
//
// Blocking operations take a time.Duration: NoWait makes a single attempt,
// Forever waits without bound and a positive duration bounds the wait.
package eventbus
