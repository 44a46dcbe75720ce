// Package asynch defines the suspending variants of the bus capabilities.
//
// Where package eventbus bounds waits with a time.Duration, the interfaces
// here take a context.Context: ending the context is the caller's way of
// giving up, and it is never reported as a fault.
//
//	pb, err := bus.Postbox(ctx)
//	if err != nil {
//	    return err
//	}
//	defer eventbus.Release(pb)
//
//	ok, err := pb.Send(ctx, order)
//	switch {
//	case err != nil:
//	    // bus closed or handle released
//	case !ok:
//	    // ctx ended before the bus accepted the payload
//	}
//
// Receivers yield payloads by value:
//
//	sub, err := bus.Subscribe(ctx)
//	if err != nil {
//	    return err
//	}
//	defer sub.Close()
//	for {
//	    order, err := sub.Recv(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    process(order)
//	}
package asynch

import (
	"context"

	"github.com/rbaliyan/eventbus"
)

// Sender accepts payloads, suspending while the bus has no room.
//
// Send returns (true, nil) once the payload was accepted and (false, nil)
// if ctx ended first. A non-nil error is a fault (closed bus, released
// handle); the payload was not accepted.
type Sender[P any] interface {
	Send(ctx context.Context, payload P) (bool, error)
}

// Receiver yields payloads one at a time.
//
// Recv returns ctx.Err() if ctx ends before a payload is available and a
// fault wrapping eventbus.ErrClosed once the subscription or the bus was
// closed.
type Receiver[P any] interface {
	Recv(ctx context.Context) (P, error)
}

// Subscription is a Receiver with a registration. Close is idempotent;
// after it returns Recv yields no further payloads.
type Subscription[P any] interface {
	Receiver[P]
	eventbus.Subscription
}

// Bus hands out subscriptions. Subscribe may suspend (network buses confirm
// the registration with their server). If ctx ends during Subscribe any
// partial registration is released and ctx.Err() is returned.
type Bus[P any] interface {
	Subscribe(ctx context.Context) (Subscription[P], error)
}

// PostboxProvider hands out senders. Like Bus.Subscribe, cancelling ctx
// releases a partially acquired handle.
type PostboxProvider[P any] interface {
	Postbox(ctx context.Context) (Sender[P], error)
}

// SenderFunc adapts an ordinary function to a Sender.
type SenderFunc[P any] func(ctx context.Context, payload P) (bool, error)

// Send calls f(ctx, payload).
func (f SenderFunc[P]) Send(ctx context.Context, payload P) (bool, error) {
	return f(ctx, payload)
}

// ReceiverFunc adapts an ordinary function to a Receiver.
type ReceiverFunc[P any] func(ctx context.Context) (P, error)

// Recv calls f(ctx).
func (f ReceiverFunc[P]) Recv(ctx context.Context) (P, error) {
	return f(ctx)
}

type sharedProvider[P any] struct {
	s Sender[P]
}

// Shared returns a provider that hands out s to every caller.
func Shared[P any](s Sender[P]) PostboxProvider[P] {
	return sharedProvider[P]{s: s}
}

func (p sharedProvider[P]) Postbox(ctx context.Context) (Sender[P], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.s, nil
}

// Compile-time interface checks
var _ Sender[int] = SenderFunc[int](nil)
var _ Receiver[int] = ReceiverFunc[int](nil)
var _ PostboxProvider[int] = sharedProvider[int]{}
