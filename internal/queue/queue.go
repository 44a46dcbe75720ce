// Package queue provides the bounded FIFO shared by the in-memory buses.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/eventbus"
)

// DefaultCapacity is used when a non-positive capacity is given.
const DefaultCapacity = 16

// Queue is a bounded FIFO safe for concurrent producers and consumers.
type Queue[P any] struct {
	items  chan P
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

// New creates a queue holding at most capacity payloads.
func New[P any](capacity int) *Queue[P] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[P]{
		items: make(chan P, capacity),
		done:  make(chan struct{}),
	}
}

// Offer enqueues p, waiting up to wait for room.
// Returns false if there was no room within the bound.
func (q *Queue[P]) Offer(p P, wait time.Duration) (bool, error) {
	if q.closed.Load() {
		return false, eventbus.NewFault("post", eventbus.ErrClosed)
	}

	// Room available: take it even for NoWait.
	select {
	case q.items <- p:
		return true, nil
	default:
	}
	if wait == eventbus.NoWait {
		return false, nil
	}

	timeout, stop := eventbus.Timer(wait)
	defer stop()

	select {
	case q.items <- p:
		return true, nil
	case <-q.done:
		return false, eventbus.NewFault("post", eventbus.ErrClosed)
	case <-timeout:
		return false, nil
	}
}

// OfferContext enqueues p, waiting for room until ctx ends. Room available
// now is taken even if ctx is already done.
// Returns false (and no error) if ctx ended first.
func (q *Queue[P]) OfferContext(ctx context.Context, p P) (bool, error) {
	if q.closed.Load() {
		return false, eventbus.NewFault("send", eventbus.ErrClosed)
	}
	select {
	case q.items <- p:
		return true, nil
	default:
	}
	if ctx.Err() != nil {
		return false, nil
	}

	select {
	case q.items <- p:
		return true, nil
	case <-q.done:
		return false, eventbus.NewFault("send", eventbus.ErrClosed)
	case <-ctx.Done():
		return false, nil
	}
}

// Take dequeues the oldest payload, waiting up to wait for one.
// ok is false if nothing arrived within the bound.
func (q *Queue[P]) Take(wait time.Duration) (p P, ok bool, err error) {
	if p, ok = q.TryTake(); ok {
		return p, true, nil
	}
	if q.closed.Load() {
		return p, false, eventbus.NewFault("spin", eventbus.ErrClosed)
	}
	if wait == eventbus.NoWait {
		return p, false, nil
	}

	timeout, stop := eventbus.Timer(wait)
	defer stop()

	select {
	case p = <-q.items:
		return p, true, nil
	case <-q.done:
		return p, false, eventbus.NewFault("spin", eventbus.ErrClosed)
	case <-timeout:
		return p, false, nil
	}
}

// TakeContext dequeues the oldest payload, waiting until ctx ends.
func (q *Queue[P]) TakeContext(ctx context.Context) (P, error) {
	var zero P
	select {
	case p := <-q.items:
		return p, nil
	case <-q.done:
		return zero, eventbus.NewFault("recv", eventbus.ErrClosed)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryTake dequeues without blocking.
func (q *Queue[P]) TryTake() (P, bool) {
	select {
	case p := <-q.items:
		return p, true
	default:
		var zero P
		return zero, false
	}
}

// Len returns the number of queued payloads.
func (q *Queue[P]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue[P]) Cap() int {
	return cap(q.items)
}

// Close stops the queue. Queued payloads are discarded; blocked callers
// return a fault.
func (q *Queue[P]) Close() {
	q.once.Do(func() {
		q.closed.Store(true)
		close(q.done)
	})
}

// Closed reports whether Close was called.
func (q *Queue[P]) Closed() bool {
	return q.closed.Load()
}

// Done is closed when the queue is closed.
func (q *Queue[P]) Done() <-chan struct{} {
	return q.done
}
