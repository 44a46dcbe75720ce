package ratelimit

import (
	"context"
	"time"

	"github.com/rbaliyan/eventbus"
)

// Postbox decorates a postbox with a limiter. The wait bound given to Post
// covers both the time spent waiting for permission and the inner post.
type Postbox[P any] struct {
	inner   eventbus.Postbox[P]
	limiter Limiter
}

// Wrap returns pb throttled by l.
func Wrap[P any](pb eventbus.Postbox[P], l Limiter) *Postbox[P] {
	return &Postbox[P]{inner: pb, limiter: l}
}

// Post waits for permission, then posts to the inner postbox with whatever
// remains of wait. Returns false if permission cannot be had within wait.
// When the inner postbox rejects or faults, the permission is cancelled so
// backpressure does not eat into the rate budget.
func (pb *Postbox[P]) Post(payload P, wait time.Duration) (bool, error) {
	start := time.Now()
	remaining := func() time.Duration {
		if wait < 0 {
			return eventbus.Forever
		}
		if left := wait - time.Since(start); left > 0 {
			return left
		}
		return eventbus.NoWait
	}

	var r Reservation
	for {
		r = pb.limiter.Reserve(context.Background())
		delay := r.Delay()
		if r.OK() && delay == 0 {
			break
		}
		if !r.OK() && delay == 0 {
			return false, nil // can never be satisfied
		}

		left := remaining()
		if left >= 0 && delay > left {
			r.Cancel()
			return false, nil
		}
		time.Sleep(delay)
		if r.OK() {
			break
		}
	}

	ok, err := pb.inner.Post(payload, remaining())
	if err != nil || !ok {
		r.Cancel()
	}
	return ok, err
}

// Close releases the inner postbox if it holds a slot.
func (pb *Postbox[P]) Close() error {
	return eventbus.Release(pb.inner)
}

// Provider hands out postboxes that share one limiter.
type Provider[P any] struct {
	inner   eventbus.PostboxProvider[P]
	limiter Limiter
}

// NewProvider throttles every postbox obtained from p with l.
func NewProvider[P any](p eventbus.PostboxProvider[P], l Limiter) *Provider[P] {
	return &Provider[P]{inner: p, limiter: l}
}

// Postbox obtains an inner postbox and wraps it.
func (p *Provider[P]) Postbox() (eventbus.Postbox[P], error) {
	pb, err := p.inner.Postbox()
	if err != nil {
		return nil, err
	}
	return Wrap(pb, p.limiter), nil
}

// Compile-time interface checks
var _ eventbus.Postbox[int] = (*Postbox[int])(nil)
var _ eventbus.PostboxProvider[int] = (*Provider[int])(nil)
