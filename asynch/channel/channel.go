// Package channel provides an in-memory asynch bus built on Go channels.
//
// Senders suspend until the central queue has room. A dispatcher goroutine
// hands each accepted payload to every receiver buffer in acceptance order.
//
// By default the dispatcher waits for slow receivers, so a receiver that
// stops calling Recv eventually stalls every sender. Set WithDeliveryTimeout
// to trade that for drops:
//
//   - a receiver still full after the timeout misses the payload
//   - the drop is counted in Stats().Dropped and the otel dropped counter
//   - other receivers are unaffected
package channel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/eventbus"
	"github.com/rbaliyan/eventbus/asynch"
	"github.com/rbaliyan/eventbus/internal/queue"
	"github.com/rbaliyan/eventbus/internal/registry"
	"github.com/rbaliyan/eventbus/internal/telemetry"
)

// Bus is an in-memory asynch bus
type Bus[P any] struct {
	name            string
	queue           *queue.Queue[P]
	subs            *registry.Table[*subscription[P]]
	senders         *registry.Table[*Sender[P]]
	bufferSize      int
	deliveryTimeout time.Duration
	counters        *telemetry.Counters
	logger          *slog.Logger
	wg              sync.WaitGroup
}

// subscription implements asynch.Subscription
type subscription[P any] struct {
	id       string
	bus      *Bus[P]
	ch       chan P
	closed   atomic.Bool
	closedCh chan struct{}
	once     sync.Once
}

func (s *subscription[P]) shutdown() bool {
	stopped := false
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.closedCh)
		stopped = true
	})
	return stopped
}

// Recv returns the next payload delivered to this subscription.
func (s *subscription[P]) Recv(ctx context.Context) (P, error) {
	var zero P
	if s.closed.Load() {
		return zero, eventbus.NewFault("recv", eventbus.ErrClosed)
	}

	select {
	case p := <-s.ch:
		// Close may have won the race while we were parked
		if s.closed.Load() {
			return zero, eventbus.NewFault("recv", eventbus.ErrClosed)
		}
		s.bus.counters.Delivered()
		return p, nil
	case <-s.closedCh:
		return zero, eventbus.NewFault("recv", eventbus.ErrClosed)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *subscription[P]) Close() error {
	if s.shutdown() {
		s.bus.subs.Remove(s.id)
		s.bus.logger.Debug("removed subscriber", "subscriber", s.id)
	}
	return nil
}

// Sender is a handle obtained from Bus.Postbox. It holds a slot in the bus
// until Close.
type Sender[P any] struct {
	id       string
	bus      *Bus[P]
	released atomic.Bool
}

// ID returns the handle identifier
func (s *Sender[P]) ID() string {
	return s.id
}

// Send enqueues payload, suspending until there is room or ctx ends.
func (s *Sender[P]) Send(ctx context.Context, payload P) (bool, error) {
	if s.released.Load() {
		return false, eventbus.NewFault("send", eventbus.ErrInvalidated)
	}
	ok, err := s.bus.queue.OfferContext(ctx, payload)
	if err != nil {
		return false, err
	}
	s.bus.counters.Posted(ok)
	return ok, nil
}

// Close releases the handle's slot.
func (s *Sender[P]) Close() error {
	if s.released.CompareAndSwap(false, true) {
		s.bus.senders.Remove(s.id)
	}
	return nil
}

// New creates a channel bus and starts its dispatcher.
func New[P any](opts ...Option) *Bus[P] {
	o := newOptions(opts...)
	b := &Bus[P]{
		name:            o.name,
		queue:           queue.New[P](o.capacity),
		subs:            registry.New[*subscription[P]](o.maxSubscribers),
		senders:         registry.New[*Sender[P]](o.maxPostboxes),
		bufferSize:      o.bufferSize,
		deliveryTimeout: o.deliveryTimeout,
		counters:        telemetry.New("eventbus.channel", o.name),
		logger:          o.logger,
	}

	b.wg.Add(1)
	go b.run()
	return b
}

// Name returns the bus name
func (b *Bus[P]) Name() string {
	return b.name
}

func (b *Bus[P]) run() {
	defer b.wg.Done()
	for {
		p, err := b.queue.TakeContext(context.Background())
		if err != nil {
			return
		}
		for _, sub := range b.subs.Snapshot() {
			if sub.closed.Load() {
				continue
			}
			if !b.deliver(sub, p) {
				b.counters.Dropped("timeout")
				b.logger.Debug("payload dropped, receiver too slow", "subscriber", sub.id)
			}
		}
	}
}

// deliver reports false only when the delivery timeout elapsed.
func (b *Bus[P]) deliver(sub *subscription[P], p P) bool {
	// Fast path
	select {
	case sub.ch <- p:
		return true
	default:
	}

	wait := eventbus.Forever
	if b.deliveryTimeout > 0 {
		wait = b.deliveryTimeout
	}
	timeout, stop := eventbus.Timer(wait)
	defer stop()

	select {
	case sub.ch <- p:
		return true
	case <-sub.closedCh:
		return true
	case <-b.queue.Done():
		return true
	case <-timeout:
		return false
	}
}

// Subscribe registers a receiver. Payloads accepted before Subscribe
// returns may or may not be delivered to it.
func (b *Bus[P]) Subscribe(ctx context.Context) (asynch.Subscription[P], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &subscription[P]{
		bus:      b,
		ch:       make(chan P, b.bufferSize),
		closedCh: make(chan struct{}),
	}
	id, err := b.subs.Add("subscribe", sub)
	if err != nil {
		return nil, err
	}
	sub.id = id

	if err := ctx.Err(); err != nil {
		sub.Close()
		return nil, err
	}

	b.logger.Debug("added subscriber", "subscriber", id)
	return sub, nil
}

// Postbox returns a new sender. Release it with Close (or eventbus.Release).
func (b *Bus[P]) Postbox(ctx context.Context) (asynch.Sender[P], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &Sender[P]{bus: b}
	id, err := b.senders.Add("postbox", s)
	if err != nil {
		return nil, err
	}
	s.id = id

	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Stats returns a snapshot of the bus counters
func (b *Bus[P]) Stats() eventbus.Stats {
	s := b.counters.Stats()
	s.Queued = b.queue.Len()
	s.Subscribers = b.subs.Len()
	s.Postboxes = b.senders.Len()
	return s
}

// Close shuts the bus down and waits for the dispatcher to exit. Parked
// senders and receivers return a fault wrapping eventbus.ErrClosed.
func (b *Bus[P]) Close() error {
	if b.queue.Closed() {
		return nil
	}
	b.queue.Close()
	for _, sub := range b.subs.Close() {
		sub.shutdown()
	}
	b.senders.Close()
	b.wg.Wait()

	b.logger.Debug("bus closed")
	return nil
}

// Compile-time interface checks
var _ asynch.Bus[int] = (*Bus[int])(nil)
var _ asynch.PostboxProvider[int] = (*Bus[int])(nil)
var _ eventbus.StatsSource = (*Bus[int])(nil)
var _ asynch.Sender[int] = (*Sender[int])(nil)
var _ asynch.Subscription[int] = (*subscription[int])(nil)
