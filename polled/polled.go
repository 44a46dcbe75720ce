// Package polled provides a bus whose deliveries happen inside Spin.
//
// There is no delivery goroutine: Post only enqueues, and a driver loop (see
// package driver) calls Spin to hand queued payloads to every subscription
// on the spinning goroutine. This suits event loops that already own a
// thread and want callbacks to run there.
//
// Delivery guarantees:
//   - every subscription active at dispatch time sees each accepted payload
//     exactly once, in acceptance order
//   - nothing is dropped once accepted; backpressure happens at Post when
//     the queue is full
//   - queued payloads are discarded when the bus is closed
//
// Handlers must not call Spin on their own bus.
package polled

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/eventbus"
	"github.com/rbaliyan/eventbus/internal/queue"
	"github.com/rbaliyan/eventbus/internal/registry"
	"github.com/rbaliyan/eventbus/internal/telemetry"
)

// Bus is a polling event bus
type Bus[P any] struct {
	name      string
	queue     *queue.Queue[P]
	subs      *registry.Table[*subscription[P]]
	postboxes *registry.Table[*Postbox[P]]
	spinMu    sync.Mutex
	recovery  bool
	counters  *telemetry.Counters
	logger    *slog.Logger
}

// subscription implements eventbus.Subscription
type subscription[P any] struct {
	id      string
	bus     *Bus[P]
	handler eventbus.Handler[P]
	closed  atomic.Bool
}

func (s *subscription[P]) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.bus.subs.Remove(s.id)
		s.bus.logger.Debug("removed subscriber", "subscriber", s.id)
	}
	return nil
}

// Postbox is a handle obtained from Bus.Postbox. It holds a slot in the bus
// until Close.
type Postbox[P any] struct {
	id       string
	bus      *Bus[P]
	released atomic.Bool
}

// ID returns the handle identifier
func (pb *Postbox[P]) ID() string {
	return pb.id
}

// Post enqueues payload for the next Spin, waiting up to wait for room.
func (pb *Postbox[P]) Post(payload P, wait time.Duration) (bool, error) {
	if pb.released.Load() {
		return false, eventbus.NewFault("post", eventbus.ErrInvalidated)
	}
	ok, err := pb.bus.queue.Offer(payload, wait)
	if err != nil {
		return false, err
	}
	pb.bus.counters.Posted(ok)
	return ok, nil
}

// Close releases the handle's slot. Posting afterwards fails with
// ErrInvalidated.
func (pb *Postbox[P]) Close() error {
	if pb.released.CompareAndSwap(false, true) {
		pb.bus.postboxes.Remove(pb.id)
	}
	return nil
}

// New creates a polling bus.
func New[P any](opts ...Option) *Bus[P] {
	o := newOptions(opts...)
	return &Bus[P]{
		name:      o.name,
		queue:     queue.New[P](o.capacity),
		subs:      registry.New[*subscription[P]](o.maxSubscribers),
		postboxes: registry.New[*Postbox[P]](o.maxPostboxes),
		recovery:  o.recovery,
		counters:  telemetry.New("eventbus.polled", o.name),
		logger:    o.logger,
	}
}

// Name returns the bus name
func (b *Bus[P]) Name() string {
	return b.name
}

// Subscribe registers handler. It is invoked from Spin.
func (b *Bus[P]) Subscribe(handler eventbus.Handler[P]) (eventbus.Subscription, error) {
	if handler == nil {
		return nil, eventbus.ErrNilHandler
	}
	sub := &subscription[P]{bus: b, handler: handler}
	id, err := b.subs.Add("subscribe", sub)
	if err != nil {
		return nil, err
	}
	sub.id = id

	b.logger.Debug("added subscriber", "subscriber", id)
	return sub, nil
}

// Postbox returns a new handle. Release it with Close (or eventbus.Release).
func (b *Bus[P]) Postbox() (eventbus.Postbox[P], error) {
	pb := &Postbox[P]{bus: b}
	id, err := b.postboxes.Add("postbox", pb)
	if err != nil {
		return nil, err
	}
	pb.id = id
	return pb, nil
}

// Spin waits up to wait for a payload, then delivers it and everything else
// queued at that point to all subscriptions. Returns nil if nothing arrived
// within wait.
func (b *Bus[P]) Spin(wait time.Duration) error {
	if b.queue.Closed() {
		return eventbus.NewFault("spin", eventbus.ErrClosed)
	}

	b.spinMu.Lock()
	defer b.spinMu.Unlock()

	p, ok, err := b.queue.Take(wait)
	if err != nil || !ok {
		return err
	}
	b.dispatch(p)

	// Drain what is already queued; payloads posted meanwhile wait for
	// the next Spin so a busy producer cannot starve the caller.
	for n := b.queue.Len(); n > 0; n-- {
		p, ok := b.queue.TryTake()
		if !ok {
			break
		}
		b.dispatch(p)
	}
	return nil
}

func (b *Bus[P]) dispatch(p P) {
	for _, sub := range b.subs.Snapshot() {
		if sub.closed.Load() {
			continue
		}
		b.invoke(sub, p)
		b.counters.Delivered()
	}
}

func (b *Bus[P]) invoke(sub *subscription[P], p P) {
	if b.recovery {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("handler panicked", "subscriber", sub.id, "panic", r)
			}
		}()
	}
	sub.handler(p)
}

// Stats returns a snapshot of the bus counters
func (b *Bus[P]) Stats() eventbus.Stats {
	s := b.counters.Stats()
	s.Queued = b.queue.Len()
	s.Subscribers = b.subs.Len()
	s.Postboxes = b.postboxes.Len()
	return s
}

// Close shuts the bus down. Queued payloads are discarded, subscriptions
// stop receiving and every handle faults with ErrClosed afterwards.
func (b *Bus[P]) Close() error {
	if b.queue.Closed() {
		return nil
	}
	b.queue.Close()
	for _, sub := range b.subs.Close() {
		sub.closed.Store(true)
	}
	b.postboxes.Close()
	b.logger.Debug("bus closed")
	return nil
}

// Compile-time interface checks
var _ eventbus.Bus[int] = (*Bus[int])(nil)
var _ eventbus.PostboxProvider[int] = (*Bus[int])(nil)
var _ eventbus.Spinner = (*Bus[int])(nil)
var _ eventbus.StatsSource = (*Bus[int])(nil)
var _ eventbus.Postbox[int] = (*Postbox[int])(nil)
