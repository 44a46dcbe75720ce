// Package push provides a bus that delivers on its own goroutines.
//
// Post enqueues into a bounded queue. A dispatcher goroutine moves every
// accepted payload into a per-subscription inbox, and one goroutine per
// subscription invokes its handler. Spin is a no-op.
//
// IMPORTANT: push delivery may drop. When a subscriber's inbox is full the
// payload is skipped for that subscriber only:
//
//   - the drop is counted in Stats().Dropped and the otel dropped counter
//   - WithDropHandler is called with the subscription id
//   - other subscribers are not slowed down by a slow one
//
// Use package polled, or size inboxes with WithInboxSize, when every
// subscriber must observe every payload.
package push

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

// Bus is a push-driven event bus
type Bus[P any] struct {
	name      string
	queue     *queue.Queue[P]
	subs      *registry.Table[*subscription[P]]
	postboxes *registry.Table[*Postbox[P]]
	inboxSize int
	recovery  bool
	onDrop    func(string)
	dropCount atomic.Int64
	counters  *telemetry.Counters
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// subscription implements eventbus.Subscription
type subscription[P any] struct {
	id       string
	bus      *Bus[P]
	handler  eventbus.Handler[P]
	inbox    chan P
	closed   atomic.Bool
	closedCh chan struct{}
	once     sync.Once
}

// shutdown stops the worker without touching the registration table.
func (s *subscription[P]) shutdown() bool {
	stopped := false
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.closedCh)
		stopped = true
	})
	return stopped
}

func (s *subscription[P]) Close() error {
	if s.shutdown() {
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

// Post enqueues payload for dispatch, waiting up to wait for room.
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

// Close releases the handle's slot.
func (pb *Postbox[P]) Close() error {
	if pb.released.CompareAndSwap(false, true) {
		pb.bus.postboxes.Remove(pb.id)
	}
	return nil
}

// New creates a push bus and starts its dispatcher.
func New[P any](opts ...Option) *Bus[P] {
	o := newOptions(opts...)
	b := &Bus[P]{
		name:      o.name,
		queue:     queue.New[P](o.capacity),
		subs:      registry.New[*subscription[P]](o.maxSubscribers),
		postboxes: registry.New[*Postbox[P]](o.maxPostboxes),
		inboxSize: o.inboxSize,
		recovery:  o.recovery,
		onDrop:    o.onDrop,
		counters:  telemetry.New("eventbus.push", o.name),
		logger:    o.logger,
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
		p, ok, err := b.queue.Take(eventbus.Forever)
		if err != nil {
			return
		}
		if ok {
			b.dispatch(p)
		}
	}
}

func (b *Bus[P]) dispatch(p P) {
	for _, sub := range b.subs.Snapshot() {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.inbox <- p:
		default:
			b.counters.Dropped("inbox_full")
			b.onDrop(sub.id)

			// Warn once per 100 drops to avoid flooding logs
			if dropped := b.dropCount.Add(1); dropped%100 == 1 {
				b.logger.Warn("slow subscriber, payload dropped",
					"subscriber", sub.id,
					"dropped", dropped)
			}
		}
	}
}

func (b *Bus[P]) work(sub *subscription[P]) {
	for {
		select {
		case <-sub.closedCh:
			return
		case p := <-sub.inbox:
			if sub.closed.Load() {
				return
			}
			b.invoke(sub, p)
			b.counters.Delivered()
		}
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

// Subscribe registers handler. It runs on a goroutine owned by the
// subscription, one payload at a time.
func (b *Bus[P]) Subscribe(handler eventbus.Handler[P]) (eventbus.Subscription, error) {
	if handler == nil {
		return nil, eventbus.ErrNilHandler
	}
	sub := &subscription[P]{
		bus:      b,
		handler:  handler,
		inbox:    make(chan P, b.inboxSize),
		closedCh: make(chan struct{}),
	}
	id, err := b.subs.Add("subscribe", sub)
	if err != nil {
		return nil, err
	}
	sub.id = id
	go b.work(sub)

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

// Spin does nothing; delivery is driven by the bus goroutines. It reports
// ErrClosed once the bus was closed.
func (b *Bus[P]) Spin(time.Duration) error {
	if b.queue.Closed() {
		return eventbus.NewFault("spin", eventbus.ErrClosed)
	}
	return nil
}

// Stats returns a snapshot of the bus counters
func (b *Bus[P]) Stats() eventbus.Stats {
	s := b.counters.Stats()
	s.Queued = b.queue.Len()
	s.Subscribers = b.subs.Len()
	s.Postboxes = b.postboxes.Len()
	return s
}

// Close shuts the bus down and waits for the dispatcher to exit. Handlers
// already running may finish after Close returns.
func (b *Bus[P]) Close() error {
	if b.queue.Closed() {
		return nil
	}
	b.queue.Close()
	for _, sub := range b.subs.Close() {
		sub.shutdown()
	}
	b.postboxes.Close()
	b.wg.Wait()

	b.logger.Debug("bus closed")
	return nil
}

// Compile-time interface checks
var _ eventbus.Bus[int] = (*Bus[int])(nil)
var _ eventbus.PostboxProvider[int] = (*Bus[int])(nil)
var _ eventbus.Spinner = (*Bus[int])(nil)
var _ eventbus.StatsSource = (*Bus[int])(nil)
var _ eventbus.Postbox[int] = (*Postbox[int])(nil)
