// Package nats provides an asynch bus over NATS Core pub/sub.
//
// Payloads are encoded with a codec.Codec and published to one subject;
// every subscription is a channel subscription on that subject.
//
// NATS Core is at-most-once. Messages published while no subscription is
// connected are lost, and a subscription whose buffer is full has messages
// dropped by the client (slow consumer). Those drops show up in
// Stats().Dropped.
package nats

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rbaliyan/eventbus"
	"github.com/rbaliyan/eventbus/asynch"
	"github.com/rbaliyan/eventbus/codec"
	"github.com/rbaliyan/eventbus/internal/registry"
	"github.com/rbaliyan/eventbus/internal/telemetry"
)

// Construction errors
var (
	ErrConnRequired    = errors.New("nats connection is required")
	ErrSubjectRequired = errors.New("nats subject is required")
)

// Bus implements asynch.Bus and asynch.PostboxProvider over one subject
type Bus[P any] struct {
	status       int32
	name         string
	conn         *nats.Conn
	subject      string
	codec        codec.Codec[P]
	bufferSize   int
	flushTimeout time.Duration
	subs         *registry.Table[*subscription[P]]
	senders      *registry.Table[*Sender[P]]
	dropMu       sync.Mutex // orders retiring a subscription against Stats
	retired      uint64     // slow consumer drops of closed subscriptions
	counters     *telemetry.Counters
	logger       *slog.Logger
}

// subscription implements asynch.Subscription over a NATS channel subscription
type subscription[P any] struct {
	id       string
	bus      *Bus[P]
	sub      *nats.Subscription
	ch       chan *nats.Msg
	closed   atomic.Bool
	closedCh chan struct{}
	once     sync.Once
}

// dropped returns how many messages the client discarded for this subscription
func (s *subscription[P]) dropped() uint64 {
	n, err := s.sub.Dropped()
	if err != nil || n < 0 {
		return 0
	}
	return uint64(n)
}

func (s *subscription[P]) shutdown() bool {
	stopped := false
	s.once.Do(func() {
		// Read the count before Unsubscribe invalidates it
		s.bus.dropMu.Lock()
		s.bus.retired += s.dropped()
		s.closed.Store(true)
		s.bus.dropMu.Unlock()

		close(s.closedCh)
		if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			s.bus.logger.Debug("unsubscribe failed", "subscriber", s.id, "error", err)
		}
		stopped = true
	})
	return stopped
}

// Recv returns the next decodable payload published on the subject.
func (s *subscription[P]) Recv(ctx context.Context) (P, error) {
	var zero P
	for {
		if s.closed.Load() {
			return zero, eventbus.NewFault("recv", eventbus.ErrClosed)
		}

		select {
		case msg := <-s.ch:
			if s.closed.Load() {
				return zero, eventbus.NewFault("recv", eventbus.ErrClosed)
			}
			p, err := s.bus.codec.Decode(msg.Data)
			if err != nil {
				s.bus.counters.Dropped("decode")
				s.bus.logger.Warn("skipping undecodable message",
					"subscriber", s.id,
					"codec", s.bus.codec.Name(),
					"error", err)
				continue
			}
			s.bus.counters.Delivered()
			return p, nil
		case <-s.closedCh:
			return zero, eventbus.NewFault("recv", eventbus.ErrClosed)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (s *subscription[P]) Close() error {
	if s.shutdown() {
		s.bus.subs.Remove(s.id)
		s.bus.logger.Debug("removed subscriber", "subscriber", s.id)
	}
	return nil
}

// Sender publishes payloads to the bus subject. Obtained from Bus.Postbox.
type Sender[P any] struct {
	id       string
	bus      *Bus[P]
	released atomic.Bool
}

// ID returns the handle identifier
func (s *Sender[P]) ID() string {
	return s.id
}

// Send encodes payload and hands it to the connection. The NATS client
// buffers outgoing messages, so Send does not suspend while connected and
// publishes even when ctx is already done.
func (s *Sender[P]) Send(_ context.Context, payload P) (bool, error) {
	if s.released.Load() {
		return false, eventbus.NewFault("send", eventbus.ErrInvalidated)
	}
	b := s.bus
	if !b.isOpen() || b.conn.IsClosed() {
		return false, eventbus.NewFault("send", eventbus.ErrClosed)
	}

	data, err := b.codec.Encode(payload)
	if err != nil {
		return false, err
	}

	if err := b.conn.Publish(b.subject, data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return false, eventbus.NewFault("send", eventbus.ErrClosed)
		}
		b.logger.Warn("publish failed", "subject", b.subject, "error", err)
		return false, eventbus.NewFault("send", err)
	}
	b.counters.Posted(true)
	return true, nil
}

// Close releases the handle's slot.
func (s *Sender[P]) Close() error {
	if s.released.CompareAndSwap(false, true) {
		s.bus.senders.Remove(s.id)
	}
	return nil
}

// New creates a bus over subject. A nil codec selects codec.Default. The
// connection stays owned by the caller.
func New[P any](conn *nats.Conn, subject string, c codec.Codec[P], opts ...Option) (*Bus[P], error) {
	if conn == nil {
		return nil, ErrConnRequired
	}
	if subject == "" {
		return nil, ErrSubjectRequired
	}
	if c == nil {
		c = codec.Default[P]()
	}

	o := newOptions(opts...)
	return &Bus[P]{
		status:       1,
		name:         o.name,
		conn:         conn,
		subject:      subject,
		codec:        c,
		bufferSize:   o.bufferSize,
		flushTimeout: o.flushTimeout,
		subs:         registry.New[*subscription[P]](o.maxSubscribers),
		senders:      registry.New[*Sender[P]](o.maxPostboxes),
		counters:     telemetry.New("eventbus.nats", o.name),
		logger:       o.logger,
	}, nil
}

func (b *Bus[P]) isOpen() bool {
	return atomic.LoadInt32(&b.status) == 1
}

// Name returns the bus name
func (b *Bus[P]) Name() string {
	return b.name
}

// Subject returns the NATS subject
func (b *Bus[P]) Subject() string {
	return b.subject
}

// Subscribe creates a channel subscription and flushes the connection so
// the server has registered it before Subscribe returns. If ctx ends first
// the subscription is removed again and ctx.Err() returned.
func (b *Bus[P]) Subscribe(ctx context.Context) (asynch.Subscription[P], error) {
	if !b.isOpen() {
		return nil, eventbus.NewFault("subscribe", eventbus.ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan *nats.Msg, b.bufferSize)
	ns, err := b.conn.ChanSubscribe(b.subject, ch)
	if err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return nil, eventbus.NewFault("subscribe", eventbus.ErrClosed)
		}
		return nil, eventbus.NewFault("subscribe", err)
	}

	fctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, b.flushTimeout)
		defer cancel()
	}
	if err := b.conn.FlushWithContext(fctx); err != nil {
		ns.Unsubscribe()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, eventbus.NewFault("subscribe", err)
	}

	sub := &subscription[P]{
		bus:      b,
		sub:      ns,
		ch:       ch,
		closedCh: make(chan struct{}),
	}
	id, err := b.subs.Add("subscribe", sub)
	if err != nil {
		ns.Unsubscribe()
		return nil, err
	}
	sub.id = id

	b.logger.Debug("added subscriber", "subject", b.subject, "subscriber", id)
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
	return s, nil
}

// Stats returns a snapshot of the bus counters. Dropped includes slow
// consumer drops reported by the client.
func (b *Bus[P]) Stats() eventbus.Stats {
	s := b.counters.Stats()
	subs := b.subs.Snapshot()

	b.dropMu.Lock()
	s.Dropped += b.retired
	for _, sub := range subs {
		if !sub.closed.Load() {
			s.Dropped += sub.dropped()
		}
	}
	b.dropMu.Unlock()

	s.Subscribers = len(subs)
	s.Postboxes = b.senders.Len()
	return s
}

// Close unsubscribes every subscription. The connection is left open.
func (b *Bus[P]) Close() error {
	if !atomic.CompareAndSwapInt32(&b.status, 1, 0) {
		return nil // Already closed
	}
	for _, sub := range b.subs.Close() {
		sub.shutdown()
	}
	b.senders.Close()

	b.logger.Debug("bus closed")
	return nil
}

// Compile-time interface checks
var _ asynch.Bus[int] = (*Bus[int])(nil)
var _ asynch.PostboxProvider[int] = (*Bus[int])(nil)
var _ eventbus.StatsSource = (*Bus[int])(nil)
var _ asynch.Sender[int] = (*Sender[int])(nil)
var _ asynch.Subscription[int] = (*subscription[int])(nil)
