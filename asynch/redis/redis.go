// Package redis provides an asynch bus over Redis pub/sub.
//
// Every payload is encoded with a codec.Codec and PUBLISHed to one Redis
// channel; every subscription holds its own SUBSCRIBE connection.
//
// IMPORTANT: Redis pub/sub is at-most-once:
//
//   - payloads published while no subscription is connected are lost
//   - a subscription that falls behind its buffer may lose messages
//   - Send reports acceptance by Redis, not delivery to any receiver
//
// Messages that fail to decode are skipped by Recv and counted as drops.
package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/eventbus"
	"github.com/rbaliyan/eventbus/asynch"
	"github.com/rbaliyan/eventbus/codec"
	"github.com/rbaliyan/eventbus/internal/registry"
	"github.com/rbaliyan/eventbus/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

// Client defines the Redis operations the bus needs.
// Satisfied by *redis.Client, *redis.ClusterClient and redis.UniversalClient.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Construction errors
var (
	ErrClientRequired  = errors.New("redis client is required")
	ErrChannelRequired = errors.New("redis channel is required")
)

// Bus implements asynch.Bus and asynch.PostboxProvider over one Redis channel
type Bus[P any] struct {
	status     int32
	name       string
	client     Client
	channel    string
	codec      codec.Codec[P]
	bufferSize int
	attempt    time.Duration
	subs       *registry.Table[*subscription[P]]
	senders    *registry.Table[*Sender[P]]
	counters   *telemetry.Counters
	logger     *slog.Logger
}

// subscription implements asynch.Subscription over a Redis PubSub
type subscription[P any] struct {
	id       string
	bus      *Bus[P]
	ps       *redis.PubSub
	ch       <-chan *redis.Message
	closed   atomic.Bool
	closedCh chan struct{}
	once     sync.Once
}

func (s *subscription[P]) shutdown() bool {
	stopped := false
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.closedCh)
		if err := s.ps.Close(); err != nil {
			s.bus.logger.Debug("pubsub close failed", "subscriber", s.id, "error", err)
		}
		stopped = true
	})
	return stopped
}

// Recv returns the next decodable payload published on the channel.
func (s *subscription[P]) Recv(ctx context.Context) (P, error) {
	var zero P
	for {
		if s.closed.Load() {
			return zero, eventbus.NewFault("recv", eventbus.ErrClosed)
		}

		select {
		case msg, ok := <-s.ch:
			if !ok || s.closed.Load() {
				return zero, eventbus.NewFault("recv", eventbus.ErrClosed)
			}
			p, err := s.bus.codec.Decode([]byte(msg.Payload))
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

// Sender publishes payloads to the bus channel. Obtained from Bus.Postbox.
type Sender[P any] struct {
	id       string
	bus      *Bus[P]
	released atomic.Bool
}

// ID returns the handle identifier
func (s *Sender[P]) ID() string {
	return s.id
}

// Send encodes payload and publishes it. Returns (false, nil) if ctx ends
// before Redis answered. A ctx that is already done still gets one publish,
// bounded by WithAttemptTimeout.
func (s *Sender[P]) Send(ctx context.Context, payload P) (bool, error) {
	if s.released.Load() {
		return false, eventbus.NewFault("send", eventbus.ErrInvalidated)
	}
	b := s.bus
	if !b.isOpen() {
		return false, eventbus.NewFault("send", eventbus.ErrClosed)
	}

	data, err := b.codec.Encode(payload)
	if err != nil {
		return false, err
	}

	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), b.attempt)
		defer cancel()
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		if ctx.Err() != nil {
			b.counters.Posted(false)
			return false, nil
		}
		if errors.Is(err, redis.ErrClosed) {
			return false, eventbus.NewFault("send", eventbus.ErrClosed)
		}
		b.logger.Warn("publish failed", "channel", b.channel, "error", err)
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

// New creates a bus publishing to and subscribing on channel. A nil codec
// selects codec.Default. The client stays owned by the caller.
func New[P any](client Client, channel string, c codec.Codec[P], opts ...Option) (*Bus[P], error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if channel == "" {
		return nil, ErrChannelRequired
	}
	if c == nil {
		c = codec.Default[P]()
	}

	o := newOptions(opts...)
	return &Bus[P]{
		status:     1,
		name:       o.name,
		client:     client,
		channel:    channel,
		codec:      c,
		bufferSize: o.bufferSize,
		attempt:    o.attemptTimeout,
		subs:       registry.New[*subscription[P]](o.maxSubscribers),
		senders:    registry.New[*Sender[P]](o.maxPostboxes),
		counters:   telemetry.New("eventbus.redis", o.name),
		logger:     o.logger,
	}, nil
}

func (b *Bus[P]) isOpen() bool {
	return atomic.LoadInt32(&b.status) == 1
}

// Name returns the bus name
func (b *Bus[P]) Name() string {
	return b.name
}

// Channel returns the Redis channel name
func (b *Bus[P]) Channel() string {
	return b.channel
}

// Subscribe opens a SUBSCRIBE connection and waits for Redis to confirm it.
// If ctx ends first the connection is closed and ctx.Err() returned.
func (b *Bus[P]) Subscribe(ctx context.Context) (asynch.Subscription[P], error) {
	if !b.isOpen() {
		return nil, eventbus.NewFault("subscribe", eventbus.ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, eventbus.NewFault("subscribe", err)
	}

	sub := &subscription[P]{
		bus:      b,
		ps:       ps,
		ch:       ps.Channel(redis.WithChannelSize(b.bufferSize)),
		closedCh: make(chan struct{}),
	}
	id, err := b.subs.Add("subscribe", sub)
	if err != nil {
		ps.Close()
		return nil, err
	}
	sub.id = id

	b.logger.Debug("added subscriber", "channel", b.channel, "subscriber", id)
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

// Stats returns a snapshot of the bus counters
func (b *Bus[P]) Stats() eventbus.Stats {
	s := b.counters.Stats()
	s.Subscribers = b.subs.Len()
	s.Postboxes = b.senders.Len()
	return s
}

// Close closes every subscription connection. The client is left open.
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
var _ Client = (*redis.Client)(nil)
