// Package kafka provides a blocking postbox provider that produces to a
// Kafka topic through a sarama.AsyncProducer.
//
// Post hands the encoded payload to the producer's input channel within the
// wait bound. Acceptance means the producer took the message, not that the
// broker acknowledged it: broker acknowledgements and failures arrive later
// and are counted (Stats().Delivered and Stats().Dropped) and logged, never
// returned from Post.
//
// Consumption is not provided; pair the provider with any consumer group.
//
// Recommended sarama.Config settings:
//
//	config := sarama.NewConfig()
//	config.Producer.Return.Successes = true // count acknowledgements
//	config.Producer.RequiredAcks = sarama.WaitForAll
//	config.Producer.Idempotent = true
//	config.Net.MaxOpenRequests = 1
package kafka

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rbaliyan/eventbus"
	"github.com/rbaliyan/eventbus/codec"
	"github.com/rbaliyan/eventbus/internal/registry"
	"github.com/rbaliyan/eventbus/internal/telemetry"
)

// Construction errors
var (
	ErrProducerRequired = errors.New("kafka producer is required")
	ErrTopicRequired    = errors.New("kafka topic is required")
)

// Provider implements eventbus.PostboxProvider over one topic
type Provider[P any] struct {
	status    int32
	name      string
	producer  sarama.AsyncProducer
	topic     string
	codec     codec.Codec[P]
	postboxes *registry.Table[*Postbox[P]]
	mu        sync.RWMutex // held for reading while a Post may touch the input channel
	done      chan struct{}
	wg        sync.WaitGroup
	counters  *telemetry.Counters
	logger    *slog.Logger
}

// Postbox is a handle obtained from Provider.Postbox. It holds a slot until
// Close.
type Postbox[P any] struct {
	id       string
	p        *Provider[P]
	released atomic.Bool
}

// ID returns the handle identifier
func (pb *Postbox[P]) ID() string {
	return pb.id
}

// Post encodes payload and hands it to the producer, waiting up to wait
// for the input channel to take it.
func (pb *Postbox[P]) Post(payload P, wait time.Duration) (bool, error) {
	if pb.released.Load() {
		return false, eventbus.NewFault("post", eventbus.ErrInvalidated)
	}
	return pb.p.produce(payload, wait)
}

// Close releases the handle's slot.
func (pb *Postbox[P]) Close() error {
	if pb.released.CompareAndSwap(false, true) {
		pb.p.postboxes.Remove(pb.id)
	}
	return nil
}

// New creates a provider producing to topic. A nil codec selects
// codec.Default. The provider takes ownership of producer and closes it on
// Close; it also drains the producer's Successes and Errors channels.
func New[P any](producer sarama.AsyncProducer, topic string, c codec.Codec[P], opts ...Option) (*Provider[P], error) {
	if producer == nil {
		return nil, ErrProducerRequired
	}
	if topic == "" {
		return nil, ErrTopicRequired
	}
	if c == nil {
		c = codec.Default[P]()
	}

	o := newOptions(opts...)
	p := &Provider[P]{
		status:    1,
		name:      o.name,
		producer:  producer,
		topic:     topic,
		codec:     c,
		postboxes: registry.New[*Postbox[P]](o.maxPostboxes),
		done:      make(chan struct{}),
		counters:  telemetry.New("eventbus.kafka", o.name),
		logger:    o.logger,
	}

	p.wg.Add(1)
	go p.drain()
	return p, nil
}

func (p *Provider[P]) isOpen() bool {
	return atomic.LoadInt32(&p.status) == 1
}

// Name returns the provider name
func (p *Provider[P]) Name() string {
	return p.name
}

// Topic returns the Kafka topic
func (p *Provider[P]) Topic() string {
	return p.topic
}

// Postbox returns a new handle. Release it with Close (or eventbus.Release).
func (p *Provider[P]) Postbox() (eventbus.Postbox[P], error) {
	pb := &Postbox[P]{p: p}
	id, err := p.postboxes.Add("postbox", pb)
	if err != nil {
		return nil, err
	}
	pb.id = id
	return pb, nil
}

func (p *Provider[P]) produce(payload P, wait time.Duration) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isOpen() {
		return false, eventbus.NewFault("post", eventbus.ErrClosed)
	}

	data, err := p.codec.Encode(payload)
	if err != nil {
		return false, err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(data),
	}

	// Room available: take it even for NoWait.
	select {
	case p.producer.Input() <- msg:
		p.counters.Posted(true)
		return true, nil
	default:
	}
	if wait == eventbus.NoWait {
		p.counters.Posted(false)
		return false, nil
	}

	timeout, stop := eventbus.Timer(wait)
	defer stop()

	select {
	case p.producer.Input() <- msg:
		p.counters.Posted(true)
		return true, nil
	case <-p.done:
		return false, eventbus.NewFault("post", eventbus.ErrClosed)
	case <-timeout:
		p.counters.Posted(false)
		return false, nil
	}
}

// drain consumes producer results until both channels are closed.
func (p *Provider[P]) drain() {
	defer p.wg.Done()

	successes := p.producer.Successes()
	errs := p.producer.Errors()
	for successes != nil || errs != nil {
		select {
		case _, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			p.counters.Delivered()
		case perr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.counters.Dropped("producer_error")
			p.logger.Warn("produce failed", "topic", p.topic, "error", perr.Err)
		}
	}
}

// Stats returns a snapshot of the provider counters. Delivered counts
// broker acknowledgements (when Producer.Return.Successes is set) and
// Dropped counts producer errors.
func (p *Provider[P]) Stats() eventbus.Stats {
	s := p.counters.Stats()
	s.Postboxes = p.postboxes.Len()
	return s
}

// Close stops accepting posts, waits for posts in flight to return and
// closes the producer, which flushes buffered messages.
func (p *Provider[P]) Close() error {
	if !atomic.CompareAndSwapInt32(&p.status, 1, 0) {
		return nil // Already closed
	}
	close(p.done)

	p.mu.Lock()
	p.postboxes.Close()
	err := p.producer.Close()
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("provider closed")
	return err
}

// Compile-time interface checks
var _ eventbus.PostboxProvider[int] = (*Provider[int])(nil)
var _ eventbus.StatsSource = (*Provider[int])(nil)
var _ eventbus.Postbox[int] = (*Postbox[int])(nil)
