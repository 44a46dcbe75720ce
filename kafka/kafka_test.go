package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rbaliyan/eventbus"
	"github.com/rbaliyan/eventbus/codec"
	"syreclabs.com/go/faker"
)

type shipment struct {
	Carrier string `json:"carrier" msgpack:"carrier"`
	Parcels int    `json:"parcels" msgpack:"parcels"`
}

func newConfig() *sarama.Config {
	config := mocks.NewTestConfig()
	config.Producer.Return.Successes = true
	return config
}

// stalledProducer never reads its input, like a producer whose buffers are full.
type stalledProducer struct {
	sarama.AsyncProducer
	input     chan *sarama.ProducerMessage
	successes chan *sarama.ProducerMessage
	errors    chan *sarama.ProducerError
}

func newStalledProducer() *stalledProducer {
	return &stalledProducer{
		input:     make(chan *sarama.ProducerMessage),
		successes: make(chan *sarama.ProducerMessage),
		errors:    make(chan *sarama.ProducerError),
	}
}

func (s *stalledProducer) Input() chan<- *sarama.ProducerMessage     { return s.input }
func (s *stalledProducer) Successes() <-chan *sarama.ProducerMessage { return s.successes }
func (s *stalledProducer) Errors() <-chan *sarama.ProducerError      { return s.errors }
func (s *stalledProducer) Close() error {
	close(s.successes)
	close(s.errors)
	return nil
}

func waitStats(t *testing.T, p interface{ Stats() eventbus.Stats }, cond func(eventbus.Stats) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond(p.Stats()) {
		if time.Now().After(deadline) {
			t.Fatalf("stats condition not met: %+v", p.Stats())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New[int](nil, "topic", nil); !errors.Is(err, ErrProducerRequired) {
		t.Errorf("expected ErrProducerRequired, got %v", err)
	}
	producer := mocks.NewAsyncProducer(t, newConfig())
	defer producer.Close()
	if _, err := New[int](producer, "", nil); !errors.Is(err, ErrTopicRequired) {
		t.Errorf("expected ErrTopicRequired, got %v", err)
	}
}

func TestPostProduces(t *testing.T) {
	faker.Seed(time.Now().UnixNano())
	want := shipment{Carrier: faker.Company().Name(), Parcels: faker.RandomInt(1, 20)}

	producer := mocks.NewAsyncProducer(t, newConfig())
	producer.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got shipment
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("produced %+v, want %+v", got, want)
		}
		return nil
	})

	p, err := New[shipment](producer, "shipments", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pb, err := p.Postbox()
	if err != nil {
		t.Fatalf("Postbox failed: %v", err)
	}
	if ok, err := pb.Post(want, time.Second); !ok || err != nil {
		t.Fatalf("Post = (%v, %v)", ok, err)
	}

	waitStats(t, p, func(s eventbus.Stats) bool { return s.Delivered == 1 })
	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestProducerErrorsAreCounted(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, newConfig())
	producer.ExpectInputAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectInputAndSucceed()

	p, _ := New[shipment](producer, "shipments", codec.MsgPack[shipment]{})
	pb, _ := p.Postbox()

	for i := range 2 {
		if ok, err := pb.Post(shipment{Parcels: i}, time.Second); !ok || err != nil {
			t.Fatalf("Post = (%v, %v)", ok, err)
		}
	}

	waitStats(t, p, func(s eventbus.Stats) bool { return s.Dropped == 1 && s.Delivered == 1 })
	if got := p.Stats().Accepted; got != 2 {
		t.Errorf("expected 2 accepted, got %d", got)
	}
	p.Close()
}

func TestPostWaitBound(t *testing.T) {
	p, _ := New[int](newStalledProducer(), "stalled", nil)
	defer p.Close()
	pb, _ := p.Postbox()

	t.Run("no wait", func(t *testing.T) {
		ok, err := pb.Post(1, eventbus.NoWait)
		if ok || err != nil {
			t.Errorf("expected (false, nil), got (%v, %v)", ok, err)
		}
	})

	t.Run("bounded", func(t *testing.T) {
		start := time.Now()
		ok, err := pb.Post(1, 20*time.Millisecond)
		if ok || err != nil {
			t.Errorf("expected (false, nil), got (%v, %v)", ok, err)
		}
		if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
			t.Errorf("returned after %v, expected to honour the wait", elapsed)
		}
	})

	if got := p.Stats().Rejected; got != 2 {
		t.Errorf("expected 2 rejections, got %d", got)
	}
}

func TestCloseUnblocksPost(t *testing.T) {
	p, _ := New[int](newStalledProducer(), "stalled", nil)
	pb, _ := p.Postbox()

	result := make(chan error, 1)
	go func() {
		_, err := pb.Post(1, eventbus.Forever)
		result <- err
	}()

	time.Sleep(10 * time.Millisecond)
	p.Close()
	p.Close()

	select {
	case err := <-result:
		if !errors.Is(err, eventbus.ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Post did not return")
	}

	if _, err := pb.Post(2, eventbus.NoWait); !errors.Is(err, eventbus.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
	if _, err := p.Postbox(); !errors.Is(err, eventbus.ErrClosed) {
		t.Errorf("expected ErrClosed from Postbox, got %v", err)
	}
}

func TestReleasedPostbox(t *testing.T) {
	p, _ := New[int](newStalledProducer(), "stalled", nil, WithMaxPostboxes(1))
	defer p.Close()

	pb, _ := p.Postbox()
	if _, err := p.Postbox(); !errors.Is(err, eventbus.ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
	eventbus.Release(pb)
	if _, err := pb.Post(1, eventbus.NoWait); !errors.Is(err, eventbus.ErrInvalidated) {
		t.Errorf("expected ErrInvalidated, got %v", err)
	}
}
