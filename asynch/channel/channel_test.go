package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rbaliyan/eventbus"
	"github.com/rbaliyan/eventbus/asynch"
	"syreclabs.com/go/faker"
)

func recvN[P any](t *testing.T, r asynch.Receiver[P], n int) []P {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := make([]P, 0, n)
	for range n {
		p, err := r.Recv(ctx)
		if err != nil {
			t.Errorf("Recv after %d payloads: %v", len(out), err)
			return out
		}
		out = append(out, p)
	}
	return out
}

func TestSendRecv(t *testing.T) {
	ctx := context.Background()
	bus := New[int]()
	defer bus.Close()

	sub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	s, err := bus.Postbox(ctx)
	if err != nil {
		t.Fatalf("Postbox failed: %v", err)
	}
	defer eventbus.Release(s)

	for i := 1; i <= 3; i++ {
		if ok, err := s.Send(ctx, i); !ok || err != nil {
			t.Fatalf("Send(%d) = (%v, %v)", i, ok, err)
		}
	}

	if diff := cmp.Diff([]int{1, 2, 3}, recvN[int](t, sub, 3)); diff != "" {
		t.Errorf("received mismatch (-want +got):\n%s", diff)
	}
}

func TestFanOutPreservesOrder(t *testing.T) {
	faker.Seed(time.Now().UnixNano())
	ctx := context.Background()
	bus := New[string]()
	defer bus.Close()

	subs := make([]asynch.Subscription[string], 3)
	for i := range subs {
		subs[i], _ = bus.Subscribe(ctx)
		defer subs[i].Close()
	}

	n := faker.RandomInt(20, 60)
	want := make([]string, n)
	for i := range want {
		want[i] = faker.Lorem().String()
	}

	var wg sync.WaitGroup
	got := make([][]string, len(subs))
	for i, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = recvN[string](t, sub, n)
		}()
	}

	s, _ := bus.Postbox(ctx)
	for _, v := range want {
		if ok, err := s.Send(ctx, v); !ok || err != nil {
			t.Fatalf("Send = (%v, %v)", ok, err)
		}
	}
	wg.Wait()

	for i := range subs {
		if diff := cmp.Diff(want, got[i]); diff != "" {
			t.Errorf("subscriber %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestSendBackpressure(t *testing.T) {
	ctx := context.Background()
	bus := New[int](WithCapacity(1), WithBufferSize(0))
	defer bus.Close()

	// A receiver that never reads stalls the dispatcher on the first
	// payload; the second fills the queue.
	sub, _ := bus.Subscribe(ctx)
	defer sub.Close()

	s, _ := bus.Postbox(ctx)
	s.Send(ctx, 1)
	deadline := time.Now().Add(time.Second)
	for bus.Stats().Queued != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ok, err := s.Send(ctx, 2); !ok || err != nil {
		t.Fatalf("Send(2) = (%v, %v)", ok, err)
	}

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	ok, err := s.Send(cctx, 3)
	if ok || err != nil {
		t.Errorf("expected (false, nil) when ctx ends, got (%v, %v)", ok, err)
	}
	if bus.Stats().Rejected != 1 {
		t.Errorf("expected 1 rejection, got %d", bus.Stats().Rejected)
	}

	if diff := cmp.Diff([]int{1, 2}, recvN[int](t, sub, 2)); diff != "" {
		t.Errorf("received mismatch (-want +got):\n%s", diff)
	}
}

func TestDeliveryTimeoutDrops(t *testing.T) {
	ctx := context.Background()
	bus := New[int](WithBufferSize(1), WithDeliveryTimeout(5*time.Millisecond))
	defer bus.Close()

	slow, _ := bus.Subscribe(ctx)
	defer slow.Close()
	fast, _ := bus.Subscribe(ctx)
	defer fast.Close()

	s, _ := bus.Postbox(ctx)
	done := make(chan []int)
	go func() { done <- recvN[int](t, fast, 3) }()
	for i := 1; i <= 3; i++ {
		s.Send(ctx, i)
	}

	if diff := cmp.Diff([]int{1, 2, 3}, <-done); diff != "" {
		t.Errorf("fast receiver mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1}, recvN[int](t, slow, 1)); diff != "" {
		t.Errorf("slow receiver mismatch (-want +got):\n%s", diff)
	}
	if got := bus.Stats().Dropped; got != 2 {
		t.Errorf("expected 2 drops, got %d", got)
	}
}

func TestRecvCancellation(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	sub, _ := bus.Subscribe(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := sub.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if eventbus.IsFault(ctx.Err()) {
		t.Error("context end must not be a fault")
	}
}

func TestSubscriptionClose(t *testing.T) {
	ctx := context.Background()
	bus := New[int]()
	defer bus.Close()

	sub, _ := bus.Subscribe(ctx)
	s, _ := bus.Postbox(ctx)
	s.Send(ctx, 1)

	// unblocks a parked Recv
	parked := make(chan error, 1)
	other, _ := bus.Subscribe(ctx)
	go func() {
		_, err := other.Recv(ctx)
		for err == nil {
			_, err = other.Recv(ctx)
		}
		parked <- err
	}()

	sub.Close()
	sub.Close()
	if _, err := sub.Recv(ctx); !errors.Is(err, eventbus.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}

	other.Close()
	select {
	case err := <-parked:
		if !errors.Is(err, eventbus.ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("parked Recv did not return")
	}
	if bus.Stats().Subscribers != 0 {
		t.Errorf("expected no subscribers, got %d", bus.Stats().Subscribers)
	}
}

func TestCancelledAcquisition(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := bus.Subscribe(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Subscribe: expected context.Canceled, got %v", err)
	}
	if _, err := bus.Postbox(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Postbox: expected context.Canceled, got %v", err)
	}
	if got := bus.Stats(); got.Subscribers != 0 || got.Postboxes != 0 {
		t.Errorf("expected nothing registered, got %+v", got)
	}
}

func TestCloseFaults(t *testing.T) {
	ctx := context.Background()
	bus := New[int](WithCapacity(1), WithBufferSize(0))
	sub, _ := bus.Subscribe(ctx)
	s, _ := bus.Postbox(ctx)

	// park a sender behind a stalled dispatcher
	s.Send(ctx, 1)
	s.Send(ctx, 2)
	parked := make(chan error, 1)
	go func() {
		_, err := s.Send(ctx, 3)
		parked <- err
	}()

	time.Sleep(10 * time.Millisecond)
	bus.Close()
	bus.Close()

	select {
	case err := <-parked:
		if err != nil && !errors.Is(err, eventbus.ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("parked Send did not return")
	}

	if _, err := s.Send(ctx, 4); !errors.Is(err, eventbus.ErrClosed) {
		t.Errorf("Send: expected ErrClosed, got %v", err)
	}
	if _, err := sub.Recv(ctx); !errors.Is(err, eventbus.ErrClosed) {
		t.Errorf("Recv: expected ErrClosed, got %v", err)
	}
	if _, err := bus.Subscribe(ctx); !errors.Is(err, eventbus.ErrClosed) {
		t.Errorf("Subscribe: expected ErrClosed, got %v", err)
	}
}

func TestReleasedSender(t *testing.T) {
	ctx := context.Background()
	bus := New[int](WithMaxPostboxes(1))
	defer bus.Close()

	s, _ := bus.Postbox(ctx)
	if _, err := bus.Postbox(ctx); !errors.Is(err, eventbus.ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
	eventbus.Release(s)
	if _, err := s.Send(ctx, 1); !errors.Is(err, eventbus.ErrInvalidated) {
		t.Errorf("expected ErrInvalidated, got %v", err)
	}
	if _, err := bus.Postbox(ctx); err != nil {
		t.Errorf("expected slot to be reusable, got %v", err)
	}
}
