package push

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rbaliyan/eventbus"
)

const waitTimeout = 2 * time.Second

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPushScenario(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	pb, err := bus.Postbox()
	if err != nil {
		t.Fatalf("Postbox failed: %v", err)
	}
	defer eventbus.Release(pb)

	rec := eventbus.NewRecorder[int]()
	sub, err := bus.Subscribe(rec.Handler())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	for i := 1; i <= 3; i++ {
		if ok, err := pb.Post(i, eventbus.NoWait); !ok || err != nil {
			t.Fatalf("Post(%d) = (%v, %v)", i, ok, err)
		}
	}

	if !rec.WaitFor(3, waitTimeout) {
		t.Fatalf("expected 3 payloads, got %v", rec.Received())
	}
	if diff := cmp.Diff([]int{1, 2, 3}, rec.Received()); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}
}

func TestOrderingAcrossSubscribers(t *testing.T) {
	const n = 500
	bus := New[int](WithInboxSize(n), WithCapacity(n))
	defer bus.Close()

	recs := []*eventbus.Recorder[int]{eventbus.NewRecorder[int](), eventbus.NewRecorder[int]()}
	for _, r := range recs {
		sub, _ := bus.Subscribe(r.Handler())
		defer sub.Close()
	}

	pb, _ := bus.Postbox()
	want := make([]int, n)
	for i := range want {
		want[i] = i
		if ok, err := pb.Post(i, eventbus.Forever); !ok || err != nil {
			t.Fatalf("Post(%d) = (%v, %v)", i, ok, err)
		}
	}

	for i, r := range recs {
		if !r.WaitFor(n, waitTimeout) {
			t.Fatalf("subscriber %d got %d payloads", i, r.Count())
		}
		if diff := cmp.Diff(want, r.Received()); diff != "" {
			t.Errorf("subscriber %d order mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestDropsAreObservable(t *testing.T) {
	var drops atomic.Int64
	bus := New[int](WithInboxSize(1), WithDropHandler(func(string) {
		drops.Add(1)
	}))
	defer bus.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	rec := eventbus.NewRecorder[int]()
	var once sync.Once
	sub, _ := bus.Subscribe(func(v int) {
		once.Do(func() { close(started) })
		<-release
		rec.Handler()(v)
	})
	defer sub.Close()

	pb, _ := bus.Postbox()
	pb.Post(1, eventbus.NoWait)
	<-started

	pb.Post(2, eventbus.NoWait) // fills the inbox
	waitUntil(t, func() bool { return bus.Stats().Queued == 0 })
	pb.Post(3, eventbus.NoWait) // dropped
	waitUntil(t, func() bool { return bus.Stats().Dropped == 1 })

	close(release)
	if !rec.WaitFor(2, waitTimeout) {
		t.Fatalf("expected 2 deliveries, got %v", rec.Received())
	}
	if diff := cmp.Diff([]int{1, 2}, rec.Received()); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}
	if drops.Load() != 1 {
		t.Errorf("expected drop handler called once, got %d", drops.Load())
	}
	if got := bus.Stats(); got.Accepted != 3 || got.Dropped != 1 {
		t.Errorf("unexpected stats %+v", got)
	}
}

func TestSubscriptionLifetime(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	pb, _ := bus.Postbox()
	rec := eventbus.NewRecorder[int]()
	sub, _ := bus.Subscribe(rec.Handler())

	pb.Post(1, eventbus.NoWait)
	if !rec.WaitFor(1, waitTimeout) {
		t.Fatal("first payload not delivered")
	}

	sub.Close()
	sub.Close()

	other := eventbus.NewRecorder[int]()
	bus.Subscribe(other.Handler())
	pb.Post(2, eventbus.NoWait)

	// once a later subscriber saw 2, the released one had its chance
	if !other.WaitFor(1, waitTimeout) {
		t.Fatal("payload 2 not delivered to remaining subscriber")
	}
	if diff := cmp.Diff([]int{1}, rec.Received()); diff != "" {
		t.Errorf("delivery after release (-want +got):\n%s", diff)
	}
}

func TestSpinIsNoop(t *testing.T) {
	bus := New[int]()

	start := time.Now()
	if err := bus.Spin(eventbus.Forever); err != nil {
		t.Fatalf("Spin failed: %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Spin blocked on a push bus")
	}

	bus.Close()
	if err := bus.Spin(eventbus.NoWait); !errors.Is(err, eventbus.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestClosedBusFaults(t *testing.T) {
	bus := New[int]()
	pb, _ := bus.Postbox()
	bus.Close()
	bus.Close()

	if _, err := pb.Post(1, eventbus.NoWait); !errors.Is(err, eventbus.ErrClosed) {
		t.Errorf("Post: expected ErrClosed, got %v", err)
	}
	if _, err := bus.Subscribe(func(int) {}); !errors.Is(err, eventbus.ErrClosed) {
		t.Errorf("Subscribe: expected ErrClosed, got %v", err)
	}
	if _, err := bus.Postbox(); !errors.Is(err, eventbus.ErrClosed) {
		t.Errorf("Postbox: expected ErrClosed, got %v", err)
	}
}

func TestReleasedPostbox(t *testing.T) {
	bus := New[int](WithMaxPostboxes(1))
	defer bus.Close()

	pb, _ := bus.Postbox()
	if _, err := bus.Postbox(); !errors.Is(err, eventbus.ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
	eventbus.Release(pb)
	if _, err := pb.Post(1, eventbus.NoWait); !errors.Is(err, eventbus.ErrInvalidated) {
		t.Errorf("expected ErrInvalidated, got %v", err)
	}
	if bus.Stats().Postboxes != 0 {
		t.Errorf("expected slot released, got %d", bus.Stats().Postboxes)
	}
}
