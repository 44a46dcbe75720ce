package asynch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rbaliyan/eventbus"
)

func TestFromPostbox(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		pb := eventbus.NewMockPostbox[string](eventbus.MockAccept)
		s := FromPostbox[string](pb)

		ok, err := s.Send(context.Background(), "a")
		if !ok || err != nil {
			t.Fatalf("Send = (%v, %v)", ok, err)
		}
		if diff := cmp.Diff([]string{"a"}, pb.Posted()); diff != "" {
			t.Errorf("posted mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ctx ends while full", func(t *testing.T) {
		pb := eventbus.NewMockPostbox[string](eventbus.MockReject)
		s := FromPostbox[string](pb)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		start := time.Now()
		ok, err := s.Send(ctx, "a")
		if ok || err != nil {
			t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
		}
		if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
			t.Errorf("returned after %v, expected to wait for ctx", elapsed)
		}
	})

	t.Run("no deadline retries until cancel", func(t *testing.T) {
		pb := eventbus.NewMockPostbox[string](eventbus.MockReject)
		s := FromPostbox[string](pb)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(5*DefaultPollInterval, cancel)

		ok, err := s.Send(ctx, "a")
		if ok || err != nil {
			t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
		}
		if pb.Calls() < 2 {
			t.Errorf("expected retries, got %d calls", pb.Calls())
		}
	})

	t.Run("done ctx still attempts once", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		accept := eventbus.NewMockPostbox[string](eventbus.MockAccept)
		if ok, err := FromPostbox[string](accept).Send(ctx, "a"); !ok || err != nil {
			t.Errorf("expected (true, nil), got (%v, %v)", ok, err)
		}

		reject := eventbus.NewMockPostbox[string](eventbus.MockReject)
		if ok, err := FromPostbox[string](reject).Send(ctx, "a"); ok || err != nil {
			t.Errorf("expected (false, nil), got (%v, %v)", ok, err)
		}
		if reject.Calls() != 1 {
			t.Errorf("expected exactly one attempt, got %d", reject.Calls())
		}
	})

	t.Run("fault is returned", func(t *testing.T) {
		pb := eventbus.NewMockPostbox[string](eventbus.MockDestroyed)
		ok, err := FromPostbox[string](pb).Send(context.Background(), "a")
		if ok || !errors.Is(err, eventbus.ErrClosed) {
			t.Errorf("expected ErrClosed, got (%v, %v)", ok, err)
		}
	})
}

func TestToPostbox(t *testing.T) {
	var deadlines []bool
	s := SenderFunc[int](func(ctx context.Context, v int) (bool, error) {
		_, has := ctx.Deadline()
		deadlines = append(deadlines, has)
		return v%2 == 0, nil
	})
	pb := ToPostbox[int](s)

	if ok, _ := pb.Post(2, eventbus.Forever); !ok {
		t.Error("expected 2 to be accepted")
	}
	if ok, _ := pb.Post(3, time.Second); ok {
		t.Error("expected 3 to be rejected")
	}
	if diff := cmp.Diff([]bool{false, true}, deadlines); diff != "" {
		t.Errorf("deadline mismatch (-want +got):\n%s", diff)
	}
}

func TestShared(t *testing.T) {
	var calls int
	s := SenderFunc[int](func(context.Context, int) (bool, error) {
		calls++
		return true, nil
	})
	p := Shared[int](s)

	a, err := p.Postbox(context.Background())
	if err != nil {
		t.Fatalf("Postbox failed: %v", err)
	}
	b, _ := p.Postbox(context.Background())
	a.Send(context.Background(), 1)
	b.Send(context.Background(), 2)
	if calls != 2 {
		t.Errorf("expected both handles to reach the same sender, got %d calls", calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Postbox(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReceiverFunc(t *testing.T) {
	want := []int{1, 2, 3}
	i := 0
	r := ReceiverFunc[int](func(ctx context.Context) (int, error) {
		if i == len(want) {
			return 0, eventbus.NewFault("recv", eventbus.ErrClosed)
		}
		i++
		return want[i-1], nil
	})

	var got []int
	for {
		v, err := r.Recv(context.Background())
		if err != nil {
			if !eventbus.IsFault(err) {
				t.Fatalf("expected fault, got %v", err)
			}
			break
		}
		got = append(got, v)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("received mismatch (-want +got):\n%s", diff)
	}
}
