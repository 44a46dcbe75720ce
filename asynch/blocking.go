package asynch

import (
	"context"
	"time"

	"github.com/rbaliyan/eventbus"
)

// DefaultPollInterval is the slice of wait FromPostbox uses while ctx has
// no deadline.
var DefaultPollInterval = 10 * time.Millisecond

// FromPostbox adapts a blocking postbox to a Sender. Each attempt waits for
// the time left until ctx's deadline, or DefaultPollInterval when ctx has
// none, and retries until ctx ends. A ctx that is already done gets one
// NoWait attempt.
func FromPostbox[P any](pb eventbus.Postbox[P]) Sender[P] {
	return SenderFunc[P](func(ctx context.Context, payload P) (bool, error) {
		for {
			wait := DefaultPollInterval
			if deadline, ok := ctx.Deadline(); ok {
				wait = time.Until(deadline)
			}
			if wait <= 0 || ctx.Err() != nil {
				wait = eventbus.NoWait
			}
			ok, err := pb.Post(payload, wait)
			if err != nil || ok {
				return ok, err
			}
			if ctx.Err() != nil {
				return false, nil
			}
		}
	})
}

// ToPostbox adapts a Sender to a blocking postbox. The wait bound becomes a
// context deadline; eventbus.Forever sends without one.
func ToPostbox[P any](s Sender[P]) eventbus.Postbox[P] {
	return eventbus.PostboxFunc[P](func(payload P, wait time.Duration) (bool, error) {
		ctx := context.Background()
		if wait >= 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, wait)
			defer cancel()
		}
		return s.Send(ctx, payload)
	})
}
