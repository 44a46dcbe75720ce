// Package driver runs the loop that makes polling buses deliver.
//
// A polled bus only invokes callbacks inside Spin. Run calls Spin with a
// bounded wait until the context ends or the bus is closed:
//
//	bus := polled.New[Order]()
//	go driver.Run(ctx, bus)
//
// RunAll drives several spinners, each on its own goroutine, and stops them
// all on the first failure.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/rbaliyan/eventbus"
	"golang.org/x/sync/errgroup"
)

// Run spins s until ctx ends (returns nil), s reports ErrClosed (returns
// nil) or s reports another fault the fault handler does not absorb
// (returns that fault).
func Run(ctx context.Context, s eventbus.Spinner, opts ...Option) error {
	o := newOptions(opts...)

	var pause *time.Ticker
	if o.interval > 0 {
		pause = time.NewTicker(o.interval)
		defer pause.Stop()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := s.Spin(o.spinWait); err != nil {
			if errors.Is(err, eventbus.ErrClosed) {
				o.logger.Debug("spinner closed, stopping")
				return nil
			}
			if !o.onFault(err) {
				o.logger.Error("spin failed, stopping", "error", err)
				return err
			}
			o.logger.Warn("spin failed, continuing", "error", err)
		}

		if pause != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-pause.C:
			}
		}
	}
}

// RunAll runs every spinner under one errgroup. It returns when all loops
// ended; the first fault cancels the others and is returned.
func RunAll(ctx context.Context, spinners []eventbus.Spinner, opts ...Option) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range spinners {
		g.Go(func() error {
			return Run(gctx, s, opts...)
		})
	}
	return g.Wait()
}
