// Package middleware decorates subscription callbacks.
//
// A Middleware wraps an eventbus.Handler and returns another, so decorated
// handlers subscribe to any bus unchanged:
//
//	h := middleware.Chain(
//		middleware.Recover[Order](),
//		middleware.Filter(func(o Order) bool { return o.Total > 0 }),
//		middleware.Dedupe(store, func(o Order) string { return o.ID }),
//	)(handle)
//	sub, err := bus.Subscribe(h)
package middleware

import (
	"context"

	"github.com/rbaliyan/eventbus"
)

// Middleware wraps a handler
type Middleware[P any] func(eventbus.Handler[P]) eventbus.Handler[P]

// Chain composes middlewares. The first one is the outermost.
func Chain[P any](mws ...Middleware[P]) Middleware[P] {
	return func(h eventbus.Handler[P]) eventbus.Handler[P] {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

// Recover stops a panicking handler from taking down the delivering
// goroutine. The panic is logged and the payload counts as handled.
func Recover[P any](opts ...Option) Middleware[P] {
	o := newOptions(opts...)
	return func(next eventbus.Handler[P]) eventbus.Handler[P] {
		return func(payload P) {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("handler panicked", "panic", r)
				}
			}()
			next(payload)
		}
	}
}

// Filter delivers only payloads for which keep returns true
func Filter[P any](keep func(P) bool) Middleware[P] {
	return func(next eventbus.Handler[P]) eventbus.Handler[P] {
		return func(payload P) {
			if keep(payload) {
				next(payload)
			}
		}
	}
}

// Dedupe delivers a payload only the first time its key is claimed in
// store. Payloads with an empty key are always delivered. If the store
// fails the payload is delivered and the failure logged.
func Dedupe[P any](store Store, key func(P) string, opts ...Option) Middleware[P] {
	o := newOptions(opts...)
	return func(next eventbus.Handler[P]) eventbus.Handler[P] {
		return func(payload P) {
			k := key(payload)
			if k == "" {
				next(payload)
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), o.storeTimeout)
			first, err := store.Claim(ctx, k)
			cancel()
			if err != nil {
				o.logger.Warn("dedupe store failed, delivering", "key", k, "error", err)
				next(payload)
				return
			}
			if !first {
				o.logger.Debug("duplicate skipped", "key", k)
				o.onSkip(k)
				return
			}
			next(payload)
		}
	}
}
