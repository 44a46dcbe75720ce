// Package fxbus wires buses into a go.uber.org/fx application.
//
//	fx.New(
//		fxbus.Push[Order]("orders", push.WithCapacity(512)),
//		fx.Invoke(func(bus eventbus.Bus[Order]) { ... }),
//	)
//
// Each module provides the concrete bus plus eventbus.Bus[P],
// eventbus.PostboxProvider[P] and eventbus.StatsSource views of it, and
// closes the bus when the application stops. If the graph holds a
// prometheus.Registerer, the bus counters are registered with it.
//
// The views are keyed by payload type, so an application gets one bus per
// payload type from this package.
package fxbus

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rbaliyan/eventbus"
	"github.com/rbaliyan/eventbus/driver"
	"github.com/rbaliyan/eventbus/metrics"
	"github.com/rbaliyan/eventbus/polled"
	"github.com/rbaliyan/eventbus/push"
	"go.uber.org/fx"
)

// Namespace is the metrics namespace used when registering bus collectors
var Namespace = metrics.DefaultNamespace

// busInput is what every bus constructor draws from the graph
type busInput struct {
	fx.In
	LC         fx.Lifecycle
	Registerer prometheus.Registerer `optional:"true"`
}

// Push provides a push bus named name.
func Push[P any](name string, opts ...push.Option) fx.Option {
	return fx.Module("eventbus/"+name,
		fx.Provide(
			func(in busInput) (*push.Bus[P], error) {
				bus := push.New[P](append([]push.Option{push.WithName(name)}, opts...)...)
				if err := register(in.Registerer, name, bus); err != nil {
					bus.Close()
					return nil, err
				}
				in.LC.Append(fx.Hook{
					OnStop: func(context.Context) error {
						return bus.Close()
					},
				})
				return bus, nil
			},
			func(b *push.Bus[P]) eventbus.Bus[P] { return b },
			func(b *push.Bus[P]) eventbus.PostboxProvider[P] { return b },
			func(b *push.Bus[P]) eventbus.StatsSource { return b },
		),
	)
}

// Polled provides a polled bus named name together with a driver loop that
// spins it from OnStart until OnStop.
func Polled[P any](name string, spin []driver.Option, opts ...polled.Option) fx.Option {
	return fx.Module("eventbus/"+name,
		fx.Provide(
			func(in busInput) (*polled.Bus[P], error) {
				bus := polled.New[P](append([]polled.Option{polled.WithName(name)}, opts...)...)
				if err := register(in.Registerer, name, bus); err != nil {
					bus.Close()
					return nil, err
				}

				ctx, cancel := context.WithCancel(context.Background())
				var wg sync.WaitGroup
				logger := eventbus.Logger("fxbus>" + name)
				in.LC.Append(fx.Hook{
					OnStart: func(context.Context) error {
						wg.Add(1)
						go func() {
							defer wg.Done()
							if err := driver.Run(ctx, bus, spin...); err != nil {
								logger.Error("driver stopped", "error", err)
							}
						}()
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						wg.Wait()
						return bus.Close()
					},
				})
				return bus, nil
			},
			func(b *polled.Bus[P]) eventbus.Bus[P] { return b },
			func(b *polled.Bus[P]) eventbus.PostboxProvider[P] { return b },
			func(b *polled.Bus[P]) eventbus.StatsSource { return b },
		),
	)
}

func register(r prometheus.Registerer, name string, source eventbus.StatsSource) error {
	if r == nil {
		return nil
	}
	return metrics.NewCollector(Namespace, name, source).Register(r)
}
