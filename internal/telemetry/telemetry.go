// Package telemetry holds the counters every bus in this module records.
// Counts go to OpenTelemetry and to atomic mirrors that back Stats().
package telemetry

import (
	"context"
	"sync/atomic"

	"github.com/rbaliyan/eventbus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Counters records bus activity for one bus instance.
type Counters struct {
	accepted  atomic.Uint64
	rejected  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64

	attrs           metric.MeasurementOption
	acceptedCounter metric.Int64Counter
	rejectedCounter metric.Int64Counter
	deliveredCount  metric.Int64Counter
	droppedCounter  metric.Int64Counter
}

// New creates counters under the given instrumentation scope
// (e.g. "eventbus.polled") tagged with the bus name.
func New(scope, bus string) *Counters {
	meter := otel.Meter(scope)

	// Instrument creation only fails on invalid names; a nil instrument is
	// skipped when recording.
	accepted, _ := meter.Int64Counter(scope+".accepted",
		metric.WithDescription("Number of payloads accepted by the bus"),
		metric.WithUnit("{payload}"),
	)
	rejected, _ := meter.Int64Counter(scope+".rejected",
		metric.WithDescription("Number of posts rejected by backpressure"),
		metric.WithUnit("{payload}"),
	)
	delivered, _ := meter.Int64Counter(scope+".delivered",
		metric.WithDescription("Number of deliveries to subscribers"),
		metric.WithUnit("{delivery}"),
	)
	dropped, _ := meter.Int64Counter(scope+".dropped",
		metric.WithDescription("Number of deliveries dropped for slow subscribers"),
		metric.WithUnit("{delivery}"),
	)

	return &Counters{
		attrs:           metric.WithAttributes(attribute.String("bus", bus)),
		acceptedCounter: accepted,
		rejectedCounter: rejected,
		deliveredCount:  delivered,
		droppedCounter:  dropped,
	}
}

// Posted records the outcome of one post attempt.
func (c *Counters) Posted(ok bool) {
	if ok {
		c.accepted.Add(1)
		add(c.acceptedCounter, c.attrs)
		return
	}
	c.rejected.Add(1)
	add(c.rejectedCounter, c.attrs)
}

// Delivered records one delivery to one subscriber.
func (c *Counters) Delivered() {
	c.delivered.Add(1)
	add(c.deliveredCount, c.attrs)
}

// Dropped records one delivery given up for reason.
func (c *Counters) Dropped(reason string) {
	c.dropped.Add(1)
	if c.droppedCounter != nil {
		c.droppedCounter.Add(context.Background(), 1, c.attrs,
			metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// Stats fills the counter fields of a Stats snapshot.
func (c *Counters) Stats() eventbus.Stats {
	return eventbus.Stats{
		Accepted:  c.accepted.Load(),
		Rejected:  c.rejected.Load(),
		Delivered: c.delivered.Load(),
		Dropped:   c.dropped.Load(),
	}
}

func add(counter metric.Int64Counter, attrs metric.MeasurementOption) {
	if counter != nil {
		counter.Add(context.Background(), 1, attrs)
	}
}
