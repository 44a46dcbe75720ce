// Package metrics exports bus counters to Prometheus.
//
// Every bus in this module keeps its own counters (eventbus.Stats). A
// Collector reads them at scrape time, so nothing on the Post path touches
// Prometheus:
//
//	c := metrics.NewCollector("shop", "orders", bus)
//	if err := c.Register(nil); err != nil { ... }
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rbaliyan/eventbus"
)

// DefaultNamespace is used when NewCollector is given an empty namespace
const DefaultNamespace = "eventbus"

// Collector implements prometheus.Collector over a StatsSource
type Collector struct {
	source eventbus.StatsSource

	accepted    *prometheus.Desc
	rejected    *prometheus.Desc
	delivered   *prometheus.Desc
	dropped     *prometheus.Desc
	queued      *prometheus.Desc
	subscribers *prometheus.Desc
	postboxes   *prometheus.Desc
}

// NewCollector creates a collector for source. name becomes the metric
// subsystem, usually the bus name.
func NewCollector(namespace, name string, source eventbus.StatsSource) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, name, metric), help, nil, nil)
	}
	return &Collector{
		source:      source,
		accepted:    desc("accepted_total", "Total payloads accepted by Post or Send"),
		rejected:    desc("rejected_total", "Total posts that were not accepted within their wait"),
		delivered:   desc("delivered_total", "Total deliveries to subscribers"),
		dropped:     desc("dropped_total", "Total deliveries given up"),
		queued:      desc("queued", "Payloads waiting for dispatch"),
		subscribers: desc("subscribers", "Active subscriptions"),
		postboxes:   desc("postboxes", "Postbox handles holding a slot"),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.accepted
	ch <- c.rejected
	ch <- c.delivered
	ch <- c.dropped
	ch <- c.queued
	ch <- c.subscribers
	ch <- c.postboxes
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.accepted, prometheus.CounterValue, float64(s.Accepted))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(s.Rejected))
	ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(s.Delivered))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(s.Queued))
	ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(s.Subscribers))
	ch <- prometheus.MustNewConstMetric(c.postboxes, prometheus.GaugeValue, float64(s.Postboxes))
}

// Register registers the collector. A nil registerer means
// prometheus.DefaultRegisterer.
func (c *Collector) Register(r prometheus.Registerer) error {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	return r.Register(c)
}

// Compile-time interface check
var _ prometheus.Collector = (*Collector)(nil)
