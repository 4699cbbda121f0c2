package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BusSnapshot is a point-in-time view of bus state exported to Prometheus.
type BusSnapshot struct {
	EventTypes       int
	Listeners        int
	CachedGroups     int
	ListenerOwners   int
	Fires            uint64
	AsyncFires       uint64
	AsyncCompleted   uint64
	ListenerFailures uint64
	ResumeMisuses    uint64
}

// Collector exposes bus statistics as Prometheus metrics.
// Values are read from the snapshot function on every scrape, so the
// collector never holds bus locks between scrapes.
type Collector struct {
	snapshot func() BusSnapshot

	eventTypes       *prometheus.Desc
	listeners        *prometheus.Desc
	cachedGroups     *prometheus.Desc
	listenerOwners   *prometheus.Desc
	fires            *prometheus.Desc
	asyncCompleted   *prometheus.Desc
	listenerFailures *prometheus.Desc
	resumeMisuses    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector. Register it with a prometheus.Registerer.
func NewCollector(namespace string, snapshot func() BusSnapshot) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "eventbus", name), help, labels, nil)
	}
	return &Collector{
		snapshot:         snapshot,
		eventTypes:       desc("event_types", "Event type keys with at least one registered listener"),
		listeners:        desc("listeners", "Registered listeners across all event type keys"),
		cachedGroups:     desc("cached_groups", "Resolved listener chains currently cached"),
		listenerOwners:   desc("listener_owners", "Handler objects registered through the listener adapter"),
		fires:            desc("fires_total", "Fires started", "mode"),
		asyncCompleted:   desc("async_completed_total", "Async fires whose chain ran to completion"),
		listenerFailures: desc("listener_failures_total", "Listener invocations that returned an error or panicked"),
		resumeMisuses:    desc("resume_misuses_total", "Continuations resumed more than once"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.eventTypes
	ch <- c.listeners
	ch <- c.cachedGroups
	ch <- c.listenerOwners
	ch <- c.fires
	ch <- c.asyncCompleted
	ch <- c.listenerFailures
	ch <- c.resumeMisuses
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()

	ch <- prometheus.MustNewConstMetric(c.eventTypes, prometheus.GaugeValue, float64(s.EventTypes))
	ch <- prometheus.MustNewConstMetric(c.listeners, prometheus.GaugeValue, float64(s.Listeners))
	ch <- prometheus.MustNewConstMetric(c.cachedGroups, prometheus.GaugeValue, float64(s.CachedGroups))
	ch <- prometheus.MustNewConstMetric(c.listenerOwners, prometheus.GaugeValue, float64(s.ListenerOwners))
	ch <- prometheus.MustNewConstMetric(c.fires, prometheus.CounterValue, float64(s.Fires-s.AsyncFires), "sync")
	ch <- prometheus.MustNewConstMetric(c.fires, prometheus.CounterValue, float64(s.AsyncFires), "async")
	ch <- prometheus.MustNewConstMetric(c.asyncCompleted, prometheus.CounterValue, float64(s.AsyncCompleted))
	ch <- prometheus.MustNewConstMetric(c.listenerFailures, prometheus.CounterValue, float64(s.ListenerFailures))
	ch <- prometheus.MustNewConstMetric(c.resumeMisuses, prometheus.CounterValue, float64(s.ResumeMisuses))
}
