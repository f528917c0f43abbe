// Package metrics exposes query engine activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements surrealgeo.Metrics and prometheus.Collector.
//
//	c := metrics.New("surrealgeo")
//	prometheus.MustRegister(c)
//	gs, _ := surrealgeo.New(s, surrealgeo.WithMetrics(c))
type Collector struct {
	watches       prometheus.Gauge
	watchesTotal  prometheus.Counter
	events        *prometheus.CounterVec
	readySeconds  prometheus.Histogram
	trackedRecord prometheus.Gauge
}

func New(namespace string) *Collector {
	return &Collector{
		watches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "range_watches",
			Help:      "Number of live geohash range watches",
		}),
		watchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_watches_started_total",
			Help:      "Total geohash range watches started",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Total observer callbacks run, by event",
		}, []string{"event"}),
		readySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ready_duration_seconds",
			Help:      "Time from watching new ranges until every initial load completed",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		trackedRecord: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_records",
			Help:      "Number of records tracked across all queries",
		}),
	}
}

func (c *Collector) WatchStarted() {
	c.watches.Inc()
	c.watchesTotal.Inc()
}

func (c *Collector) WatchStopped() {
	c.watches.Dec()
}

func (c *Collector) EventDispatched(kind string) {
	c.events.WithLabelValues(kind).Inc()
}

func (c *Collector) Ready(elapsed time.Duration) {
	c.readySeconds.Observe(elapsed.Seconds())
}

func (c *Collector) EntitiesTracked(delta int) {
	c.trackedRecord.Add(float64(delta))
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.watches.Describe(ch)
	c.watchesTotal.Describe(ch)
	c.events.Describe(ch)
	c.readySeconds.Describe(ch)
	c.trackedRecord.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.watches.Collect(ch)
	c.watchesTotal.Collect(ch)
	c.events.Collect(ch)
	c.readySeconds.Collect(ch)
	c.trackedRecord.Collect(ch)
}
