// Package metrics exposes Prometheus instrumentation for the tracker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tabtally"

// Metrics groups the tracker's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	EventsTotal      *prometheus.CounterVec
	EventsDropped    prometheus.Counter
	FlushesTotal     prometheus.Counter
	FlushErrorsTotal prometheus.Counter
	FlushDuration    prometheus.Histogram
	OpenTabs         prometheus.Gauge
	KnownTabs        prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Tab events reconciled, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Tab events received before listeners were attached.",
		}),
		FlushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Durable writes of the current day aggregate.",
		}),
		FlushErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_errors_total",
			Help:      "Durable writes that failed.",
		}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent writing the day aggregate.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		OpenTabs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_tabs",
			Help:      "Most recently sampled open-tab count.",
		}),
		KnownTabs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identity_cache_size",
			Help:      "Tab ids currently held in the identity cache.",
		}),
	}
}

// Event counts one reconciled event.
func (m *Metrics) Event(kind, outcome string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind, outcome).Inc()
}

// Dropped counts an event ignored during the startup grace period.
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// Flush records a durable write attempt.
func (m *Metrics) Flush(seconds float64, err error) {
	if m == nil {
		return
	}
	m.FlushesTotal.Inc()
	m.FlushDuration.Observe(seconds)
	if err != nil {
		m.FlushErrorsTotal.Inc()
	}
}

// Tabs records the latest sample and identity cache size.
func (m *Metrics) Tabs(open, known int) {
	if m == nil {
		return
	}
	m.OpenTabs.Set(float64(open))
	m.KnownTabs.Set(float64(known))
}
