package invalidation

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	// messages by outcome: ok, error, invalid
	messages *prometheus.CounterVec
	// applied events by op, plus skip_seq for duplicates
	apply      *prometheus.CounterVec
	sinkErrors prometheus.Counter
	latency    *prometheus.HistogramVec
	lag        prometheus.Gauge
	partitions prometheus.Gauge
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_invalidation_messages_total",
			Help: "Listing invalidation messages consumed, by outcome.",
		}, []string{"outcome"}),
		apply: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_invalidation_applied_total",
			Help: "Area invalidations applied to the catalog, by op.",
		}, []string{"op"}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discovery_invalidation_sink_errors_total",
			Help: "Sink failures; the message is retried.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "discovery_invalidation_apply_seconds",
			Help:    "Time to apply one invalidation event, reload included.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"op"}),
		lag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "discovery_invalidation_lag_seconds",
			Help: "Now minus the timestamp of the last consumed message.",
		}),
		partitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "discovery_invalidation_partitions",
			Help: "Partitions currently assigned to this instance.",
		}),
	}
	if r != nil {
		r.MustRegister(m.messages, m.apply, m.sinkErrors, m.latency, m.lag, m.partitions)
	}
	return m
}
