package sync

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the sync engine.
// Each Metrics has its own registry so engines in tests never collide.
type Metrics struct {
	registry *prometheus.Registry

	ActionsReplayed *prometheus.CounterVec
	DrainDuration   prometheus.Histogram
	DrainsSkipped   prometheus.Counter
	PendingActions  prometheus.Gauge
	LastSync        prometheus.Gauge
	WeatherLookups  *prometheus.CounterVec
}

// NewMetrics creates and registers the sync collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ActionsReplayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "actions_replayed_total",
				Help:      "Offline actions replayed against the API",
			},
			[]string{"type", "result"},
		),
		DrainDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "drain_duration_seconds",
				Help:      "Duration of one queue drain",
				Buckets:   prometheus.DefBuckets,
			},
		),
		DrainsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "drains_skipped_total",
				Help:      "Drains skipped because another drain was in flight",
			},
		),
		PendingActions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "pending_actions",
				Help:      "Unsynced offline actions after the last drain",
			},
		),
		LastSync: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last completed sync",
			},
		),
		WeatherLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "weather_lookups_total",
				Help:      "Weather lookups by cache result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.ActionsReplayed,
		m.DrainDuration,
		m.DrainsSkipped,
		m.PendingActions,
		m.LastSync,
		m.WeatherLookups,
	)
	return m
}

// Registry returns the registry holding the sync collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
