// Package metrics exposes Prometheus counters for the relay processes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quote_relay"

type Metrics struct {
	registry *prometheus.Registry

	// Quotes decoded from the feed
	TicksTotal *prometheus.CounterVec
	// Webhook deliveries by result (ok, error)
	WebhookDeliveries *prometheus.CounterVec
	// Snapshot fetches by outcome (ok, timeout, connect_error, canceled)
	SnapshotsTotal  *prometheus.CounterVec
	SnapshotLatency prometheus.Histogram
	// Keep-alive pings that failed to send
	KeepAliveFailures prometheus.Counter
}

// New builds a Metrics set on its own registry so tests and multiple
// instances never collide on the default one.
func New(service string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "ticks_total",
			Help:      "Quotes decoded from the vendor feed",
		}, []string{"symbol"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook POST attempts by result",
		}, []string{"result"}),
		SnapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "snapshots_total",
			Help:      "On-demand snapshot fetches by outcome",
		}, []string{"outcome"}),
		SnapshotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "snapshot_duration_seconds",
			Help:      "Time from connect to terminal state of a snapshot fetch",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 6, 10},
		}),
		KeepAliveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "keepalive_failures_total",
			Help:      "Keep-alive pings that could not be sent",
		}),
	}

	m.registry.MustRegister(
		m.TicksTotal,
		m.WebhookDeliveries,
		m.SnapshotsTotal,
		m.SnapshotLatency,
		m.KeepAliveFailures,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
