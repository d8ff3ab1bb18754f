package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the realtime hub. Notification
// delivery is fire-and-forget, so the dropped counter is the only way
// operators see silent failures.
type Metrics struct {
	clientsConnected prometheus.Gauge
	connectionsTotal prometheus.Counter
	eventsEmitted    *prometheus.CounterVec
	eventsDelivered  prometheus.Counter
	eventsDropped    *prometheus.CounterVec
}

// newMetrics creates and registers hub metrics. A nil registry disables
// metrics entirely.
func newMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "occupancy",
			Subsystem: "realtime",
			Name:      "clients_connected",
			Help:      "Number of currently connected WebSocket clients",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occupancy",
			Subsystem: "realtime",
			Name:      "client_connections_total",
			Help:      "Total client connections (including disconnected)",
		}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "occupancy",
			Subsystem: "realtime",
			Name:      "events_emitted_total",
			Help:      "Events emitted to topics",
		}, []string{"event"}),
		eventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occupancy",
			Subsystem: "realtime",
			Name:      "events_delivered_total",
			Help:      "Per-connection event deliveries",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "occupancy",
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Notifications dropped instead of delivered",
		}, []string{"reason"}),
	}

	registry.MustRegister(
		m.clientsConnected,
		m.connectionsTotal,
		m.eventsEmitted,
		m.eventsDelivered,
		m.eventsDropped,
	)

	return m
}

func (m *Metrics) dropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}
