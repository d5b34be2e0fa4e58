// Package metrics collects and exposes prometheus metrics for the sync server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the server's operational metrics. A nil *Collector is a
// valid no-op collector, so tests can leave it out.
type Collector struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	events      *prometheus.CounterVec
	dropped     prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boardroom_connections",
			Help: "Number of live websocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boardroom_rooms",
			Help: "Number of live rooms.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_events_total",
			Help: "Inbound client events by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boardroom_dropped_events_total",
			Help: "Outbound events dropped because a connection's buffer was full.",
		}),
	}

	reg.MustRegister(
		c.connections,
		c.rooms,
		c.events,
		c.dropped,
	)
	return c
}

// RecordEvent counts one inbound event of the given type.
func (c *Collector) RecordEvent(eventType string) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(eventType).Inc()
}

// SetConnections records the current number of live connections.
func (c *Collector) SetConnections(n int) {
	if c == nil {
		return
	}
	c.connections.Set(float64(n))
}

// SetRooms records the current number of live rooms.
func (c *Collector) SetRooms(n int) {
	if c == nil {
		return
	}
	c.rooms.Set(float64(n))
}

// RecordDrop counts one outbound event dropped on a full connection buffer.
func (c *Collector) RecordDrop() {
	if c == nil {
		return
	}
	c.dropped.Inc()
}

// Handler returns the scrape handler for the given gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
