package roomserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the server's Prometheus instruments.
type Metrics struct {
	connections prometheus.Gauge
	members     prometheus.Gauge
	events      *prometheus.CounterVec
	errors      *prometheus.CounterVec
	broadcasts  prometheus.Counter
	dropped     prometheus.Counter
}

// NewMetrics registers the instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "collabnotes",
			Name:      "connections",
			Help:      "Open websocket connections",
		}),
		members: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "collabnotes",
			Name:      "room_members",
			Help:      "Connections currently joined to a room",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collabnotes",
			Name:      "events_total",
			Help:      "Client events processed, by event name",
		}, []string{"event"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collabnotes",
			Name:      "event_errors_total",
			Help:      "Client events that failed, by event name",
		}, []string{"event"}),
		broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "collabnotes",
			Name:      "broadcasts_total",
			Help:      "Room broadcasts delivered by this instance",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "collabnotes",
			Name:      "dropped_clients_total",
			Help:      "Connections dropped because their send buffer was full",
		}),
	}
}
