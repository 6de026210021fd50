package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "meet",
		Subsystem: "signal",
		Name:      "sessions",
		Help:      "Connected signaling sessions.",
	})
	metricRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "meet",
		Subsystem: "signal",
		Name:      "rooms",
		Help:      "Rooms with at least one member.",
	})
	metricBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meet",
		Subsystem: "signal",
		Name:      "broadcasts_total",
		Help:      "Room broadcasts processed.",
	})
	metricDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meet",
		Subsystem: "signal",
		Name:      "deliveries_total",
		Help:      "Per-recipient event deliveries.",
	})
	metricDeliveryDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meet",
		Subsystem: "signal",
		Name:      "delivery_drops_total",
		Help:      "Per-recipient deliveries dropped (closed or slow transport).",
	})
)
