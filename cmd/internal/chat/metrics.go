package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chamados_chat_connections",
		Help: "Open websocket connections by role.",
	}, []string{"role"})

	metricOnlineAttendants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chamados_chat_online_attendants",
		Help: "Attendant connections currently in the presence registry.",
	})

	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chamados_chat_messages_total",
		Help: "Accepted chat messages by origin (user or staff).",
	}, []string{"origin"})

	metricDroppedDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chamados_chat_deliveries_dropped_total",
		Help: "Envelopes dropped because a receiver queue was full or closing.",
	})

	metricStoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chamados_chat_store_failures_total",
		Help: "Message persistence failures.",
	})
)
