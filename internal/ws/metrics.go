package ws

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connected_sessions",
			Help: "Websocket sessions currently registered",
		},
	)

	inboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_inbound_messages_total",
			Help: "Inbound websocket messages by event type",
		},
		[]string{"type"},
	)

	droppedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_dropped_messages_total",
			Help: "Outbound messages dropped because a session's buffer was full",
		},
	)
)

// MustRegisterMetrics registers the websocket collectors with reg.
func MustRegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(connectedSessions, inboundMessages, droppedMessages)
}
