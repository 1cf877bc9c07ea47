package websocket

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_console_ws_connections",
			Help: "Current number of browser event stream connections.",
		},
	)
	wsRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_console_ws_rooms",
			Help: "Current number of event rooms.",
		},
	)
	wsMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_console_ws_messages_delivered_total",
			Help: "Total console events delivered to browsers.",
		},
	)
	wsPublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_console_ws_publish_failures_total",
			Help: "Total console events that could not be published.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsRooms, wsMessagesDelivered, wsPublishFailures)
}

func incConnections() {
	wsConnections.Inc()
}

func decConnections() {
	wsConnections.Dec()
}

func setRooms(count int) {
	wsRooms.Set(float64(count))
}

func addDelivered(count int) {
	wsMessagesDelivered.Add(float64(count))
}

func incPublishFailures() {
	wsPublishFailures.Inc()
}
