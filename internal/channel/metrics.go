package channel

import "github.com/prometheus/client_golang/prometheus"

var (
	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_console_channel_connects_total",
			Help: "Realtime transport connect attempts by outcome.",
		},
		[]string{"outcome"},
	)
	joinResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_console_channel_joins_total",
			Help: "join_session handshakes by outcome.",
		},
		[]string{"outcome"},
	)
	ackResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_console_channel_acks_total",
			Help: "Acknowledged requests by event and outcome.",
		},
		[]string{"event", "outcome"},
	)
	openChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_console_channel_open",
			Help: "Session channels currently open.",
		},
	)
)

func init() {
	prometheus.MustRegister(connectAttempts, joinResults, ackResults, openChannels)
}

func observeConnect(outcome string) {
	connectAttempts.WithLabelValues(outcome).Inc()
}

func observeJoin(outcome string) {
	joinResults.WithLabelValues(outcome).Inc()
}

func observeAck(event, outcome string) {
	ackResults.WithLabelValues(event, outcome).Inc()
}
