package ws

import (
	"github.com/prometheus/client_golang/prometheus"
)

var openSessions = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "ws_open_sessions",
		Help: "Open WebSocket task sessions",
	},
)

func init() {
	prometheus.MustRegister(openSessions)
}
