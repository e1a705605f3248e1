// Package metrics exposes server counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "messenger",
		Name:      "connections",
		Help:      "Live websocket connections.",
	})

	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "messenger",
		Name:      "sessions",
		Help:      "Connections bound to a logged in user.",
	})

	HeartbeatTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "heartbeat_timeouts_total",
		Help:      "Connections closed for not answering a ping.",
	})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "commands_total",
		Help:      "Accepted commands by name.",
	}, []string{"command"})

	Rejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "rejected_total",
		Help:      "Requests dropped before dispatch, by reason.",
	}, []string{"reason"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "deliveries_total",
		Help:      "Live delivery attempts of stored messages, by result.",
	}, []string{"result"})
)
