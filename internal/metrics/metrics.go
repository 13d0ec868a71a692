// Package metrics exposes the Prometheus collectors for the ByteChat
// server: message throughput, active participants, durable history
// growth, and process uptime.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var startTime = time.Now()

var (
	// MessagesTotal counts chat messages accepted for relay.
	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bytechat_messages_total",
		Help: "Total number of chat messages relayed.",
	})

	// ActiveUsers tracks the number of currently joined participants.
	ActiveUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bytechat_active_users",
		Help: "Number of currently joined participants.",
	})

	// HistoryEntries counts messages durably written to the history log.
	HistoryEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bytechat_history_entries_total",
		Help: "Total number of messages persisted to history.",
	})

	// Uptime reports seconds since process start.
	Uptime = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "bytechat_app_uptime_seconds",
		Help: "Application uptime in seconds.",
	}, func() float64 {
		return time.Since(startTime).Seconds()
	})
)
