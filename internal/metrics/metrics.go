// Package metrics exposes Prometheus instrumentation for the messaging core.
// The api service serves these on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "messaging",
		Name:      "messages_created_total",
		Help:      "Messages accepted and durably stored.",
	})

	RelayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "messaging",
		Name:      "relay_connections",
		Help:      "Live realtime connections across all rooms.",
	})

	RelayPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "messaging",
		Name:      "relay_published_total",
		Help:      "Events enqueued to at least one connection.",
	})

	RelayMissed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "messaging",
		Name:      "relay_missed_total",
		Help:      "Publishes that found the target room empty and were dropped.",
	})

	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "messaging",
		Name:      "notify_failures_total",
		Help:      "Best-effort push notifications that could not be sent.",
	})
)
