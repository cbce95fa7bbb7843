package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "messagegarden"

var (
	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_created_total",
			Help:      "Notification rows created",
		},
		[]string{"type"},
	)

	pushEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "push_events_total",
			Help:      "Real-time push delivery outcomes",
		},
		[]string{"status"},
	)

	sideChannelDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "side_channel_dispatches_total",
			Help:      "Preference-gated channel sender dispatches",
		},
		[]string{"channel", "status"},
	)

	liveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "live_connections",
			Help:      "Currently registered push connections",
		},
	)
)

func recordCreated(typ string) {
	notificationsCreated.WithLabelValues(typ).Inc()
}

func recordPush(status string) {
	pushEvents.WithLabelValues(status).Inc()
}

func recordDispatch(channel, status string) {
	sideChannelDispatches.WithLabelValues(channel, status).Inc()
}

func recordConnections(n int) {
	liveConnections.Set(float64(n))
}
