package sender

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "messagegarden"

var (
	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "sends_total",
			Help:      "Total provider send attempts",
		},
		[]string{"channel", "status"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "send_duration_seconds",
			Help:      "Provider send call duration",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)
)

// RecordSend records one provider attempt outcome.
func RecordSend(channel, status string) {
	sendsTotal.WithLabelValues(channel, status).Inc()
}

// RecordSendDuration records how long a provider call took.
func RecordSendDuration(channel string, d time.Duration) {
	sendDuration.WithLabelValues(channel).Observe(d.Seconds())
}
