package reminder

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "messagegarden"

var (
	remindersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "reminders_processed_total",
			Help:      "Due reminder outcomes per processing run",
		},
		[]string{"outcome"}, // fired, skipped, failed
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "run_duration_seconds",
			Help:      "Reminder processing run duration",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func recordOutcome(outcome string) {
	remindersProcessed.WithLabelValues(outcome).Inc()
}

func recordRunDuration(d time.Duration) {
	runDuration.Observe(d.Seconds())
}
