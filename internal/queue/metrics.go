package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "messagegarden"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "size",
			Help:      "Number of queued messages by status",
		},
		[]string{"status"},
	)

	messagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "messages_processed_total",
			Help:      "Messages attempted by the processor",
		},
		[]string{"priority", "status"},
	)

	staleIndexEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "stale_index_entries_total",
			Help:      "Index entries dropped because the durable record was terminal or missing",
		},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "cycle_duration_seconds",
			Help:      "Processing cycle duration",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

// recordProcessed records one processor attempt outcome.
func recordProcessed(priority, status string) {
	messagesProcessed.WithLabelValues(priority, status).Inc()
}

// recordStaleEntry records a self-healed index entry.
func recordStaleEntry() {
	staleIndexEntries.Inc()
}

// recordCycleDuration records how long a full cycle took.
func recordCycleDuration(d time.Duration) {
	cycleDuration.Observe(d.Seconds())
}

// RecordQueueStats updates queue size gauges.
func RecordQueueStats(stats *Stats) {
	queueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	queueSize.WithLabelValues("processing").Set(float64(stats.Processing))
	queueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	queueSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
