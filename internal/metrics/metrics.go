package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	pendingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bloomsync",
			Name:      "pending_mutations",
			Help:      "Mutations currently queued for delivery.",
		},
	)

	deadLetterGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bloomsync",
			Name:      "dead_letter_mutations",
			Help:      "Mutations excluded from automatic retry.",
		},
	)

	enqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bloomsync",
			Name:      "mutations_enqueued_total",
			Help:      "Mutations accepted into the queue, by kind.",
		},
		[]string{"kind"},
	)

	drainItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bloomsync",
			Name:      "drain_items_total",
			Help:      "Per-item drain outcomes.",
		},
		[]string{"outcome"},
	)

	drainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bloomsync",
			Name:      "drain_duration_seconds",
			Help:      "Duration of a full drain pass.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bloomsync",
			Name:      "http_requests_total",
			Help:      "Admin API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(pendingGauge, deadLetterGauge, enqueued, drainItems, drainDuration, httpRequests)
	})
}

// SetPending updates the pending-mutations gauge.
func SetPending(n int) {
	pendingGauge.Set(float64(n))
}

// SetDeadLetter updates the dead-letter gauge.
func SetDeadLetter(n int) {
	deadLetterGauge.Set(float64(n))
}

// IncEnqueued increments the enqueue counter for a mutation kind.
func IncEnqueued(kind string) {
	enqueued.WithLabelValues(kind).Inc()
}

// IncDrainItem records a per-item outcome: applied, failed or dead_lettered.
func IncDrainItem(outcome string) {
	drainItems.WithLabelValues(outcome).Inc()
}

// ObserveDrain records the duration of a drain pass.
func ObserveDrain(d time.Duration) {
	drainDuration.Observe(d.Seconds())
}

// IncHTTP increments the counter for an admin endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
