package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's prometheus collectors. Constructed once in
// main with the default registerer, or with a private registry in tests.
type Metrics struct {
	RunsStarted   *prometheus.CounterVec
	RunsCompleted *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_runs_started_total",
			Help: "Payment runs accepted, by workflow variant.",
		}, []string{"variant"}),
		RunsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_runs_completed_total",
			Help: "Payment runs finished, by variant and outcome.",
		}, []string{"variant", "outcome"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_run_duration_seconds",
			Help:    "Wall-clock duration of a payment run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"variant"}),
	}
}
