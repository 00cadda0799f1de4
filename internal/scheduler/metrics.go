package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records task runs.
type Metrics struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// NewMetrics creates the scheduler metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vault_backend",
				Subsystem: "task",
				Name:      "runs_total",
				Help:      "Total number of scheduled task runs",
			},
			[]string{"task", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "vault_backend",
				Subsystem: "task",
				Name:      "duration_seconds",
				Help:      "Duration of scheduled task runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"task"},
		),
	}
}

// RecordRun records one task run.
func (m *Metrics) RecordRun(task, status string, duration time.Duration) {
	m.runsTotal.WithLabelValues(task, status).Inc()
	m.runDuration.WithLabelValues(task).Observe(duration.Seconds())
}
