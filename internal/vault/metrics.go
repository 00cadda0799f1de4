package vault

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "vault_backend"

// Metrics records Vault client activity.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokenTTL        prometheus.Gauge
	secretsListed   prometheus.Histogram
}

// NewMetrics creates the client metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "vault",
				Name:      "requests_total",
				Help:      "Total number of Vault requests",
			},
			[]string{"operation", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "vault",
				Name:      "request_duration_seconds",
				Help:      "Duration of Vault requests in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		tokenTTL: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "token_ttl_seconds",
				Help:      "TTL of the Vault token as of the last login or renewal",
			},
		),
		secretsListed: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "vault",
				Name:      "secrets_listed",
				Help:      "Number of secrets returned per listing request",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
			},
		),
	}
}

// RecordRequest records a Vault request.
func (m *Metrics) RecordRequest(operation, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(operation, status).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetTokenTTL sets the token TTL gauge.
func (m *Metrics) SetTokenTTL(seconds float64) {
	m.tokenTTL.Set(seconds)
}

// ObserveListed records the size of a listing result.
func (m *Metrics) ObserveListed(n int) {
	m.secretsListed.Observe(float64(n))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
