package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for fetch observations.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swxmon",
			Name:      "fetches_total",
			Help:      "Total upstream fetch attempts, partitioned by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	fetchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "swxmon",
			Name:      "fetch_seconds",
			Help:      "Upstream fetch latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swxmon",
			Name:      "alerts_total",
			Help:      "Threshold alerts triggered, partitioned by severity and category.",
		},
		[]string{"severity", "category"},
	)

	endpointHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "swxmon",
			Name:      "endpoint_health",
			Help:      "Endpoint health classification: 0 healthy, 1 degraded, 2 unhealthy.",
		},
		[]string{"endpoint"},
	)
)

// Register attaches swxmon collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		fetchesTotal,
		fetchSeconds,
		alertsTotal,
		endpointHealth,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(endpoint string, duration time.Duration, success bool) {
	outcome := OutcomeError
	if success {
		outcome = OutcomeSuccess
	}
	fetchesTotal.WithLabelValues(endpoint, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	fetchSeconds.Observe(duration.Seconds())
}

// ObserveAlert records one triggered threshold alert.
func ObserveAlert(severity, category string) {
	alertsTotal.WithLabelValues(severity, category).Inc()
}

// SetEndpointHealth publishes an endpoint classification.
func SetEndpointHealth(endpoint string, level float64) {
	endpointHealth.WithLabelValues(endpoint).Set(level)
}
