package client

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the client's Prometheus collectors.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Refreshes       *prometheus.CounterVec
	Parked          prometheus.Counter
	Retries         prometheus.Counter
}

// NewMetrics registers the client collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codeyard_client_requests_total",
			Help: "API requests sent by the client, by method and response status.",
		}, []string{"method", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeyard_client_request_duration_seconds",
			Help:    "Round-trip latency of API requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		Refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codeyard_client_token_refreshes_total",
			Help: "Token refresh attempts by result (success, failure, no_session).",
		}, []string{"result"}),
		Parked: f.NewCounter(prometheus.CounterOpts{
			Name: "codeyard_client_parked_requests_total",
			Help: "Requests parked behind an in-flight token refresh.",
		}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "codeyard_client_retries_total",
			Help: "Requests replayed after a token refresh.",
		}),
	}
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics returns collectors registered with the default registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}
