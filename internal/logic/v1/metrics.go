package v1

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts optimistic mutations by kind and outcome.
type Metrics struct {
	Mutations *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Mutations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "codeyard_client_mutations_total",
			Help: "Optimistic mutations by kind (review, publish, delete) and result (committed, rolled_back).",
		}, []string{"kind", "result"}),
	}
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}
