package chain

import (
	"time"

	"github.com/compose-network/prover-rewards/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds rollup RPC metrics
type Metrics struct {
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
}

// NewMetrics creates chain reader metrics
func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("chain")

	return &Metrics{
		CallsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "calls_total",
			Help: "Total number of rollup contract calls by method and result",
		}, []string{"method", "result"}),

		CallDuration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "call_duration_seconds",
			Help:    "Duration of rollup contract calls",
			Buckets: metrics.DurationBuckets,
		}, []string{"method"}),
	}
}

// RecordCall records one contract call
func (m *Metrics) RecordCall(method string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CallsTotal.WithLabelValues(method, result).Inc()
	m.CallDuration.WithLabelValues(method).Observe(duration.Seconds())
}
