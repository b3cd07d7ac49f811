package scanner

import (
	"github.com/compose-network/prover-rewards/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds scan engine metrics
type Metrics struct {
	EpochsScanned      prometheus.Counter
	RewardReadFailures prometheus.Counter
	CheckpointsWritten *prometheus.CounterVec
	SessionsFinished   *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
}

// NewMetrics creates scanner metrics
func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("scanner")

	return &Metrics{
		EpochsScanned: reg.NewCounter(prometheus.CounterOpts{
			Name: "epochs_total",
			Help: "Total number of finalized epochs scanned",
		}),
		RewardReadFailures: reg.NewCounter(prometheus.CounterOpts{
			Name: "reward_read_failures_total",
			Help: "Epoch reward reads that failed and were counted as zero",
		}),
		CheckpointsWritten: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "checkpoints_total",
			Help: "Checkpoint writes by result",
		}, []string{"result"}),
		SessionsFinished: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "sessions_finished_total",
			Help: "Scan sessions by terminal state",
		}, []string{"state"}),
		ActiveSessions: reg.NewGauge(prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Number of sessions currently scanning",
		}),
	}
}

func (m *Metrics) recordCheckpoint(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CheckpointsWritten.WithLabelValues(result).Inc()
}

func (m *Metrics) recordFinished(state State) {
	if m == nil {
		return
	}
	m.SessionsFinished.WithLabelValues(state.String()).Inc()
}
