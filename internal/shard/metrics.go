package shard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for shardq_materializations_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics instruments the fan-out coordinator.
type Metrics struct {
	// materializations counts sub-criteria materializations by shard and outcome
	materializations *prometheus.CounterVec

	// replayedEvents counts events applied per shard, root events included
	replayedEvents *prometheus.CounterVec

	// buildDuration tracks a whole Build across all shards
	buildDuration prometheus.Histogram
}

// NewMetrics creates the coordinator metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		materializations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_materializations_total",
			Help: "Total sub-criteria materializations by shard and outcome",
		}, []string{"shard", "outcome"}),
		replayedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_replayed_events_total",
			Help: "Total mutation events replayed by shard",
		}, []string{"shard"}),
		buildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "shardq_build_duration_seconds",
			Help:    "Duration of a fan-out build across all shards",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}),
	}
}

func (m *Metrics) materialized(shard string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.materializations.WithLabelValues(shard, outcome).Inc()
}

func (m *Metrics) replayed(shard string, n int) {
	if n > 0 {
		m.replayedEvents.WithLabelValues(shard).Add(float64(n))
	}
}
