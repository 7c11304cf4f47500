package workflow

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics holds the Prometheus collectors of the sync pipeline. A nil
// *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	runs          *prometheus.CounterVec
	records       *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge
}

func NewSyncMetrics(registry prometheus.Registerer) (*SyncMetrics, error) {
	m := &SyncMetrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_sync_runs_total",
				Help: "Completed sync runs partitioned by final status.",
			},
			[]string{"status"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_sync_records_total",
				Help: "Reconciled records partitioned by entity and outcome.",
			},
			[]string{"entity", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashboard_sync_stage_duration_seconds",
				Help:    "Duration of each sync stage.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"stage"},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dashboard_sync_last_success_timestamp_seconds",
				Help: "Unix time of the last successful sync run.",
			},
		),
	}
	for _, c := range []prometheus.Collector{m.runs, m.records, m.stageDuration, m.lastSuccess} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register sync metrics: %w", err)
		}
	}
	return m, nil
}

func (m *SyncMetrics) observeRun(status string, finishedAt time.Time, success bool) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	if success {
		m.lastSuccess.Set(float64(finishedAt.Unix()))
	}
}

func (m *SyncMetrics) observeRecords(entity string, result ReconcileResult) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(entity, "created").Add(float64(result.Created))
	m.records.WithLabelValues(entity, "updated").Add(float64(result.Updated))
	m.records.WithLabelValues(entity, "skipped").Add(float64(result.Skipped))
	m.records.WithLabelValues(entity, "error").Add(float64(result.Errors))
}

func (m *SyncMetrics) observeStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}
