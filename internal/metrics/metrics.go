package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Agent run metrics. The agent is not a daemon, so instead of serving
// /metrics it writes a snapshot for the node-exporter textfile collector
// at the end of every run.

// Stage labels.
const (
	StageDetect = "detect"
	StageFix    = "fix"
	StageVerify = "verify"
)

// Metrics holds the collectors for one run. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	Resolutions      *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	GateFailures     *prometheus.CounterVec
	QuotaUsed        prometheus.Gauge
	QuotaMax         prometheus.Gauge
	ModulesSkipped   *prometheus.CounterVec
	LastRunTimestamp prometheus.Gauge
	LastRunDuration  prometheus.Gauge
}

// New registers the agent collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kubilitics_agent_module_resolutions_total",
				Help: "Module runs by resolution status",
			},
			[]string{"module", "status"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kubilitics_agent_stage_duration_seconds",
				Help:    "Duration of Detect, Fix and Verify calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"module", "stage"},
		),

		GateFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kubilitics_agent_safety_gate_failures_total",
				Help: "Safety gate checks that blocked remediation",
			},
			[]string{"check"},
		),

		QuotaUsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kubilitics_agent_quota_used",
			Help: "Remediations consumed today",
		}),

		QuotaMax: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kubilitics_agent_quota_max",
			Help: "Daily remediation ceiling",
		}),

		ModulesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kubilitics_agent_modules_skipped_total",
				Help: "Requested modules that were not run",
			},
			[]string{"reason"}, // unknown/not_allowed
		),

		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kubilitics_agent_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),

		LastRunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kubilitics_agent_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
	}
}

// Registry returns the registry holding the agent collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveResolution counts a module's terminal status.
func (m *Metrics) ObserveResolution(module, status string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(module, status).Inc()
}

// ObserveStage records a stage duration.
func (m *Metrics) ObserveStage(module, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(module, stage).Observe(d.Seconds())
}

// ObserveGateFailure counts a failed gate check.
func (m *Metrics) ObserveGateFailure(check string) {
	if m == nil {
		return
	}
	m.GateFailures.WithLabelValues(check).Inc()
}

// ObserveSkip counts a module that was requested but not run.
func (m *Metrics) ObserveSkip(reason string) {
	if m == nil {
		return
	}
	m.ModulesSkipped.WithLabelValues(reason).Inc()
}

// SetQuota records today's quota usage.
func (m *Metrics) SetQuota(used, max int) {
	if m == nil {
		return
	}
	m.QuotaUsed.Set(float64(used))
	m.QuotaMax.Set(float64(max))
}

// RunFinished stamps the end of a run.
func (m *Metrics) RunFinished(end time.Time, d time.Duration) {
	if m == nil {
		return
	}
	m.LastRunTimestamp.Set(float64(end.Unix()))
	m.LastRunDuration.Set(d.Seconds())
}

// WriteTextfile writes the snapshot atomically. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
