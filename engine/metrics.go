package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/metric"
)

// Execution outcomes recorded on the executions counter
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeNoMatch   = "no_match"
)

// engineMetrics holds Prometheus metrics for flow executions. All recorder
// methods are nil-safe so the engine runs unchanged with metrics disabled.
type engineMetrics struct {
	executions    *prometheus.CounterVec   // by flow_id and outcome
	notifications *prometheus.CounterVec   // by channel and status (sent/deduped/failed)
	nodeDuration  *prometheus.HistogramVec // by node_type
	batchDuration prometheus.Histogram
}

func newEngineMetrics(registry *metric.Registry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &engineMetrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freshsaver",
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Total number of flow executions by outcome",
		}, []string{"flow_id", "outcome"}),

		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freshsaver",
			Subsystem: "engine",
			Name:      "notifications_total",
			Help:      "Total number of notification attempts by channel and status",
		}, []string{"channel", "status"}),

		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "freshsaver",
			Subsystem: "engine",
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 15.0},
		}, []string{"node_type"}),

		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "freshsaver",
			Subsystem: "engine",
			Name:      "batch_duration_seconds",
			Help:      "Batch run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0},
		}),
	}

	if err := registry.Register("engine", "executions", m.executions); err != nil {
		return nil, err
	}
	if err := registry.Register("engine", "notifications", m.notifications); err != nil {
		return nil, err
	}
	if err := registry.Register("engine", "node_duration", m.nodeDuration); err != nil {
		return nil, err
	}
	if err := registry.Register("engine", "batch_duration", m.batchDuration); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *engineMetrics) recordNotification(channel, status string) {
	if m == nil {
		return
	}
	if channel == "" {
		channel = "unknown"
	}
	m.notifications.WithLabelValues(channel, status).Inc()
}

func (m *engineMetrics) recordNodeExecution(nodeType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.nodeDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

func (e *Engine) recordExecution(flowID, outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.executions.WithLabelValues(flowID, outcome).Inc()
}

func (e *Engine) recordBatch(duration time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.batchDuration.Observe(duration.Seconds())
}
