package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics contains platform-level metrics shared by every component
type CoreMetrics struct {
	ServiceStatus *prometheus.GaugeVec
	ErrorsTotal   *prometheus.CounterVec
	HealthStatus  *prometheus.GaugeVec

	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewCoreMetrics creates the core platform metrics
func NewCoreMetrics() *CoreMetrics {
	return &CoreMetrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "freshsaver",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "freshsaver",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "freshsaver",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "freshsaver",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "freshsaver",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordServiceStatus updates the service status metric
func (c *CoreMetrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordError increments the error counter
func (c *CoreMetrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates the health check status
func (c *CoreMetrics) RecordHealthStatus(service string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthStatus.WithLabelValues(service).Set(value)
}

// RecordNATSStatus updates the NATS connection status
func (c *CoreMetrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments the reconnection counter
func (c *CoreMetrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
