package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "freshsaver",
		Subsystem: "test",
		Name:      "ops_total",
		Help:      "test counter",
	})

	require.NoError(t, r.Register("engine", "ops", counter))

	// Same key twice fails
	err := r.Register("engine", "ops", counter)
	assert.Error(t, err)

	assert.True(t, r.Unregister("engine", "ops"))
	assert.False(t, r.Unregister("engine", "ops"), "second unregister is a no-op")

	// After unregister the key is free again
	require.NoError(t, r.Register("engine", "ops", counter))
}

func TestRegistryRejectsPrometheusConflict(t *testing.T) {
	r := NewRegistry()

	newCounter := func() prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freshsaver",
			Subsystem: "test",
			Name:      "dup_total",
			Help:      "test counter",
		})
	}

	require.NoError(t, r.Register("a", "dup", newCounter()))
	// Different key, identical metric descriptor
	err := r.Register("b", "dup", newCounter())
	assert.Error(t, err)
}

func TestCoreMetricsGatherable(t *testing.T) {
	r := NewRegistry()
	r.Core.RecordServiceStatus("engine", 2)
	r.Core.RecordError("engine", "transient")
	r.Core.RecordHealthStatus("engine", true)
	r.Core.RecordNATSStatus(true)
	r.Core.RecordNATSReconnect()

	families, err := r.Prometheus().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["freshsaver_service_status"])
	assert.True(t, names["freshsaver_errors_total"])
	assert.True(t, names["freshsaver_nats_connected"])
}
