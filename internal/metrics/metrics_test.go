package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveClassification("network_analysis", "-", 3*time.Millisecond)
	m.ObserveClassification("network_analysis", "-", time.Millisecond)
	m.IncrementExtractionErrors("file_analysis")
	m.IncrementEscalations(EscalationDropped)
	m.IncrementMonitorTicks(TickSkipped)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClassificationsTotal.WithLabelValues("network_analysis", "-")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionErrorsTotal.WithLabelValues("file_analysis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EscalationsTotal.WithLabelValues(EscalationDropped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MonitorTicksTotal.WithLabelValues(TickSkipped)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["triage_classification_seconds"])
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveClassification("x", "=", time.Second)
	m.IncrementExtractionErrors("x")
	m.IncrementEscalations(EscalationFailed)
	m.IncrementMonitorTicks(TickClassified)
}
