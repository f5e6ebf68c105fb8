package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *ConversationMetrics

	assert.NotPanics(t, func() {
		m.ObserveTurn("inbound", "GREETING")
		m.ObserveOutcome("inbound", "emergency_redirect")
		m.ObserveSafety("emergency")
		m.ObserveFallback("greeting_open")
		m.ObserveCollaborator("generate", 0.05, true)
		m.ObserveTokens("generate", 10, 5)
	})
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveTurn("inbound", "GREETING")
	m.ObserveTurn("inbound", "GREETING")
	m.ObserveOutcome("outbound", "urgent_callback")
	m.ObserveSafety("emergency")
	m.ObserveFallback("greeting_open")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.turnsTotal.WithLabelValues("inbound", "GREETING")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.outcomesTotal.WithLabelValues("outbound", "urgent_callback")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.safetyTotal.WithLabelValues("emergency")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.fallbacksTotal.WithLabelValues("greeting_open")))
}

func TestCollaboratorTokensByDirection(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveTokens("generate", 10, 5)
	m.ObserveTokens("generate", 2, 1)
	// Zero counts are not recorded as series.
	m.ObserveTokens("classify", 0, 0)

	assert.Equal(t, float64(12), testutil.ToFloat64(m.collaboratorTokens.WithLabelValues("generate", "input")))
	assert.Equal(t, float64(6), testutil.ToFloat64(m.collaboratorTokens.WithLabelValues("generate", "output")))
}

func TestCollaboratorLatencyStatusLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveCollaborator("generate", 0.1, true)
	m.ObserveCollaborator("generate", 0.2, false)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "clinicvoice_conversation_collaborator_latency_seconds" {
			found = true
			assert.Len(t, f.GetMetric(), 2)
		}
	}
	assert.True(t, found, "latency histogram should be registered")
}
