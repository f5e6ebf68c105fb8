package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the call engines.
type ConversationMetrics struct {
	turnsTotal          *prometheus.CounterVec
	outcomesTotal       *prometheus.CounterVec
	safetyTotal         *prometheus.CounterVec
	fallbacksTotal      *prometheus.CounterVec
	collaboratorLatency *prometheus.HistogramVec
	collaboratorTokens  *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total conversation turns processed",
		}, []string{"engine", "state"}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "conversation",
			Name:      "outcomes_total",
			Help:      "Total terminal conversation outcomes",
		}, []string{"engine", "outcome"}),
		safetyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "conversation",
			Name:      "safety_detections_total",
			Help:      "Emergency and transfer-request detections",
		}, []string{"kind"}),
		fallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "conversation",
			Name:      "scripted_fallbacks_total",
			Help:      "Utterances substituted by the scripted fallback",
		}, []string{"step"}),
		collaboratorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicvoice",
			Subsystem: "conversation",
			Name:      "collaborator_latency_seconds",
			Help:      "Latency of text collaborator calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		collaboratorTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "conversation",
			Name:      "collaborator_tokens_total",
			Help:      "Tokens consumed by text collaborator calls",
		}, []string{"op", "direction"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.outcomesTotal, m.safetyTotal, m.fallbacksTotal, m.collaboratorLatency, m.collaboratorTokens)
	return m
}

func (m *ConversationMetrics) ObserveTurn(engine, state string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(engine, state).Inc()
}

func (m *ConversationMetrics) ObserveOutcome(engine, outcome string) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(engine, outcome).Inc()
}

func (m *ConversationMetrics) ObserveSafety(kind string) {
	if m == nil {
		return
	}
	m.safetyTotal.WithLabelValues(kind).Inc()
}

func (m *ConversationMetrics) ObserveFallback(step string) {
	if m == nil {
		return
	}
	m.fallbacksTotal.WithLabelValues(step).Inc()
}

func (m *ConversationMetrics) ObserveCollaborator(op string, seconds float64, success bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	m.collaboratorLatency.WithLabelValues(op, status).Observe(seconds)
}

// ObserveTokens records the token usage a collaborator call reported.
func (m *ConversationMetrics) ObserveTokens(op string, inputTokens, outputTokens int32) {
	if m == nil {
		return
	}
	if inputTokens > 0 {
		m.collaboratorTokens.WithLabelValues(op, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.collaboratorTokens.WithLabelValues(op, "output").Add(float64(outputTokens))
	}
}
