package metrics

import "github.com/prometheus/client_golang/prometheus"

// DialogMetrics exposes counters/histograms for conversation flows.
type DialogMetrics struct {
	turnsTotal       *prometheus.CounterVec
	commitsTotal     prometheus.Counter
	conflictsTotal   prometheus.Counter
	escalationsTotal prometheus.Counter
	llmLatency       *prometheus.HistogramVec
}

func NewDialogMetrics(reg prometheus.Registerer) *DialogMetrics {
	m := &DialogMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "dialog",
			Name:      "turns_total",
			Help:      "Total conversation turns handled",
		}, []string{"intent", "outcome"}),
		commitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "dialog",
			Name:      "booking_commits_total",
			Help:      "Total appointments committed",
		}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "dialog",
			Name:      "slot_conflicts_total",
			Help:      "Total booking attempts that lost to an existing appointment",
		}),
		escalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "dialog",
			Name:      "emergency_escalations_total",
			Help:      "Total triage turns escalated to an operator",
		}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hospital",
			Subsystem: "dialog",
			Name:      "llm_latency_seconds",
			Help:      "Latency of language model calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.commitsTotal, m.conflictsTotal, m.escalationsTotal, m.llmLatency)
	return m
}

func (m *DialogMetrics) ObserveTurn(intent, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(intent, outcome).Inc()
}

func (m *DialogMetrics) ObserveCommit() {
	if m == nil {
		return
	}
	m.commitsTotal.Inc()
}

func (m *DialogMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *DialogMetrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.escalationsTotal.Inc()
}

func (m *DialogMetrics) ObserveLLMLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(operation).Observe(seconds)
}
