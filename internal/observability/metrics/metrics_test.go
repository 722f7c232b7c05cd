package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestDialogMetricsObserve(t *testing.T) {
	m := NewDialogMetrics(nil)
	m.ObserveTurn("book", "prompt")
	m.ObserveCommit()
	m.ObserveConflict()
	m.ObserveEscalation()
	m.ObserveLLMLatency("classify", 0.5)
}

func TestDialogMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDialogMetrics(reg)
	m.ObserveTurn("cancel", "done")
	m.ObserveCommit()
	m.ObserveCommit()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var commits *dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetName() == "hospital_dialog_booking_commits_total" {
			commits = mf
		}
	}
	if commits == nil {
		t.Fatal("booking commits counter not registered")
	}
	if got := commits.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("commits counter = %v, want 2", got)
	}
}

func TestDialogMetricsNilSafe(t *testing.T) {
	var m *DialogMetrics
	m.ObserveTurn("book", "prompt")
	m.ObserveCommit()
	m.ObserveConflict()
	m.ObserveEscalation()
	m.ObserveLLMLatency("extract", 0.1)
}
