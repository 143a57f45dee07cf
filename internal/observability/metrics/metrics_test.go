package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestIngestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestMetrics(reg)
	m.ObserveEvent("chat", "persisted")
	m.ObserveMediaDownload("image", "ok")
	m.ObserveGreeting()
	m.ObserveCampaignJob("dispatched")
	m.ObserveEventLatency("chat", 0.02)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 5 {
		t.Fatalf("metric families = %d, want 5", len(families))
	}
}

func TestIngestMetricsNilSafe(t *testing.T) {
	var m *IngestMetrics
	m.ObserveEvent("chat", "persisted")
	m.ObserveMediaDownload("image", "failed")
	m.ObserveGreeting()
	m.ObserveCampaignJob("retried")
	m.ObserveEventLatency("chat", 0.1)
}
