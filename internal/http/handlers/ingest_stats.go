package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/chatline/chatline/pkg/logging"
)

const (
	eventsFamilyName  = "chatline_ingest_events_total"
	latencyFamilyName = "chatline_ingest_event_latency_seconds"
)

// IngestStatsHandler summarizes the pipeline's Prometheus series into a
// frontend-friendly snapshot: event counts per kind/outcome and latency
// quantiles aggregated across kinds.
type IngestStatsHandler struct {
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

// NewIngestStatsHandler creates a stats handler. A nil gatherer falls back
// to the default registry.
func NewIngestStatsHandler(gatherer prometheus.Gatherer, logger *logging.Logger) *IngestStatsHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &IngestStatsHandler{gatherer: gatherer, logger: logger}
}

// IngestStatsResponse is the aggregated snapshot.
type IngestStatsResponse struct {
	Events     []EventCount `json:"events"`
	LatencyP50 float64      `json:"latency_p50_seconds"`
	LatencyP95 float64      `json:"latency_p95_seconds"`
	Samples    uint64       `json:"latency_samples"`
}

// EventCount is one counter series of the events family.
type EventCount struct {
	Kind    string  `json:"kind"`
	Outcome string  `json:"outcome"`
	Count   float64 `json:"count"`
}

// GetStats returns the current snapshot.
// GET /stats
func (h *IngestStatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	mfs, err := h.gatherer.Gather()
	if err != nil {
		h.logger.Error("failed to gather metric families", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	resp := IngestStatsResponse{Events: []EventCount{}}
	for _, mf := range mfs {
		switch mf.GetName() {
		case eventsFamilyName:
			resp.Events = eventCounts(mf)
		case latencyFamilyName:
			resp.LatencyP50, resp.LatencyP95, resp.Samples = latencyQuantiles(mf)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode stats response", "error", err)
	}
}

func eventCounts(mf *dto.MetricFamily) []EventCount {
	out := make([]EventCount, 0, len(mf.Metric))
	for _, metric := range mf.Metric {
		if metric == nil || metric.GetCounter() == nil {
			continue
		}
		ec := EventCount{Count: metric.GetCounter().GetValue()}
		for _, lp := range metric.Label {
			switch lp.GetName() {
			case "kind":
				ec.Kind = lp.GetValue()
			case "outcome":
				ec.Outcome = lp.GetValue()
			}
		}
		out = append(out, ec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Outcome < out[j].Outcome
	})
	return out
}

// latencyQuantiles merges the per-kind histograms into one distribution and
// reads p50/p95 off the cumulative buckets.
func latencyQuantiles(mf *dto.MetricFamily) (p50, p95 float64, samples uint64) {
	cumulativeByUpper := map[float64]uint64{}
	for _, metric := range mf.Metric {
		if metric == nil {
			continue
		}
		hist := metric.GetHistogram()
		if hist == nil {
			continue
		}
		samples += hist.GetSampleCount()
		for _, b := range hist.Bucket {
			if b == nil {
				continue
			}
			cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if samples == 0 || len(cumulativeByUpper) == 0 {
		return 0, 0, 0
	}

	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	return histogramQuantile(0.50, samples, uppers, cumulativeByUpper),
		histogramQuantile(0.95, samples, uppers, cumulativeByUpper),
		samples
}

func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}

	target := q * float64(total)
	var prevUpper, prevCum float64

	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}

		bucketCount := cum - prevCum
		if bucketCount <= 0 || upper == prevUpper {
			return upper
		}
		if math.IsInf(upper, 1) {
			// Everything above the largest finite bound collapses to it.
			return prevUpper
		}

		fraction := (target - prevCum) / bucketCount
		return prevUpper + (upper-prevUpper)*fraction
	}
	return prevUpper
}
