package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestMetrics exposes counters/histograms for the event pipeline.
type IngestMetrics struct {
	eventsTotal    *prometheus.CounterVec
	mediaDownloads *prometheus.CounterVec
	greetingsTotal prometheus.Counter
	campaignJobs   *prometheus.CounterVec
	eventLatency   *prometheus.HistogramVec
}

func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatline",
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total inbound protocol events by kind and outcome",
		}, []string{"kind", "outcome"}),
		mediaDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatline",
			Subsystem: "ingest",
			Name:      "media_downloads_total",
			Help:      "Total media download attempts",
		}, []string{"kind", "status"}),
		greetingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatline",
			Subsystem: "ingest",
			Name:      "greetings_sent_total",
			Help:      "Total automatic greetings sent",
		}),
		campaignJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatline",
			Subsystem: "campaign",
			Name:      "dispatch_jobs_total",
			Help:      "Total campaign re-dispatch jobs by outcome",
		}, []string{"outcome"}),
		eventLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatline",
			Subsystem: "ingest",
			Name:      "event_latency_seconds",
			Help:      "Latency of pipeline event processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.mediaDownloads, m.greetingsTotal, m.campaignJobs, m.eventLatency)
	return m
}

func (m *IngestMetrics) ObserveEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *IngestMetrics) ObserveMediaDownload(kind, status string) {
	if m == nil {
		return
	}
	m.mediaDownloads.WithLabelValues(kind, status).Inc()
}

func (m *IngestMetrics) ObserveGreeting() {
	if m == nil {
		return
	}
	m.greetingsTotal.Inc()
}

func (m *IngestMetrics) ObserveCampaignJob(outcome string) {
	if m == nil {
		return
	}
	m.campaignJobs.WithLabelValues(outcome).Inc()
}

func (m *IngestMetrics) ObserveEventLatency(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.eventLatency.WithLabelValues(kind).Observe(seconds)
}
