package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "loreweave"

	analysisJobsTotal     = "analysis_jobs_total"
	detectionsTotal       = "detections_total"
	resolutionsTotal      = "resolutions_total"
	enrichmentRunsTotal   = "enrichment_runs_total"
	enrichmentActiveRuns  = "enrichment_active_runs"
	requestsCollectorName = "http_requests_total"
	latencyCollectorName  = "http_request_duration_milliseconds"

	// Labels
	statusLabel     = "status"
	typeLabel       = "type"
	resolutionLabel = "resolution"
	outcomeLabel    = "outcome"
)

var analysisJobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      analysisJobsTotal,
		Help:      "number of analysis runs partitioned by final status",
	},
	[]string{statusLabel},
)

var detectionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      detectionsTotal,
		Help:      "number of detections produced by the scanner partitioned by type",
	},
	[]string{typeLabel},
)

var resolutionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      resolutionsTotal,
		Help:      "number of review item resolutions partitioned by resolution (reverted counts reverts)",
	},
	[]string{resolutionLabel},
)

var enrichmentRunsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      enrichmentRunsTotal,
		Help:      "number of finished enrichment runs partitioned by outcome",
	},
	[]string{outcomeLabel},
)

var enrichmentActiveRunsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      enrichmentActiveRuns,
		Help:      "number of enrichment runs currently in flight",
	},
)

// IncreaseAnalysisJobsMetric counts a finished analysis run.
func IncreaseAnalysisJobsMetric(status string) {
	analysisJobsTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

// AddDetectionsMetric counts detections of one type.
func AddDetectionsMetric(detectionType string, count int) {
	if count <= 0 {
		return
	}
	detectionsTotalMetric.With(prometheus.Labels{typeLabel: detectionType}).Add(float64(count))
}

// AddResolutionsMetric counts resolved (or reverted) items.
func AddResolutionsMetric(resolution string, count int) {
	if count <= 0 {
		return
	}
	resolutionsTotalMetric.With(prometheus.Labels{resolutionLabel: resolution}).Add(float64(count))
}

// EnrichmentRunStarted increments the in-flight gauge.
func EnrichmentRunStarted() {
	enrichmentActiveRunsMetric.Inc()
}

// EnrichmentRunFinished decrements the in-flight gauge and counts the outcome.
func EnrichmentRunFinished(outcome string) {
	enrichmentActiveRunsMetric.Dec()
	enrichmentRunsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(analysisJobsTotalMetric)
	prometheus.MustRegister(detectionsTotalMetric)
	prometheus.MustRegister(resolutionsTotalMetric)
	prometheus.MustRegister(enrichmentRunsTotalMetric)
	prometheus.MustRegister(enrichmentActiveRunsMetric)
	prometheus.MustRegister(httpRequestsMetric)
	prometheus.MustRegister(httpLatencyMetric)
}
