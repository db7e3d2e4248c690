package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAccumulate(t *testing.T) {
	before := testutil.ToFloat64(detectionsTotalMetric.WithLabelValues("misspelling"))
	AddDetectionsMetric("misspelling", 3)
	AddDetectionsMetric("misspelling", 0)
	if got := testutil.ToFloat64(detectionsTotalMetric.WithLabelValues("misspelling")); got != before+3 {
		t.Fatalf("expected %v, got %v", before+3, got)
	}

	active := testutil.ToFloat64(enrichmentActiveRunsMetric)
	EnrichmentRunStarted()
	if got := testutil.ToFloat64(enrichmentActiveRunsMetric); got != active+1 {
		t.Fatalf("expected gauge %v, got %v", active+1, got)
	}
	EnrichmentRunFinished("completed")
	if got := testutil.ToFloat64(enrichmentActiveRunsMetric); got != active {
		t.Fatalf("expected gauge back at %v, got %v", active, got)
	}
	if got := testutil.ToFloat64(enrichmentRunsTotalMetric.WithLabelValues("completed")); got < 1 {
		t.Fatalf("expected completed outcome counted, got %v", got)
	}
}
