package api

import (
	"encoding/json"
	"testing"
	"time"

	"loreweave/internal/detector"
	"loreweave/internal/jobs"
)

func TestFromJobFormatsFields(t *testing.T) {
	phase := jobs.PhaseEnrichment
	created := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.FixedZone("x", 3600))
	dto := FromJob(&jobs.Job{
		ID:              3,
		Status:          jobs.StatusRunning,
		Phases:          []jobs.Phase{jobs.PhaseIdentification, jobs.PhaseEnrichment},
		CurrentPhase:    &phase,
		EnrichmentTotal: 4,
		EnrichmentRunID: "run",
		CreatedAt:       created,
	})
	if dto.Status != "running" || dto.CurrentPhase != "enrichment" {
		t.Fatalf("unexpected status fields %+v", dto)
	}
	if len(dto.Phases) != 2 || dto.Phases[1] != "enrichment" {
		t.Fatalf("unexpected phases %v", dto.Phases)
	}
	if dto.CreatedAt != "2026-03-04T04:06:07.008Z" {
		t.Fatalf("unexpected timestamp %q", dto.CreatedAt)
	}
	if dto.UpdatedAt != "" {
		t.Fatalf("expected zero time omitted, got %q", dto.UpdatedAt)
	}
	if dto.Enrichment.Total != 4 || dto.Enrichment.RunID != "run" {
		t.Fatalf("unexpected enrichment progress %+v", dto.Enrichment)
	}
}

func TestFromItemKeepsNullableFields(t *testing.T) {
	dto := FromItem(&jobs.Item{
		ID:               9,
		DetectionType:    detector.TypeLogEntry,
		Resolution:       jobs.ResolutionPending,
		Phase:            jobs.PhaseEnrichment,
		SuggestedContent: json.RawMessage(`{"entityId":1,"entry":"x"}`),
	})
	raw, err := json.Marshal(dto)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"entityId", "positionStart", "positionEnd", "resolvedEntityId"} {
		value, ok := decoded[key]
		if !ok || value != nil {
			t.Fatalf("expected %s to be null, got %v (present=%v)", key, value, ok)
		}
	}
	content, ok := decoded["suggestedContent"].(map[string]any)
	if !ok || content["entry"] != "x" {
		t.Fatalf("expected suggested content passed through, got %v", decoded["suggestedContent"])
	}
}

func TestFromJobsNeverNil(t *testing.T) {
	if FromJobs(nil) == nil || FromItems(nil) == nil {
		t.Fatal("expected empty slices")
	}
}
