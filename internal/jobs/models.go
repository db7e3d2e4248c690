package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"loreweave/internal/detector"
)

// Status represents the lifecycle of an analysis job.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusCreated,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// ParseStatus validates a raw status string.
func ParseStatus(value string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == candidate {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown job status %q", value)
}

// Phase is a processing pass within a job.
type Phase string

const (
	PhaseIdentification Phase = "identification"
	PhaseEnrichment     Phase = "enrichment"
)

// ParsePhase validates a raw phase string.
func ParsePhase(value string) (Phase, error) {
	switch Phase(strings.ToLower(strings.TrimSpace(value))) {
	case PhaseIdentification:
		return PhaseIdentification, nil
	case PhaseEnrichment:
		return PhaseEnrichment, nil
	default:
		return "", fmt.Errorf("unknown phase %q", value)
	}
}

// PhaseOf returns the phase that produces items of the given type.
func PhaseOf(t detector.Type) (Phase, error) {
	identification, err := t.Identification()
	if err != nil {
		return "", err
	}
	if identification {
		return PhaseIdentification, nil
	}
	return PhaseEnrichment, nil
}

// Resolution is the review state of an item.
type Resolution string

const (
	ResolutionPending   Resolution = "pending"
	ResolutionAccepted  Resolution = "accepted"
	ResolutionNewEntity Resolution = "new_entity"
	ResolutionDismissed Resolution = "dismissed"
)

// ParseResolution validates a raw resolution string.
func ParseResolution(value string) (Resolution, error) {
	switch Resolution(strings.ToLower(strings.TrimSpace(value))) {
	case ResolutionPending:
		return ResolutionPending, nil
	case ResolutionAccepted:
		return ResolutionAccepted, nil
	case ResolutionNewEntity:
		return ResolutionNewEntity, nil
	case ResolutionDismissed:
		return ResolutionDismissed, nil
	default:
		return "", fmt.Errorf("unknown resolution %q", value)
	}
}

// Failure reasons recorded by the service itself.
const (
	ReasonEnrichmentRestart  = "Enrichment interrupted by a service restart"
	ReasonEnrichmentShutdown = "Enrichment interrupted: service stopped"
	ReasonAnalysisRestart    = "Analysis interrupted by a service restart"
)

// CanTransition reports whether a job in status from, currently in phase
// (nil when idle), may move to status to.
func CanTransition(from, to Status, phase *Phase) bool {
	inEnrichment := phase != nil && *phase == PhaseEnrichment
	switch from {
	case StatusCreated:
		return to == StatusRunning
	case StatusRunning:
		switch to {
		case StatusCompleted, StatusFailed:
			return true
		case StatusCancelled:
			return inEnrichment
		default:
			return false
		}
	case StatusCompleted, StatusCancelled:
		return to == StatusRunning
	case StatusFailed:
		return to == StatusRunning && inEnrichment
	default:
		return false
	}
}

// Job tracks analysis of one content field.
type Job struct {
	ID                 int64
	CampaignID         int64
	SourceTable        string
	SourceID           int64
	SourceField        string
	Status             Status
	TotalItems         int
	ResolvedItems      int
	EnrichmentTotal    int
	EnrichmentResolved int
	Phases             []Phase
	CurrentPhase       *Phase
	FailureReason      string
	CancelRequested    bool
	EnrichmentRunID    string
	SourceContent      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EnrichmentRunning reports whether an enrichment run currently owns the job.
func (j *Job) EnrichmentRunning() bool {
	return j != nil && j.Status == StatusRunning && j.CurrentPhase != nil && *j.CurrentPhase == PhaseEnrichment
}

// HasPhase reports whether the phase has been run at least once.
func (j *Job) HasPhase(phase Phase) bool {
	if j == nil {
		return false
	}
	for _, p := range j.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// Item is a resolvable unit derived from a detection or enrichment suggestion.
type Item struct {
	ID               int64
	JobID            int64
	DetectionType    detector.Type
	MatchedText      string
	EntityID         *int64
	Similarity       *float64
	ContextSnippet   string
	PositionStart    *int
	PositionEnd      *int
	Resolution       Resolution
	ResolvedEntityID *int64
	ResolvedAt       *time.Time
	SuggestedContent json.RawMessage
	Phase            Phase
	CreatedAt        time.Time
}

// IsPending reports whether the item awaits review.
func (i *Item) IsPending() bool {
	return i != nil && i.Resolution == ResolutionPending
}

// NewItem describes an item to persist.
type NewItem struct {
	DetectionType    detector.Type
	MatchedText      string
	EntityID         *int64
	Similarity       *float64
	ContextSnippet   string
	PositionStart    *int
	PositionEnd      *int
	SuggestedContent json.RawMessage
}

// ItemFromDetection converts a scanner detection into an identification item.
func ItemFromDetection(d detector.Detection) NewItem {
	similarity := d.Similarity
	start, end := d.Start, d.End
	item := NewItem{
		DetectionType:  d.Type,
		MatchedText:    d.MatchedText,
		Similarity:     &similarity,
		ContextSnippet: d.Snippet,
		PositionStart:  &start,
		PositionEnd:    &end,
	}
	if d.EntityID != nil {
		id := *d.EntityID
		item.EntityID = &id
	}
	return item
}

// NewJob describes the source a job analyzes.
type NewJob struct {
	CampaignID  int64
	SourceTable string
	SourceID    int64
	SourceField string
	Content     string
}

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	CampaignID  int64
	SourceTable string
	SourceID    int64
	SourceField string
	Status      Status
	Limit       int
}

// ItemFilter narrows ListItems. Zero values match everything.
type ItemFilter struct {
	Resolution    Resolution
	Phase         Phase
	DetectionType detector.Type
}
