package api

import (
	"time"

	"loreweave/internal/campaign"
	"loreweave/internal/jobs"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromJob converts a job record to its API representation.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:            job.ID,
		CampaignID:    job.CampaignID,
		SourceTable:   job.SourceTable,
		SourceID:      job.SourceID,
		SourceField:   job.SourceField,
		Status:        string(job.Status),
		TotalItems:    job.TotalItems,
		ResolvedItems: job.ResolvedItems,
		Enrichment: JobProgress{
			Total:    job.EnrichmentTotal,
			Resolved: job.EnrichmentResolved,
			RunID:    job.EnrichmentRunID,
		},
		Phases:        make([]string, 0, len(job.Phases)),
		FailureReason: job.FailureReason,
		CreatedAt:     formatTime(job.CreatedAt),
		UpdatedAt:     formatTime(job.UpdatedAt),
	}
	for _, phase := range job.Phases {
		dto.Phases = append(dto.Phases, string(phase))
	}
	if job.CurrentPhase != nil {
		dto.CurrentPhase = string(*job.CurrentPhase)
	}
	return dto
}

// FromJobs converts a slice of jobs. The result is never nil.
func FromJobs(list []*jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromItem converts an item record to its API representation.
func FromItem(item *jobs.Item) Item {
	if item == nil {
		return Item{}
	}
	dto := Item{
		ID:               item.ID,
		JobID:            item.JobID,
		DetectionType:    string(item.DetectionType),
		MatchedText:      item.MatchedText,
		EntityID:         item.EntityID,
		Similarity:       item.Similarity,
		ContextSnippet:   item.ContextSnippet,
		PositionStart:    item.PositionStart,
		PositionEnd:      item.PositionEnd,
		Resolution:       string(item.Resolution),
		ResolvedEntityID: item.ResolvedEntityID,
		Phase:            string(item.Phase),
		CreatedAt:        formatTime(item.CreatedAt),
	}
	if item.ResolvedAt != nil {
		dto.ResolvedAt = formatTime(*item.ResolvedAt)
	}
	if len(item.SuggestedContent) > 0 {
		dto.SuggestedContent = item.SuggestedContent
	}
	return dto
}

// FromItems converts a slice of items. The result is never nil.
func FromItems(list []*jobs.Item) []Item {
	out := make([]Item, 0, len(list))
	for _, item := range list {
		out = append(out, FromItem(item))
	}
	return out
}

// FromEntity converts a campaign entity.
func FromEntity(entity campaign.Entity) Entity {
	aliases := entity.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	return Entity{
		ID:          entity.ID,
		CampaignID:  entity.CampaignID,
		Type:        entity.Type,
		Name:        entity.Name,
		Aliases:     aliases,
		Description: entity.Description,
		CreatedAt:   formatTime(entity.CreatedAt),
		UpdatedAt:   formatTime(entity.UpdatedAt),
	}
}
