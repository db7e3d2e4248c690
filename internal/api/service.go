package api

import (
	"context"
	"strings"

	"loreweave/internal/analysis"
	"loreweave/internal/campaign"
	"loreweave/internal/detector"
	"loreweave/internal/enrichment"
	"loreweave/internal/jobs"
	"loreweave/internal/review"
	"loreweave/internal/services"
)

// Service exposes the analysis, review and enrichment operations as DTOs.
type Service struct {
	analysis   *analysis.Manager
	review     *review.Service
	enrichment *enrichment.Orchestrator
	entities   campaign.EntityStore
}

// NewService composes the domain services.
func NewService(manager *analysis.Manager, reviewer *review.Service, orchestrator *enrichment.Orchestrator, entities campaign.EntityStore) *Service {
	return &Service{
		analysis:   manager,
		review:     reviewer,
		enrichment: orchestrator,
		entities:   entities,
	}
}

func invalid(operation, message string) error {
	return services.Wrap(services.ErrValidation, "api", operation, message, nil)
}

// TriggerAnalysis runs identification for one content field.
func (s *Service) TriggerAnalysis(ctx context.Context, req TriggerAnalysisRequest) (AnalysisResponse, error) {
	job, items, err := s.analysis.TriggerAnalysis(ctx, analysis.Request{
		CampaignID:       req.CampaignID,
		SourceTable:      req.SourceTable,
		SourceID:         req.SourceID,
		SourceField:      req.SourceField,
		Content:          req.Content,
		ExcludeEntityIDs: req.ExcludeEntityIDs,
	})
	if err != nil {
		return AnalysisResponse{}, err
	}
	return AnalysisResponse{Job: FromJob(job), Items: FromItems(items)}, nil
}

// JobQuery filters ListJobs.
type JobQuery struct {
	CampaignID  int64
	SourceTable string
	SourceID    int64
	SourceField string
	Status      string
	Limit       int
}

// ListJobs returns jobs newest first.
func (s *Service) ListJobs(ctx context.Context, query JobQuery) ([]Job, error) {
	filter := jobs.JobFilter{
		CampaignID:  query.CampaignID,
		SourceTable: strings.TrimSpace(query.SourceTable),
		SourceID:    query.SourceID,
		SourceField: strings.TrimSpace(query.SourceField),
		Limit:       query.Limit,
	}
	if query.Status != "" {
		status, err := jobs.ParseStatus(query.Status)
		if err != nil {
			return nil, invalid("list jobs", err.Error())
		}
		filter.Status = status
	}
	list, err := s.analysis.ListJobs(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromJobs(list), nil
}

// GetJob returns one job.
func (s *Service) GetJob(ctx context.Context, id int64) (Job, error) {
	job, err := s.analysis.GetJob(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job), nil
}

// ItemQuery filters ListJobItems. Empty fields match everything.
type ItemQuery struct {
	Resolution    string
	Phase         string
	DetectionType string
}

// ListJobItems returns a job's items.
func (s *Service) ListJobItems(ctx context.Context, jobID int64, query ItemQuery) ([]Item, error) {
	var filter jobs.ItemFilter
	if query.Resolution != "" {
		resolution, err := jobs.ParseResolution(query.Resolution)
		if err != nil {
			return nil, invalid("list items", err.Error())
		}
		filter.Resolution = resolution
	}
	if query.Phase != "" {
		phase, err := jobs.ParsePhase(query.Phase)
		if err != nil {
			return nil, invalid("list items", err.Error())
		}
		filter.Phase = phase
	}
	if query.DetectionType != "" {
		detectionType, err := detector.ParseType(query.DetectionType)
		if err != nil {
			return nil, invalid("list items", err.Error())
		}
		filter.DetectionType = detectionType
	}
	items, err := s.analysis.ListJobItems(ctx, jobID, filter)
	if err != nil {
		return nil, err
	}
	return FromItems(items), nil
}

// ResolveItem applies a reviewer decision.
func (s *Service) ResolveItem(ctx context.Context, itemID int64, req ResolveItemRequest) (Item, error) {
	resolution, err := jobs.ParseResolution(req.Resolution)
	if err != nil {
		return Item{}, invalid("resolve item", err.Error())
	}
	item, err := s.review.ResolveItem(ctx, itemID, review.ResolveRequest{
		Resolution: resolution,
		EntityType: req.EntityType,
		EntityName: req.EntityName,
		Override:   req.Override,
	})
	if err != nil {
		return Item{}, err
	}
	return FromItem(item), nil
}

// RevertItem returns a resolved item to pending.
func (s *Service) RevertItem(ctx context.Context, itemID int64) (Item, error) {
	item, err := s.review.RevertItem(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	return FromItem(item), nil
}

// BatchResolve resolves all pending items of one type in a job.
func (s *Service) BatchResolve(ctx context.Context, jobID int64, req BatchResolveRequest) (BatchResolveResponse, error) {
	detectionType, err := detector.ParseType(req.DetectionType)
	if err != nil {
		return BatchResolveResponse{}, invalid("batch resolve", err.Error())
	}
	resolution, err := jobs.ParseResolution(req.Resolution)
	if err != nil {
		return BatchResolveResponse{}, invalid("batch resolve", err.Error())
	}
	result, err := s.review.BatchResolve(ctx, jobID, detectionType, resolution)
	if err != nil {
		return BatchResolveResponse{}, err
	}
	return BatchResolveResponse{ResolvedCount: result.ResolvedCount}, nil
}

// TriggerEnrichment starts an enrichment run.
func (s *Service) TriggerEnrichment(ctx context.Context, jobID int64) (EnrichmentResponse, error) {
	result, err := s.enrichment.TriggerEnrichment(ctx, jobID)
	if err != nil {
		return EnrichmentResponse{}, err
	}
	resp := EnrichmentResponse{Status: result.Status, Message: result.Message, RunID: result.RunID}
	if result.Status == enrichment.StatusStarted {
		count := result.EntityCount
		resp.EntityCount = &count
	}
	return resp, nil
}

// CancelEnrichment stops a running enrichment.
func (s *Service) CancelEnrichment(ctx context.Context, jobID int64) (CancelEnrichmentResponse, error) {
	result, err := s.enrichment.CancelEnrichment(ctx, jobID)
	if err != nil {
		return CancelEnrichmentResponse{}, err
	}
	return CancelEnrichmentResponse{Status: result.Status}, nil
}

// PendingCount counts unresolved items.
func (s *Service) PendingCount(ctx context.Context, campaignID int64, sourceTable string, sourceID int64) (int, error) {
	return s.review.PendingCount(ctx, jobs.PendingFilter{
		CampaignID:  campaignID,
		SourceTable: strings.TrimSpace(sourceTable),
		SourceID:    sourceID,
	})
}

// CreateEntity seeds a known entity for a campaign.
func (s *Service) CreateEntity(ctx context.Context, campaignID int64, req CreateEntityRequest) (Entity, error) {
	if campaignID <= 0 {
		return Entity{}, invalid("create entity", "campaignId is required")
	}
	entity, err := s.entities.CreateEntity(ctx, campaign.NewEntity{
		CampaignID:  campaignID,
		Type:        req.Type,
		Name:        req.Name,
		Aliases:     req.Aliases,
		Description: req.Description,
	})
	if err != nil {
		return Entity{}, err
	}
	return FromEntity(*entity), nil
}

// ListEntities returns a campaign's known entities.
func (s *Service) ListEntities(ctx context.Context, campaignID int64) ([]Entity, error) {
	if campaignID <= 0 {
		return nil, invalid("list entities", "campaignId is required")
	}
	list, err := s.entities.ListEntities(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	out := make([]Entity, 0, len(list))
	for _, entity := range list {
		out = append(out, FromEntity(entity))
	}
	return out, nil
}

// ActiveEnrichments reports the number of enrichment runs in progress.
func (s *Service) ActiveEnrichments() int {
	return s.enrichment.Active()
}
