package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"loreweave/internal/campaign"
	"loreweave/internal/detector"
	"loreweave/internal/jobs"
	"loreweave/internal/logging"
	"loreweave/internal/metrics"
	"loreweave/internal/services"
)

// ResolveRequest carries a reviewer decision for one item.
type ResolveRequest struct {
	Resolution jobs.Resolution
	// EntityType and EntityName are required for new_entity.
	EntityType string
	EntityName string
	// Override replaces fields of an enrichment suggestion before it is
	// applied, using the same JSON shape as the suggested content.
	Override json.RawMessage
}

// BatchResult reports how many items a batch resolution changed.
type BatchResult struct {
	ResolvedCount int
}

// Service resolves and reverts items.
type Service struct {
	store         *jobs.Store
	entities      campaign.EntityStore
	relationships campaign.RelationshipStore
	logger        *slog.Logger
}

// NewService wires the job store and the campaign collaborators.
func NewService(store *jobs.Store, entities campaign.EntityStore, relationships campaign.RelationshipStore, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		entities:      entities,
		relationships: relationships,
		logger:        logging.NewComponentLogger(logger, "review"),
	}
}

// ResolveItem applies req to a pending item.
func (s *Service) ResolveItem(ctx context.Context, itemID int64, req ResolveRequest) (*jobs.Item, error) {
	if req.Resolution == jobs.ResolutionPending {
		return nil, services.Wrap(services.ErrValidation, "review", "resolve item", "resolution must not be pending", nil)
	}
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.IsPending() {
		return nil, services.Wrap(services.ErrAlreadyResolved, "review", "resolve item",
			fmt.Sprintf("item %d is already %s", itemID, item.Resolution), nil)
	}
	ctx = services.WithItemID(services.WithJobID(ctx, item.JobID), item.ID)

	var resolvedEntityID *int64
	switch req.Resolution {
	case jobs.ResolutionAccepted:
		if item.EntityID == nil {
			return nil, services.Wrap(services.ErrInvalidState, "review", "resolve item",
				"item has no linked entity; resolve it as new_entity or dismiss it", nil)
		}
		if err := s.applyAcceptance(ctx, item, req.Override); err != nil {
			return nil, err
		}
		id := *item.EntityID
		resolvedEntityID = &id
	case jobs.ResolutionNewEntity:
		entity, err := s.createEntity(ctx, item, req)
		if err != nil {
			return nil, err
		}
		resolvedEntityID = &entity.ID
	case jobs.ResolutionDismissed:
	default:
		return nil, services.Wrap(services.ErrValidation, "review", "resolve item",
			fmt.Sprintf("unknown resolution %q", req.Resolution), nil)
	}

	resolved, err := s.store.ResolveItem(ctx, itemID, req.Resolution, resolvedEntityID)
	if err != nil {
		return nil, err
	}
	metrics.AddResolutionsMetric(string(req.Resolution), 1)
	logging.WithContext(ctx, s.logger).Info("item resolved",
		logging.String(logging.FieldEventType, "item_resolved"),
		logging.String("detection_type", string(resolved.DetectionType)),
		logging.String("resolution", string(resolved.Resolution)),
	)
	return resolved, nil
}

// applyAcceptance performs the campaign change an accepted item stands for.
func (s *Service) applyAcceptance(ctx context.Context, item *jobs.Item, override json.RawMessage) error {
	payload, err := jobs.DecodeSuggestion(item.DetectionType, item.SuggestedContent, override)
	if err != nil {
		return services.Wrap(services.ErrValidation, "review", "accept item", "suggested content could not be read", err)
	}
	entityID := *item.EntityID

	switch item.DetectionType {
	case detector.TypePotentialAlias, detector.TypeMisspelling:
		return s.entities.AddAlias(ctx, entityID, item.MatchedText)
	case detector.TypeDescriptionUpdate:
		suggestion := payload.(*jobs.DescriptionSuggestion)
		if strings.TrimSpace(suggestion.Description) == "" {
			return services.Wrap(services.ErrValidation, "review", "accept item", "description is empty", nil)
		}
		return s.entities.UpdateDescription(ctx, entityID, suggestion.Description)
	case detector.TypeRelationshipSuggestion:
		return s.createRelationship(ctx, item, payload.(*jobs.RelationshipSuggestion))
	case detector.TypeWikiLinkResolved, detector.TypeWikiLinkUnresolved, detector.TypeUntaggedMention,
		detector.TypeLogEntry, detector.TypeNewEntitySuggestion:
		return nil
	default:
		return services.Wrap(services.ErrValidation, "review", "accept item",
			fmt.Sprintf("unknown detection type %q", item.DetectionType), nil)
	}
}

func (s *Service) createRelationship(ctx context.Context, item *jobs.Item, suggestion *jobs.RelationshipSuggestion) error {
	if suggestion.SourceEntityID == 0 {
		suggestion.SourceEntityID = *item.EntityID
	}
	exists, err := s.relationships.RelationshipExists(ctx, suggestion.SourceEntityID, suggestion.TargetEntityID, suggestion.RelationshipType)
	if err != nil {
		return services.Wrap(services.ErrInternal, "review", "accept relationship", "", err)
	}
	if exists {
		return nil
	}
	source, err := s.entities.GetEntity(ctx, suggestion.SourceEntityID)
	if err != nil {
		return err
	}
	_, err = s.relationships.CreateRelationship(ctx, campaign.NewRelationship{
		CampaignID:     source.CampaignID,
		SourceEntityID: suggestion.SourceEntityID,
		TargetEntityID: suggestion.TargetEntityID,
		Type:           suggestion.RelationshipType,
		Description:    suggestion.Description,
	})
	return err
}

func (s *Service) createEntity(ctx context.Context, item *jobs.Item, req ResolveRequest) (*campaign.Entity, error) {
	identification, err := item.DetectionType.Identification()
	if err != nil || !identification {
		return nil, services.Wrap(services.ErrUnsupportedResolution, "review", "resolve item",
			fmt.Sprintf("%s items cannot create entities", item.DetectionType), nil)
	}
	var problems []string
	if strings.TrimSpace(req.EntityType) == "" {
		problems = append(problems, "entityType is required")
	}
	if strings.TrimSpace(req.EntityName) == "" {
		problems = append(problems, "entityName is required")
	}
	if len(problems) > 0 {
		return nil, services.Wrap(services.ErrValidation, "review", "resolve item", strings.Join(problems, "; "), nil)
	}
	job, err := s.store.GetJob(ctx, item.JobID)
	if err != nil {
		return nil, err
	}
	entity, err := s.entities.CreateEntity(ctx, campaign.NewEntity{
		CampaignID: job.CampaignID,
		Type:       req.EntityType,
		Name:       req.EntityName,
		Aliases:    []string{item.MatchedText},
	})
	if err != nil {
		return nil, err
	}
	logging.WithContext(ctx, s.logger).Info("entity created from review",
		logging.String(logging.FieldEventType, "entity_created"),
		logging.Int64("entity_id", entity.ID),
		logging.String("entity_type", entity.Type),
	)
	return entity, nil
}

// RevertItem returns a resolved item to pending.
func (s *Service) RevertItem(ctx context.Context, itemID int64) (*jobs.Item, error) {
	item, err := s.store.RevertItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	metrics.AddResolutionsMetric("reverted", 1)
	return item, nil
}

// hasAcceptEffect reports whether accepting the type changes the campaign.
func hasAcceptEffect(t detector.Type) bool {
	switch t {
	case detector.TypePotentialAlias, detector.TypeMisspelling,
		detector.TypeDescriptionUpdate, detector.TypeRelationshipSuggestion:
		return true
	default:
		return false
	}
}

// BatchResolve applies one resolution to every pending item of a type in a
// job. Accepting skips items without an entity. Calling it again resolves
// nothing.
func (s *Service) BatchResolve(ctx context.Context, jobID int64, detectionType detector.Type, resolution jobs.Resolution) (BatchResult, error) {
	switch resolution {
	case jobs.ResolutionPending:
		return BatchResult{}, services.Wrap(services.ErrValidation, "review", "batch resolve", "resolution must not be pending", nil)
	case jobs.ResolutionNewEntity:
		return BatchResult{}, services.Wrap(services.ErrUnsupportedResolution, "review", "batch resolve",
			"new_entity needs a name per item and cannot be applied in batch", nil)
	case jobs.ResolutionAccepted, jobs.ResolutionDismissed:
	default:
		return BatchResult{}, services.Wrap(services.ErrValidation, "review", "batch resolve",
			fmt.Sprintf("unknown resolution %q", resolution), nil)
	}
	if _, err := jobs.PhaseOf(detectionType); err != nil {
		return BatchResult{}, services.Wrap(services.ErrValidation, "review", "batch resolve", err.Error(), nil)
	}
	ctx = services.WithJobID(ctx, jobID)
	accepting := resolution == jobs.ResolutionAccepted

	var (
		count int
		err   error
	)
	if accepting && hasAcceptEffect(detectionType) {
		count, err = s.acceptEach(ctx, jobID, detectionType)
	} else {
		count, err = s.store.BatchResolve(ctx, jobID, detectionType, resolution, accepting)
		if err == nil {
			metrics.AddResolutionsMetric(string(resolution), count)
		}
	}
	if err != nil {
		return BatchResult{}, err
	}
	logging.WithContext(ctx, s.logger).Info("batch resolved",
		logging.String(logging.FieldEventType, "batch_resolved"),
		logging.String("detection_type", string(detectionType)),
		logging.String("resolution", string(resolution)),
		logging.Int("resolved_count", count),
	)
	return BatchResult{ResolvedCount: count}, nil
}

// acceptEach accepts items one at a time so each gets its side effect. Items
// resolved concurrently by someone else are skipped.
func (s *Service) acceptEach(ctx context.Context, jobID int64, detectionType detector.Type) (int, error) {
	ids, err := s.store.PendingItemIDs(ctx, jobID, detectionType, true)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		_, err := s.ResolveItem(ctx, id, ResolveRequest{Resolution: jobs.ResolutionAccepted})
		switch {
		case err == nil:
			count++
		case errors.Is(err, services.ErrAlreadyResolved):
		default:
			return count, err
		}
	}
	return count, nil
}

// PendingCount counts unresolved items for a campaign, optionally narrowed to
// one source record.
func (s *Service) PendingCount(ctx context.Context, filter jobs.PendingFilter) (int, error) {
	if filter.CampaignID <= 0 {
		return 0, services.Wrap(services.ErrValidation, "review", "pending count", "campaignId is required", nil)
	}
	return s.store.PendingCount(ctx, filter)
}
