package enrichment

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"loreweave/internal/campaign"
	"loreweave/internal/jobs"
	"loreweave/internal/services"
)

const defaultContextCharLimit = 6000

// grounding is the material a run sends to the model.
type grounding struct {
	Content       string
	Truncated     int
	Entities      []campaign.Entity
	Relationships []campaign.Relationship
	byID          map[int64]campaign.Entity
}

func (g *grounding) entity(id int64) (campaign.Entity, bool) {
	e, ok := g.byID[id]
	return e, ok
}

// truncateContent cuts content to limit characters, appending a marker that
// states how much was dropped.
func truncateContent(content string, limit int) (string, int) {
	if limit <= 0 {
		limit = defaultContextCharLimit
	}
	total := utf8.RuneCountInString(content)
	if total <= limit {
		return content, 0
	}
	runes := []rune(content)
	dropped := total - limit
	return string(runes[:limit]) + fmt.Sprintf("\n[... truncated %d characters ...]", dropped), dropped
}

// assembleGrounding collects the entities linked by resolved identification
// items, in order of first appearance, plus relationships among them.
func (o *Orchestrator) assembleGrounding(ctx context.Context, job *jobs.Job) (*grounding, error) {
	items, err := o.store.ListItems(ctx, job.ID, jobs.ItemFilter{Phase: jobs.PhaseIdentification})
	if err != nil {
		return nil, err
	}
	g := &grounding{byID: make(map[int64]campaign.Entity)}
	g.Content, g.Truncated = truncateContent(job.SourceContent, o.contextLimit)

	var ids []int64
	for _, item := range items {
		if item.Resolution != jobs.ResolutionAccepted && item.Resolution != jobs.ResolutionNewEntity {
			continue
		}
		if item.ResolvedEntityID == nil {
			continue
		}
		id := *item.ResolvedEntityID
		if _, seen := g.byID[id]; seen {
			continue
		}
		if o.maxEntities > 0 && len(ids) >= o.maxEntities {
			break
		}
		entity, err := o.entities.GetEntity(ctx, id)
		if errors.Is(err, services.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load entity %d: %w", id, err)
		}
		g.byID[id] = *entity
		g.Entities = append(g.Entities, *entity)
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return g, nil
	}

	rels, err := o.relationships.ListRelationships(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}
	for _, rel := range rels {
		_, src := g.byID[rel.SourceEntityID]
		_, tgt := g.byID[rel.TargetEntityID]
		if src && tgt {
			g.Relationships = append(g.Relationships, rel)
		}
	}
	return g, nil
}
