package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"loreweave/internal/detector"
	"loreweave/internal/jobs"
	"loreweave/internal/services/llm"
)

type descriptionsResponse struct {
	Updates []jobs.DescriptionSuggestion `json:"updates"`
}

type logEntriesResponse struct {
	Entries []jobs.LogEntrySuggestion `json:"entries"`
}

type relationshipsResponse struct {
	Relationships []jobs.RelationshipSuggestion `json:"relationships"`
}

func decodeResponse(t task, raw string, target any) error {
	if err := llm.DecodeLLMJSON(raw, target); err != nil {
		return fmt.Errorf("%w: %s response: %w", llm.ErrMalformedOutput, t, err)
	}
	return nil
}

func suggestionItem(detectionType detector.Type, matched string, entityID int64, snippet string, payload any) (jobs.NewItem, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return jobs.NewItem{}, fmt.Errorf("encode %s: %w", detectionType, err)
	}
	id := entityID
	return jobs.NewItem{
		DetectionType:    detectionType,
		MatchedText:      matched,
		EntityID:         &id,
		ContextSnippet:   snippet,
		SuggestedContent: raw,
	}, nil
}

// parseDescriptions keeps one update per known entity whose text differs
// from the current description.
func parseDescriptions(raw string, g *grounding) ([]jobs.NewItem, error) {
	var resp descriptionsResponse
	if err := decodeResponse(taskDescriptions, raw, &resp); err != nil {
		return nil, err
	}
	seen := make(map[int64]bool)
	var out []jobs.NewItem
	for _, update := range resp.Updates {
		entity, ok := g.entity(update.EntityID)
		update.Description = strings.TrimSpace(update.Description)
		if !ok || seen[entity.ID] || update.Description == "" {
			continue
		}
		if strings.EqualFold(update.Description, strings.TrimSpace(entity.Description)) {
			continue
		}
		seen[entity.ID] = true
		update.Rationale = strings.TrimSpace(update.Rationale)
		item, err := suggestionItem(detector.TypeDescriptionUpdate, entity.Name, entity.ID, update.Rationale, update)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func parseLogEntries(raw string, g *grounding) ([]jobs.NewItem, error) {
	var resp logEntriesResponse
	if err := decodeResponse(taskLogEntries, raw, &resp); err != nil {
		return nil, err
	}
	var out []jobs.NewItem
	for _, entry := range resp.Entries {
		entity, ok := g.entity(entry.EntityID)
		entry.Entry = strings.TrimSpace(entry.Entry)
		if !ok || entry.Entry == "" {
			continue
		}
		entry.Summary = strings.TrimSpace(entry.Summary)
		item, err := suggestionItem(detector.TypeLogEntry, entity.Name, entity.ID, entry.Summary, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

type relationKey struct {
	a, b int64
	kind string
}

func undirectedKey(source, target int64, kind string) relationKey {
	if source > target {
		source, target = target, source
	}
	return relationKey{a: source, b: target, kind: kind}
}

func normalizeRelationshipType(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(value, "-", " ")), "_"))
}

// parseRelationships drops suggestions that reference unknown entities,
// relate an entity to itself, or repeat a relationship already recorded.
func (o *Orchestrator) parseRelationships(ctx context.Context, raw string, g *grounding) ([]jobs.NewItem, error) {
	var resp relationshipsResponse
	if err := decodeResponse(taskRelationships, raw, &resp); err != nil {
		return nil, err
	}
	seen := make(map[relationKey]bool)
	for _, rel := range g.Relationships {
		seen[undirectedKey(rel.SourceEntityID, rel.TargetEntityID, rel.Type)] = true
	}

	var out []jobs.NewItem
	for _, rel := range resp.Relationships {
		source, okSource := g.entity(rel.SourceEntityID)
		target, okTarget := g.entity(rel.TargetEntityID)
		rel.RelationshipType = normalizeRelationshipType(rel.RelationshipType)
		if !okSource || !okTarget || source.ID == target.ID || rel.RelationshipType == "" {
			continue
		}
		key := undirectedKey(source.ID, target.ID, rel.RelationshipType)
		if seen[key] {
			continue
		}
		exists, err := o.relationships.RelationshipExists(ctx, source.ID, target.ID, rel.RelationshipType)
		if err != nil {
			return nil, err
		}
		seen[key] = true
		if exists {
			continue
		}
		rel.Description = strings.TrimSpace(rel.Description)
		rel.Confidence = min(max(rel.Confidence, 0), 1)
		item, err := suggestionItem(detector.TypeRelationshipSuggestion,
			source.Name+" and "+target.Name, source.ID, rel.Description, rel)
		if err != nil {
			return nil, err
		}
		confidence := rel.Confidence
		item.Similarity = &confidence
		out = append(out, item)
	}
	return out, nil
}
