package jobs

import (
	"encoding/json"
	"fmt"

	"loreweave/internal/detector"
)

// DescriptionSuggestion is the suggested content of a description_update item.
type DescriptionSuggestion struct {
	EntityID    int64  `json:"entityId"`
	Description string `json:"description"`
	Rationale   string `json:"rationale,omitempty"`
}

// LogEntrySuggestion is the suggested content of a log_entry item.
type LogEntrySuggestion struct {
	EntityID int64  `json:"entityId"`
	Summary  string `json:"summary,omitempty"`
	Entry    string `json:"entry"`
}

// RelationshipSuggestion is the suggested content of a
// relationship_suggestion item.
type RelationshipSuggestion struct {
	SourceEntityID   int64   `json:"sourceEntityId"`
	TargetEntityID   int64   `json:"targetEntityId"`
	RelationshipType string  `json:"relationshipType"`
	Description      string  `json:"description,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
}

// DecodeSuggestion decodes raw into the payload type used by detectionType,
// then applies override on top of it when present. Identification types carry
// no payload and decode to nil.
func DecodeSuggestion(detectionType detector.Type, raw, override json.RawMessage) (any, error) {
	var target any
	switch detectionType {
	case detector.TypeDescriptionUpdate:
		target = &DescriptionSuggestion{}
	case detector.TypeLogEntry:
		target = &LogEntrySuggestion{}
	case detector.TypeRelationshipSuggestion:
		target = &RelationshipSuggestion{}
	default:
		return nil, nil
	}
	for _, layer := range []json.RawMessage{raw, override} {
		if len(layer) == 0 || string(layer) == "null" {
			continue
		}
		if err := json.Unmarshal(layer, target); err != nil {
			return nil, fmt.Errorf("decode %s content: %w", detectionType, err)
		}
	}
	return target, nil
}
