package detector

import (
	"fmt"
	"strings"
)

// Type classifies a detection or enrichment suggestion.
type Type string

const (
	TypeWikiLinkResolved       Type = "wiki_link_resolved"
	TypeWikiLinkUnresolved     Type = "wiki_link_unresolved"
	TypeUntaggedMention        Type = "untagged_mention"
	TypePotentialAlias         Type = "potential_alias"
	TypeMisspelling            Type = "misspelling"
	TypeDescriptionUpdate      Type = "description_update"
	TypeLogEntry               Type = "log_entry"
	TypeRelationshipSuggestion Type = "relationship_suggestion"
	TypeNewEntitySuggestion    Type = "new_entity_suggestion"
)

var allTypes = []Type{
	TypeWikiLinkResolved,
	TypeWikiLinkUnresolved,
	TypeUntaggedMention,
	TypePotentialAlias,
	TypeMisspelling,
	TypeDescriptionUpdate,
	TypeLogEntry,
	TypeRelationshipSuggestion,
	TypeNewEntitySuggestion,
}

// AllTypes returns every detection type in declaration order.
func AllTypes() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// ParseType validates a raw detection type string.
func ParseType(value string) (Type, error) {
	candidate := Type(strings.ToLower(strings.TrimSpace(value)))
	for _, t := range allTypes {
		if t == candidate {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown detection type %q", value)
}

// Identification reports whether the type is produced by text scanning (as
// opposed to LLM enrichment).
func (t Type) Identification() (bool, error) {
	switch t {
	case TypeWikiLinkResolved, TypeWikiLinkUnresolved, TypeUntaggedMention,
		TypePotentialAlias, TypeMisspelling, TypeNewEntitySuggestion:
		return true, nil
	case TypeDescriptionUpdate, TypeLogEntry, TypeRelationshipSuggestion:
		return false, nil
	default:
		return false, fmt.Errorf("unknown detection type %q", string(t))
	}
}

// Priority orders scanner detection types for span claiming and tie breaks.
// Higher wins. Enrichment types do not compete for spans and rank zero.
func (t Type) Priority() int {
	switch t {
	case TypeWikiLinkResolved:
		return 5
	case TypeWikiLinkUnresolved:
		return 4
	case TypeUntaggedMention:
		return 3
	case TypePotentialAlias:
		return 2
	case TypeMisspelling:
		return 1
	case TypeDescriptionUpdate, TypeLogEntry, TypeRelationshipSuggestion, TypeNewEntitySuggestion:
		return 0
	default:
		return -1
	}
}

// KnownEntity is the detector's view of a campaign entity.
type KnownEntity struct {
	ID      int64
	Name    string
	Aliases []string
}

// Detection is a single candidate entity reference found in the content.
type Detection struct {
	Type        Type
	MatchedText string
	// EntityID is nil for unresolved wiki links.
	EntityID   *int64
	Similarity float64
	Start      int
	End        int
	Snippet    string
}

// Options tunes fuzzy matching thresholds.
type Options struct {
	SimilarityFloor      float64
	AliasCeiling         float64
	MisspellingMaxEdits  int
	MisspellingMinLength int
	SnippetRadius        int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		SimilarityFloor:      0.6,
		AliasCeiling:         0.85,
		MisspellingMaxEdits:  2,
		MisspellingMinLength: 5,
		SnippetRadius:        60,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SimilarityFloor <= 0 || o.SimilarityFloor > 1 {
		o.SimilarityFloor = def.SimilarityFloor
	}
	if o.AliasCeiling <= 0 || o.AliasCeiling > 1 {
		o.AliasCeiling = def.AliasCeiling
	}
	if o.AliasCeiling < o.SimilarityFloor {
		o.AliasCeiling = o.SimilarityFloor
	}
	if o.MisspellingMaxEdits <= 0 {
		o.MisspellingMaxEdits = def.MisspellingMaxEdits
	}
	if o.MisspellingMinLength <= 0 {
		o.MisspellingMinLength = def.MisspellingMinLength
	}
	if o.SnippetRadius <= 0 {
		o.SnippetRadius = def.SnippetRadius
	}
	return o
}
