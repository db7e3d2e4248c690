package enrichment

import (
	"fmt"
	"strings"
)

type task string

const (
	taskDescriptions  task = "descriptions"
	taskLogEntries    task = "log_entries"
	taskRelationships task = "relationships"
)

const descriptionsPrompt = `You maintain the campaign wiki for a tabletop role-playing group.
Read the session text and the known entities. For each entity whose description should change because of events in the text, propose a complete replacement description.
Keep established facts unless the text contradicts them. Do not invent facts that are not supported by the text.
Only use entity ids from the provided list. Omit entities that need no change.
Respond with JSON only, shaped as:
{"updates":[{"entityId":1,"description":"...","rationale":"..."}]}`

const logEntriesPrompt = `You keep a chronological log for each entity in a tabletop role-playing campaign.
Read the session text and the known entities. For each entity that takes part in notable events, write one log entry in past tense describing what happened to it or what it did.
Only use entity ids from the provided list. Omit entities that do nothing notable.
Respond with JSON only, shaped as:
{"entries":[{"entityId":1,"summary":"short title","entry":"..."}]}`

const relationshipsPrompt = `You map relationships between entities in a tabletop role-playing campaign.
Read the session text, the known entities, and the relationships already recorded. Propose new relationships the text clearly establishes between two listed entities.
Use short snake_case relationship types such as ally_of, member_of, located_in, enemy_of, employs.
Do not repeat recorded relationships. Only use entity ids from the provided list. Confidence is a number between 0 and 1.
Respond with JSON only, shaped as:
{"relationships":[{"sourceEntityId":1,"targetEntityId":2,"relationshipType":"ally_of","description":"...","confidence":0.8}]}`

func systemPrompt(t task) string {
	switch t {
	case taskDescriptions:
		return descriptionsPrompt
	case taskLogEntries:
		return logEntriesPrompt
	default:
		return relationshipsPrompt
	}
}

// userPrompt renders the grounding context shared by every task.
func userPrompt(t task, g *grounding) string {
	var b strings.Builder
	b.WriteString("Known entities:\n")
	for _, e := range g.Entities {
		fmt.Fprintf(&b, "- id %d | %s | %s", e.ID, e.Type, e.Name)
		if len(e.Aliases) > 0 {
			fmt.Fprintf(&b, " (also: %s)", strings.Join(e.Aliases, ", "))
		}
		b.WriteString("\n")
		if t == taskDescriptions {
			desc := strings.TrimSpace(e.Description)
			if desc == "" {
				desc = "(no description yet)"
			}
			fmt.Fprintf(&b, "  current description: %s\n", desc)
		}
	}
	if t == taskRelationships {
		b.WriteString("\nRecorded relationships:\n")
		if len(g.Relationships) == 0 {
			b.WriteString("- none\n")
		}
		for _, rel := range g.Relationships {
			fmt.Fprintf(&b, "- %d %s %d\n", rel.SourceEntityID, rel.Type, rel.TargetEntityID)
		}
	}
	b.WriteString("\nSession text:\n")
	b.WriteString(g.Content)
	b.WriteString("\n")
	return b.String()
}
