package campaign

import (
	"context"
	"time"
)

// Entity is a named campaign record that text can refer to.
type Entity struct {
	ID          int64
	CampaignID  int64
	Type        string
	Name        string
	Aliases     []string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Labels returns the name followed by every alias.
func (e Entity) Labels() []string {
	out := make([]string, 0, len(e.Aliases)+1)
	out = append(out, e.Name)
	return append(out, e.Aliases...)
}

// NewEntity describes an entity to create.
type NewEntity struct {
	CampaignID  int64
	Type        string
	Name        string
	Aliases     []string
	Description string
}

// Relationship is a typed, directed link between two entities.
type Relationship struct {
	ID             int64
	CampaignID     int64
	SourceEntityID int64
	TargetEntityID int64
	Type           string
	Description    string
	CreatedAt      time.Time
}

// NewRelationship describes a relationship to create.
type NewRelationship struct {
	CampaignID     int64
	SourceEntityID int64
	TargetEntityID int64
	Type           string
	Description    string
}

// EntityStore reads and updates campaign entities.
type EntityStore interface {
	ListEntities(ctx context.Context, campaignID int64) ([]Entity, error)
	GetEntity(ctx context.Context, id int64) (*Entity, error)
	CreateEntity(ctx context.Context, entity NewEntity) (*Entity, error)
	AddAlias(ctx context.Context, entityID int64, alias string) error
	UpdateDescription(ctx context.Context, entityID int64, description string) error
}

// RelationshipStore reads and creates entity relationships.
type RelationshipStore interface {
	// ListRelationships returns relationships touching any of entityIDs.
	ListRelationships(ctx context.Context, entityIDs []int64) ([]Relationship, error)
	// RelationshipExists matches the pair in either direction, case-insensitively
	// on type.
	RelationshipExists(ctx context.Context, sourceID, targetID int64, relationshipType string) (bool, error)
	CreateRelationship(ctx context.Context, rel NewRelationship) (*Relationship, error)
}
