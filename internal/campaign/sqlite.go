package campaign

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"loreweave/internal/detector"
	"loreweave/internal/services"
	"loreweave/internal/storage"
)

const entityColumns = "id, campaign_id, entity_type, name, aliases_json, description, created_at, updated_at"

const relationshipColumns = "id, campaign_id, source_entity_id, target_entity_id, relationship_type, description, created_at"

// SQLiteStore implements EntityStore and RelationshipStore on the service
// database.
type SQLiteStore struct {
	db  *storage.DB
	now func() time.Time
}

// NewSQLiteStore wraps an open database.
func NewSQLiteStore(db *storage.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// ListEntities returns a campaign's entities ordered by id.
func (s *SQLiteStore) ListEntities(ctx context.Context, campaignID int64) ([]Entity, error) {
	rows, err := s.db.SQL().QueryContext(ctx,
		"SELECT "+entityColumns+" FROM entities WHERE campaign_id = ? ORDER BY id", campaignID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, *entity)
	}
	return out, rows.Err()
}

// GetEntity fetches one entity.
func (s *SQLiteStore) GetEntity(ctx context.Context, id int64) (*Entity, error) {
	return getEntity(ctx, s.db.SQL(), id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEntity(ctx context.Context, q queryRower, id int64) (*Entity, error) {
	row := q.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE id = ?", id)
	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "campaign", "get entity", fmt.Sprintf("entity %d not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return entity, nil
}

// CreateEntity inserts a new entity.
func (s *SQLiteStore) CreateEntity(ctx context.Context, entity NewEntity) (*Entity, error) {
	name := strings.TrimSpace(entity.Name)
	kind := strings.ToLower(strings.TrimSpace(entity.Type))
	if name == "" || kind == "" {
		return nil, services.Wrap(services.ErrValidation, "campaign", "create entity", "entity type and name are required", nil)
	}
	if entity.CampaignID <= 0 {
		return nil, services.Wrap(services.ErrValidation, "campaign", "create entity", "campaign id is required", nil)
	}
	aliases := dedupeAliases(name, entity.Aliases)
	encoded, err := json.Marshal(aliases)
	if err != nil {
		return nil, fmt.Errorf("encode aliases: %w", err)
	}
	now := storage.FormatTime(s.now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (campaign_id, entity_type, name, aliases_json, description, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entity.CampaignID, kind, name, string(encoded), strings.TrimSpace(entity.Description), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("entity id: %w", err)
	}
	return s.GetEntity(ctx, id)
}

// AddAlias appends alias unless it already matches the name or an existing
// alias after normalization.
func (s *SQLiteStore) AddAlias(ctx context.Context, entityID int64, alias string) error {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return services.Wrap(services.ErrValidation, "campaign", "add alias", "alias is required", nil)
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		entity, err := getEntity(ctx, tx, entityID)
		if err != nil {
			return err
		}
		merged := dedupeAliases(entity.Name, append(entity.Aliases, alias))
		if len(merged) == len(entity.Aliases) {
			return nil
		}
		encoded, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode aliases: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE entities SET aliases_json = ?, updated_at = ? WHERE id = ?",
			string(encoded), storage.FormatTime(s.now()), entityID,
		); err != nil {
			return fmt.Errorf("update aliases: %w", err)
		}
		return nil
	})
}

// UpdateDescription replaces the entity description.
func (s *SQLiteStore) UpdateDescription(ctx context.Context, entityID int64, description string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE entities SET description = ?, updated_at = ? WHERE id = ?",
		strings.TrimSpace(description), storage.FormatTime(s.now()), entityID,
	)
	if err != nil {
		return fmt.Errorf("update description: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "campaign", "update description", fmt.Sprintf("entity %d not found", entityID), nil)
	}
	return nil
}

// ListRelationships returns relationships whose source or target is in entityIDs.
func (s *SQLiteStore) ListRelationships(ctx context.Context, entityIDs []int64) ([]Relationship, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	placeholders := storage.Placeholders(len(entityIDs))
	args := make([]any, 0, len(entityIDs)*2)
	for _, id := range entityIDs {
		args = append(args, id)
	}
	for _, id := range entityIDs {
		args = append(args, id)
	}
	rows, err := s.db.SQL().QueryContext(ctx,
		"SELECT "+relationshipColumns+" FROM relationships WHERE source_entity_id IN ("+placeholders+") OR target_entity_id IN ("+placeholders+") ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out = append(out, *rel)
	}
	return out, rows.Err()
}

// RelationshipExists reports whether the pair is already linked with the
// given type in either direction.
func (s *SQLiteStore) RelationshipExists(ctx context.Context, sourceID, targetID int64, relationshipType string) (bool, error) {
	var count int
	err := s.db.SQL().QueryRowContext(ctx,
		`SELECT COUNT(1) FROM relationships
         WHERE relationship_type = ?
           AND ((source_entity_id = ? AND target_entity_id = ?) OR (source_entity_id = ? AND target_entity_id = ?))`,
		normalizeRelationshipType(relationshipType), sourceID, targetID, targetID, sourceID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("relationship exists: %w", err)
	}
	return count > 0, nil
}

// CreateRelationship inserts a relationship, returning the existing row when
// the same directed pair and type are already stored.
func (s *SQLiteStore) CreateRelationship(ctx context.Context, rel NewRelationship) (*Relationship, error) {
	kind := normalizeRelationshipType(rel.Type)
	switch {
	case kind == "":
		return nil, services.Wrap(services.ErrValidation, "campaign", "create relationship", "relationship type is required", nil)
	case rel.SourceEntityID <= 0 || rel.TargetEntityID <= 0:
		return nil, services.Wrap(services.ErrValidation, "campaign", "create relationship", "source and target entities are required", nil)
	case rel.SourceEntityID == rel.TargetEntityID:
		return nil, services.Wrap(services.ErrValidation, "campaign", "create relationship", "an entity cannot relate to itself", nil)
	}

	var created *Relationship
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO relationships (campaign_id, source_entity_id, target_entity_id, relationship_type, description, created_at)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT (source_entity_id, target_entity_id, relationship_type) DO NOTHING`,
			rel.CampaignID, rel.SourceEntityID, rel.TargetEntityID, kind, strings.TrimSpace(rel.Description), storage.FormatTime(s.now()),
		); err != nil {
			return fmt.Errorf("insert relationship: %w", err)
		}
		row := tx.QueryRowContext(ctx,
			"SELECT "+relationshipColumns+" FROM relationships WHERE source_entity_id = ? AND target_entity_id = ? AND relationship_type = ?",
			rel.SourceEntityID, rel.TargetEntityID, kind,
		)
		var err error
		created, err = scanRelationship(row)
		if err != nil {
			return fmt.Errorf("load relationship: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func normalizeRelationshipType(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), "_"))
}

func dedupeAliases(name string, aliases []string) []string {
	seen := map[string]struct{}{detector.Normalize(name): {}}
	out := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		key := detector.Normalize(alias)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, alias)
	}
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*Entity, error) {
	var (
		entity     Entity
		aliasesRaw string
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(&entity.ID, &entity.CampaignID, &entity.Type, &entity.Name, &aliasesRaw, &entity.Description, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	if aliasesRaw != "" {
		if err := json.Unmarshal([]byte(aliasesRaw), &entity.Aliases); err != nil {
			return nil, fmt.Errorf("decode aliases for entity %d: %w", entity.ID, err)
		}
	}
	if created, err := storage.ParseTime(createdRaw); err == nil {
		entity.CreatedAt = created
	}
	if updated, err := storage.ParseTime(updatedRaw); err == nil {
		entity.UpdatedAt = updated
	}
	return &entity, nil
}

func scanRelationship(row scanner) (*Relationship, error) {
	var (
		rel        Relationship
		createdRaw string
	)
	if err := row.Scan(&rel.ID, &rel.CampaignID, &rel.SourceEntityID, &rel.TargetEntityID, &rel.Type, &rel.Description, &createdRaw); err != nil {
		return nil, err
	}
	if created, err := storage.ParseTime(createdRaw); err == nil {
		rel.CreatedAt = created
	}
	return &rel, nil
}
