package jobs

import (
	"context"
	"database/sql"
	"fmt"

	"loreweave/internal/detector"
	"loreweave/internal/services"
)

// applyResolutionChange is the only writer of the resolution counters. delta
// is added to the phase's resolved counter and the result clamped to
// [0, total].
func applyResolutionChange(ctx context.Context, tx *sql.Tx, jobID int64, phase Phase, delta int, now string) error {
	var query string
	switch phase {
	case PhaseIdentification:
		query = `UPDATE analysis_jobs
                 SET resolved_items = MAX(0, MIN(total_items, resolved_items + ?)), updated_at = ?
                 WHERE id = ?`
	case PhaseEnrichment:
		query = `UPDATE analysis_jobs
                 SET enrichment_resolved = MAX(0, MIN(enrichment_total, enrichment_resolved + ?)), updated_at = ?
                 WHERE id = ?`
	default:
		return fmt.Errorf("apply resolution change: unknown phase %q", phase)
	}
	if _, err := tx.ExecContext(ctx, query, delta, now, jobID); err != nil {
		return fmt.Errorf("apply resolution change: %w", err)
	}
	return nil
}

// jobIDForItem resolves the owning job so the caller can take its lock.
func (s *Store) jobIDForItem(ctx context.Context, itemID int64) (int64, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return 0, err
	}
	return item.JobID, nil
}

// ResolveItem moves a pending item to resolution and increments the owning
// job's counter for the item's phase. resolvedEntityID is recorded as given.
func (s *Store) ResolveItem(ctx context.Context, itemID int64, resolution Resolution, resolvedEntityID *int64) (*Item, error) {
	if resolution == ResolutionPending {
		return nil, services.Wrap(services.ErrValidation, "jobs", "resolve item", "resolution must not be pending", nil)
	}
	jobID, err := s.jobIDForItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(jobID)
	defer unlock()

	var updated *Item
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		item, err := getItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if !item.IsPending() {
			return services.Wrap(services.ErrAlreadyResolved, "jobs", "resolve item",
				fmt.Sprintf("item %d is already %s", itemID, item.Resolution), nil)
		}
		now := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			"UPDATE analysis_items SET resolution = ?, resolved_entity_id = ?, resolved_at = ? WHERE id = ?",
			resolution, nullableInt64(resolvedEntityID), now, itemID,
		); err != nil {
			return fmt.Errorf("resolve item: %w", err)
		}
		if err := applyResolutionChange(ctx, tx, item.JobID, item.Phase, 1, now); err != nil {
			return err
		}
		updated, err = getItem(ctx, tx, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RevertItem returns a resolved item to pending and decrements the counter.
func (s *Store) RevertItem(ctx context.Context, itemID int64) (*Item, error) {
	jobID, err := s.jobIDForItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(jobID)
	defer unlock()

	var updated *Item
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		item, err := getItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if item.IsPending() {
			return services.Wrap(services.ErrNotResolved, "jobs", "revert item",
				fmt.Sprintf("item %d is still pending", itemID), nil)
		}
		now := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			"UPDATE analysis_items SET resolution = ?, resolved_entity_id = NULL, resolved_at = NULL WHERE id = ?",
			ResolutionPending, itemID,
		); err != nil {
			return fmt.Errorf("revert item: %w", err)
		}
		if err := applyResolutionChange(ctx, tx, item.JobID, item.Phase, -1, now); err != nil {
			return err
		}
		updated, err = getItem(ctx, tx, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// BatchResolve resolves every pending item of one type in a job in a single
// transaction. With requireEntity, items lacking an entity are skipped; an
// accepted item links to its own entity. Calling it again resolves nothing.
func (s *Store) BatchResolve(ctx context.Context, jobID int64, detectionType detector.Type, resolution Resolution, requireEntity bool) (int, error) {
	if resolution == ResolutionPending {
		return 0, services.Wrap(services.ErrValidation, "jobs", "batch resolve", "resolution must not be pending", nil)
	}
	phase, err := PhaseOf(detectionType)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "jobs", "batch resolve", err.Error(), nil)
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return 0, err
	}
	unlock := s.locks.Lock(jobID)
	defer unlock()

	var count int
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		query := `UPDATE analysis_items
                  SET resolution = ?,
                      resolved_entity_id = CASE WHEN ? = 'accepted' THEN entity_id ELSE NULL END,
                      resolved_at = ?
                  WHERE job_id = ? AND detection_type = ? AND resolution = ?`
		if requireEntity {
			query += " AND entity_id IS NOT NULL"
		}
		res, err := tx.ExecContext(ctx, query, resolution, resolution, now, jobID, detectionType, ResolutionPending)
		if err != nil {
			return fmt.Errorf("batch resolve: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		count = int(affected)
		if count == 0 {
			return nil
		}
		return applyResolutionChange(ctx, tx, jobID, phase, count, now)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PendingItemIDs lists pending items of one type in review order.
func (s *Store) PendingItemIDs(ctx context.Context, jobID int64, detectionType detector.Type, requireEntity bool) ([]int64, error) {
	items, err := s.ListItems(ctx, jobID, ItemFilter{Resolution: ResolutionPending, DetectionType: detectionType})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if requireEntity && item.EntityID == nil {
			continue
		}
		ids = append(ids, item.ID)
	}
	return ids, nil
}
