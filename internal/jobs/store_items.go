package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"loreweave/internal/services"
)

// GetItem fetches an item by id.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	return getItem(ctx, s.db.SQL(), id)
}

func getItem(ctx context.Context, q queryRower, id int64) (*Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM analysis_items WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "jobs", "get item", fmt.Sprintf("item %d not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns a job's items: identification items by position, then
// enrichment items in creation order.
func (s *Store) ListItems(ctx context.Context, jobID int64, filter ItemFilter) ([]*Item, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return listItems(ctx, s.db.SQL(), jobID, filter)
}

// PendingFilter scopes PendingCount. CampaignID is required.
type PendingFilter struct {
	CampaignID  int64
	SourceTable string
	SourceID    int64
}

// PendingCount counts unresolved items across a campaign's jobs.
func (s *Store) PendingCount(ctx context.Context, filter PendingFilter) (int, error) {
	query := `SELECT COUNT(1) FROM analysis_items i
              JOIN analysis_jobs j ON j.id = i.job_id
              WHERE i.resolution = ? AND j.campaign_id = ?`
	args := []any{ResolutionPending, filter.CampaignID}
	if filter.SourceTable != "" {
		query += " AND j.source_table = ?"
		args = append(args, filter.SourceTable)
	}
	if filter.SourceID != 0 {
		query += " AND j.source_id = ?"
		args = append(args, filter.SourceID)
	}
	var count int
	if err := s.db.SQL().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return count, nil
}
