package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"loreweave/internal/services"
	"loreweave/internal/storage"
)

const jobColumns = "id, campaign_id, source_table, source_id, source_field, status, total_items, resolved_items, enrichment_total, enrichment_resolved, phases, current_phase, failure_reason, cancel_requested, enrichment_run_id, source_content, created_at, updated_at"

// Store persists jobs and items.
type Store struct {
	db    *storage.DB
	locks   *keyedMutex[int64]
	sources *keyedMutex[SourceKey]
	now     func() time.Time
}

// NewStore wraps an open database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db, locks: newKeyedMutex[int64](), sources: newKeyedMutex[SourceKey](), now: time.Now}
}

func (s *Store) timestamp() string {
	return storage.FormatTime(s.now())
}

func notFoundJob(op string, id int64) error {
	return services.Wrap(services.ErrNotFound, "jobs", op, fmt.Sprintf("job %d not found", id), nil)
}

// CreateJob inserts a job in status created.
func (s *Store) CreateJob(ctx context.Context, spec NewJob) (*Job, error) {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_jobs (campaign_id, source_table, source_id, source_field, status, source_content, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.CampaignID, spec.SourceTable, spec.SourceID, spec.SourceField, StatusCreated, spec.Content, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	return getJob(ctx, s.db.SQL(), id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getJob(ctx context.Context, q queryRower, id int64) (*Job, error) {
	job, err := scanJob(q.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM analysis_jobs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundJob("get job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.CampaignID != 0 {
		clauses = append(clauses, "campaign_id = ?")
		args = append(args, filter.CampaignID)
	}
	if filter.SourceTable != "" {
		clauses = append(clauses, "source_table = ?")
		args = append(args, filter.SourceTable)
	}
	if filter.SourceID != 0 {
		clauses = append(clauses, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if filter.SourceField != "" {
		clauses = append(clauses, "source_field = ?")
		args = append(args, filter.SourceField)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	query := "SELECT " + jobColumns + " FROM analysis_jobs"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// LatestJobForSource returns the newest job for a source field, or nil.
func (s *Store) LatestJobForSource(ctx context.Context, campaignID int64, table string, sourceID int64, field string) (*Job, error) {
	list, err := s.ListJobs(ctx, JobFilter{
		CampaignID:  campaignID,
		SourceTable: table,
		SourceID:    sourceID,
		SourceField: field,
		Limit:       1,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ClaimJobForSource returns the latest job for the source field, creating a
// new one when none exists or the latest failed identification. Lookup and
// insert share one immediate transaction.
func (s *Store) ClaimJobForSource(ctx context.Context, spec NewJob) (*Job, error) {
	var job *Job
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		latest, err := scanJob(tx.QueryRowContext(ctx,
			"SELECT "+jobColumns+` FROM analysis_jobs
             WHERE campaign_id = ? AND source_table = ? AND source_id = ? AND source_field = ?
             ORDER BY id DESC LIMIT 1`,
			spec.CampaignID, spec.SourceTable, spec.SourceID, spec.SourceField,
		))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			latest = nil
		case err != nil:
			return fmt.Errorf("find job for source: %w", err)
		}
		if latest != nil && (latest.Status != StatusFailed || CanTransition(latest.Status, StatusRunning, latest.CurrentPhase)) {
			job = latest
			return nil
		}
		now := s.timestamp()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO analysis_jobs (campaign_id, source_table, source_id, source_field, status, source_content, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			spec.CampaignID, spec.SourceTable, spec.SourceID, spec.SourceField, StatusCreated, spec.Content, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("job id: %w", err)
		}
		job, err = getJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// BeginIdentification moves a job into running/identification and records the
// content being analyzed.
func (s *Store) BeginIdentification(ctx context.Context, jobID int64, content string) (*Job, error) {
	unlock := s.locks.Lock(jobID)
	defer unlock()

	var job *Job
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := getJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		switch {
		case current.EnrichmentRunning():
			return services.Wrap(services.ErrInvalidState, "jobs", "begin identification", "enrichment is running for this job", nil)
		case current.Status == StatusRunning:
			return services.Wrap(services.ErrInvalidState, "jobs", "begin identification", "analysis is already running for this job", nil)
		case !CanTransition(current.Status, StatusRunning, current.CurrentPhase):
			return services.Wrap(services.ErrInvalidState, "jobs", "begin identification",
				fmt.Sprintf("job in status %s cannot be analyzed again", current.Status), nil)
		}
		phases := appendPhase(current.Phases, PhaseIdentification)
		if _, err := tx.ExecContext(ctx,
			`UPDATE analysis_jobs
             SET status = ?, current_phase = ?, phases = ?, failure_reason = NULL, cancel_requested = 0,
                 source_content = ?, updated_at = ?
             WHERE id = ?`,
			StatusRunning, PhaseIdentification, encodePhases(phases), content, s.timestamp(), jobID,
		); err != nil {
			return fmt.Errorf("begin identification: %w", err)
		}
		job, err = getJob(ctx, tx, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

type spanKey struct {
	text  string
	start int
	end   int
}

func itemSpanKey(text string, start, end *int) spanKey {
	key := spanKey{text: text, start: -1, end: -1}
	if start != nil {
		key.start = *start
	}
	if end != nil {
		key.end = *end
	}
	return key
}

// RecordDetections upserts identification items, prunes pending items the
// latest scan no longer produces, recounts totals, and completes the job.
// Resolved items are kept as review history. The returned items are those
// matching the supplied detections.
func (s *Store) RecordDetections(ctx context.Context, jobID int64, items []NewItem) ([]*Item, *Job, error) {
	unlock := s.locks.Lock(jobID)
	defer unlock()

	var (
		current []*Item
		job     *Job
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := getJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if existing.Status != StatusRunning || existing.CurrentPhase == nil || *existing.CurrentPhase != PhaseIdentification {
			return services.Wrap(services.ErrInvalidState, "jobs", "record detections", "job is not running identification", nil)
		}

		now := s.timestamp()
		keys := make(map[spanKey]struct{}, len(items))
		for _, item := range items {
			keys[itemSpanKey(item.MatchedText, item.PositionStart, item.PositionEnd)] = struct{}{}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO analysis_items (job_id, phase, detection_type, matched_text, entity_id, similarity, context_snippet,
                     position_start, position_end, resolution, suggested_content, created_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                 ON CONFLICT (job_id, phase, matched_text, position_start, position_end) DO UPDATE SET
                     detection_type = excluded.detection_type,
                     entity_id = excluded.entity_id,
                     similarity = excluded.similarity,
                     context_snippet = excluded.context_snippet
                 WHERE analysis_items.resolution = 'pending'`,
				jobID, PhaseIdentification, item.DetectionType, item.MatchedText, nullableInt64(item.EntityID),
				nullableFloat(item.Similarity), item.ContextSnippet, nullableInt(item.PositionStart), nullableInt(item.PositionEnd),
				ResolutionPending, nullableJSON(item.SuggestedContent), now,
			); err != nil {
				return fmt.Errorf("upsert item: %w", err)
			}
		}

		stored, err := listItems(ctx, tx, jobID, ItemFilter{Phase: PhaseIdentification})
		if err != nil {
			return err
		}
		var stale []any
		for _, item := range stored {
			_, keep := keys[itemSpanKey(item.MatchedText, item.PositionStart, item.PositionEnd)]
			switch {
			case keep:
				current = append(current, item)
			case item.IsPending():
				stale = append(stale, item.ID)
			}
		}
		if len(stale) > 0 {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM analysis_items WHERE id IN ("+storage.Placeholders(len(stale))+")", stale...,
			); err != nil {
				return fmt.Errorf("prune stale items: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE analysis_jobs
             SET total_items = (SELECT COUNT(1) FROM analysis_items WHERE job_id = ? AND phase = ?),
                 resolved_items = (SELECT COUNT(1) FROM analysis_items WHERE job_id = ? AND phase = ? AND resolution != ?),
                 status = ?, current_phase = NULL, updated_at = ?
             WHERE id = ?`,
			jobID, PhaseIdentification,
			jobID, PhaseIdentification, ResolutionPending,
			StatusCompleted, now, jobID,
		); err != nil {
			return fmt.Errorf("complete identification: %w", err)
		}
		job, err = getJob(ctx, tx, jobID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return current, job, nil
}

// FailJob marks a running job failed, keeping its current phase as the record
// of where it failed. It reports false when the job was not running.
func (s *Store) FailJob(ctx context.Context, jobID int64, reason string) (bool, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Analysis failed"
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE analysis_jobs SET status = ?, failure_reason = ?, updated_at = ? WHERE id = ? AND status = ?",
		StatusFailed, reason, s.timestamp(), jobID, StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReclaimInterruptedAnalysis fails jobs left running identification by a
// previous process.
func (s *Store) ReclaimInterruptedAnalysis(ctx context.Context) (int64, error) {
	return s.reclaim(ctx, PhaseIdentification, ReasonAnalysisRestart)
}

// ReclaimInterruptedEnrichment fails jobs left running enrichment by a
// previous process.
func (s *Store) ReclaimInterruptedEnrichment(ctx context.Context) (int64, error) {
	return s.reclaim(ctx, PhaseEnrichment, ReasonEnrichmentRestart)
}

func (s *Store) reclaim(ctx context.Context, phase Phase, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE analysis_jobs SET status = ?, failure_reason = ?, updated_at = ? WHERE status = ? AND current_phase = ?",
		StatusFailed, reason, s.timestamp(), StatusRunning, phase,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim %s jobs: %w", phase, err)
	}
	return res.RowsAffected()
}

func appendPhase(phases []Phase, phase Phase) []Phase {
	for _, p := range phases {
		if p == phase {
			return phases
		}
	}
	return append(phases, phase)
}

func encodePhases(phases []Phase) string {
	parts := make([]string, len(phases))
	for i, p := range phases {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

func decodePhases(raw string) []Phase {
	var out []Phase
	for _, part := range strings.Split(raw, ",") {
		if phase, err := ParsePhase(part); err == nil {
			out = appendPhase(out, phase)
		}
	}
	return out
}

func sortItems(items []*Item) {
	phaseRank := func(p Phase) int {
		if p == PhaseIdentification {
			return 0
		}
		return 1
	}
	position := func(i *Item) int {
		if i.PositionStart == nil {
			return -1
		}
		return *i.PositionStart
	}
	sort.SliceStable(items, func(a, b int) bool {
		x, y := items[a], items[b]
		if rx, ry := phaseRank(x.Phase), phaseRank(y.Phase); rx != ry {
			return rx < ry
		}
		if px, py := position(x), position(y); px != py {
			return px < py
		}
		if qx, qy := x.DetectionType.Priority(), y.DetectionType.Priority(); qx != qy {
			return qx > qy
		}
		return x.ID < y.ID
	})
}
