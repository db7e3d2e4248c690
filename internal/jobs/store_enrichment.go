package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"loreweave/internal/services"
)

// ErrEnrichmentRunning reports that another run already owns the job.
var ErrEnrichmentRunning = errors.New("enrichment already running")

// BeginEnrichment claims the job for a new enrichment run identified by runID.
// Only jobs whose identification finished (completed or cancelled, or failed
// during a previous enrichment) qualify.
func (s *Store) BeginEnrichment(ctx context.Context, jobID int64, runID string) (*Job, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, services.Wrap(services.ErrValidation, "jobs", "begin enrichment", "run id is required", nil)
	}
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
			return services.Wrap(services.ErrInvalidState, "jobs", "begin enrichment", "", ErrEnrichmentRunning)
		case current.Status == StatusCreated || current.Status == StatusRunning || !current.HasPhase(PhaseIdentification):
			return services.Wrap(services.ErrInvalidState, "jobs", "begin enrichment", "analysis has not completed for this job", nil)
		case !CanTransition(current.Status, StatusRunning, current.CurrentPhase):
			return services.Wrap(services.ErrInvalidState, "jobs", "begin enrichment",
				fmt.Sprintf("job in status %s cannot be enriched", current.Status), nil)
		}
		phases := appendPhase(current.Phases, PhaseEnrichment)
		res, err := tx.ExecContext(ctx,
			`UPDATE analysis_jobs
             SET status = ?, current_phase = ?, phases = ?, enrichment_run_id = ?, cancel_requested = 0,
                 failure_reason = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusRunning, PhaseEnrichment, encodePhases(phases), runID, s.timestamp(), jobID, current.Status,
		)
		if err != nil {
			return fmt.Errorf("begin enrichment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return services.Wrap(services.ErrInvalidState, "jobs", "begin enrichment", "job changed concurrently", nil)
		}
		job, err = getJob(ctx, tx, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// RequestCancel sets the cancel bit and moves a job running enrichment to
// cancelled. It reports false, changing nothing, when no run is active.
func (s *Store) RequestCancel(ctx context.Context, jobID int64) (bool, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_jobs
         SET status = ?, cancel_requested = 1, current_phase = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND current_phase = ?`,
		StatusCancelled, s.timestamp(), jobID, StatusRunning, PhaseEnrichment,
	)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CancelRun moves a job still running enrichment under runID to cancelled.
// It reports false when the run no longer owns the job.
func (s *Store) CancelRun(ctx context.Context, jobID int64, runID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_jobs
         SET status = ?, cancel_requested = 1, current_phase = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND current_phase = ? AND enrichment_run_id = ?`,
		StatusCancelled, s.timestamp(), jobID, StatusRunning, PhaseEnrichment, runID,
	)
	if err != nil {
		return false, fmt.Errorf("cancel run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsCancelRequested reports whether the run should stop: the cancel bit is
// set, the job left running, or another run took over.
func (s *Store) IsCancelRequested(ctx context.Context, jobID int64, runID string) (bool, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.CancelRequested || !job.EnrichmentRunning() || job.EnrichmentRunID != runID, nil
}

// CompleteEnrichment replaces the job's pending enrichment items with items
// and completes the job, all in one transaction. The update is conditional on
// the run still owning the job with no cancel requested; when that no longer
// holds nothing is written and false is returned.
func (s *Store) CompleteEnrichment(ctx context.Context, jobID int64, runID string, items []NewItem) (bool, error) {
	unlock := s.locks.Lock(jobID)
	defer unlock()

	var applied bool
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		res, err := tx.ExecContext(ctx,
			`UPDATE analysis_jobs SET status = ?, current_phase = NULL, updated_at = ?
             WHERE id = ? AND status = ? AND current_phase = ? AND enrichment_run_id = ? AND cancel_requested = 0`,
			StatusCompleted, now, jobID, StatusRunning, PhaseEnrichment, runID,
		)
		if err != nil {
			return fmt.Errorf("complete enrichment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM analysis_items WHERE job_id = ? AND phase = ? AND resolution = ?",
			jobID, PhaseEnrichment, ResolutionPending,
		); err != nil {
			return fmt.Errorf("clear pending suggestions: %w", err)
		}
		for _, item := range items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO analysis_items (job_id, phase, detection_type, matched_text, entity_id, similarity,
                     context_snippet, resolution, suggested_content, created_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				jobID, PhaseEnrichment, item.DetectionType, item.MatchedText, nullableInt64(item.EntityID),
				nullableFloat(item.Similarity), item.ContextSnippet, ResolutionPending, nullableJSON(item.SuggestedContent), now,
			); err != nil {
				return fmt.Errorf("insert suggestion: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE analysis_jobs
             SET enrichment_total = (SELECT COUNT(1) FROM analysis_items WHERE job_id = ? AND phase = ?),
                 enrichment_resolved = (SELECT COUNT(1) FROM analysis_items WHERE job_id = ? AND phase = ? AND resolution != ?)
             WHERE id = ?`,
			jobID, PhaseEnrichment, jobID, PhaseEnrichment, ResolutionPending, jobID,
		); err != nil {
			return fmt.Errorf("recount suggestions: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// FailEnrichment records a failed run. It reports false when the run no
// longer owns the job (cancelled or superseded).
func (s *Store) FailEnrichment(ctx context.Context, jobID int64, runID, reason string) (bool, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Enrichment failed"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_jobs SET status = ?, failure_reason = ?, updated_at = ?
         WHERE id = ? AND status = ? AND current_phase = ? AND enrichment_run_id = ?`,
		StatusFailed, reason, s.timestamp(), jobID, StatusRunning, PhaseEnrichment, runID,
	)
	if err != nil {
		return false, fmt.Errorf("fail enrichment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
