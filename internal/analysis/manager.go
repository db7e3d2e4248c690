package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"loreweave/internal/campaign"
	"loreweave/internal/config"
	"loreweave/internal/detector"
	"loreweave/internal/jobs"
	"loreweave/internal/logging"
	"loreweave/internal/metrics"
	"loreweave/internal/services"
)

const (
	reasonScanFailed    = "Analysis failed: the content could not be scanned"
	reasonPersistFailed = "Analysis failed: detections could not be saved"
)

// Request identifies the content field to analyze.
type Request struct {
	CampaignID  int64
	SourceTable string
	SourceID    int64
	SourceField string
	Content     string
	// ExcludeEntityIDs are skipped during fuzzy scanning, typically the
	// record that owns the content.
	ExcludeEntityIDs []int64
}

// Manager creates and tracks analysis jobs.
type Manager struct {
	store      *jobs.Store
	entities   campaign.EntityStore
	detector   *detector.Detector
	maxContent int
	logger     *slog.Logger
}

// NewManager wires the job store, entity source, and detector thresholds.
func NewManager(cfg *config.Config, store *jobs.Store, entities campaign.EntityStore, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		entities: entities,
		detector: detector.New(detector.Options{
			SimilarityFloor:      cfg.Analysis.SimilarityFloor,
			AliasCeiling:         cfg.Analysis.AliasCeiling,
			MisspellingMaxEdits:  cfg.Analysis.MisspellingMaxEdits,
			MisspellingMinLength: cfg.Analysis.MisspellingMinLength,
			SnippetRadius:        cfg.Analysis.SnippetRadius,
		}),
		maxContent: cfg.Analysis.MaxContentChars,
		logger:     logging.NewComponentLogger(logger, "analysis"),
	}
}

func (r Request) validate(maxContent int) error {
	var problems []string
	if r.CampaignID <= 0 {
		problems = append(problems, "campaignId is required")
	}
	if strings.TrimSpace(r.SourceTable) == "" {
		problems = append(problems, "sourceTable is required")
	}
	if r.SourceID <= 0 {
		problems = append(problems, "sourceId is required")
	}
	if strings.TrimSpace(r.SourceField) == "" {
		problems = append(problems, "sourceField is required")
	}
	if maxContent > 0 {
		if n := utf8.RuneCountInString(r.Content); n > maxContent {
			problems = append(problems, fmt.Sprintf("content is %d characters, the limit is %d", n, maxContent))
		}
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrValidation, "analysis", "trigger", strings.Join(problems, "; "), nil)
	}
	return nil
}

// TriggerAnalysis scans the content and returns the job with the items for
// the current detections, ordered by position.
func (m *Manager) TriggerAnalysis(ctx context.Context, req Request) (*jobs.Job, []*jobs.Item, error) {
	req.SourceTable = strings.TrimSpace(req.SourceTable)
	req.SourceField = strings.TrimSpace(req.SourceField)
	if err := req.validate(m.maxContent); err != nil {
		return nil, nil, err
	}

	// Concurrent triggers for one source run one after another against the
	// same job.
	unlock := m.store.LockSource(jobs.SourceKey{
		CampaignID:  req.CampaignID,
		SourceTable: req.SourceTable,
		SourceID:    req.SourceID,
		SourceField: req.SourceField,
	})
	defer unlock()

	known, err := m.knownEntities(ctx, req.CampaignID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrInternal, "analysis", "load entities", "", err)
	}

	job, err := m.claimJob(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	ctx = services.WithPhase(services.WithJobID(ctx, job.ID), string(jobs.PhaseIdentification))
	logger := logging.WithContext(ctx, m.logger)

	detections, err := m.safeDetect(req.Content, known, req.ExcludeEntityIDs)
	if err != nil {
		m.fail(ctx, logger, job.ID, reasonScanFailed, err)
		return nil, nil, services.Wrap(services.ErrInternal, "analysis", "detect", "", err)
	}

	newItems := make([]jobs.NewItem, 0, len(detections))
	counts := make(map[detector.Type]int)
	for _, d := range detections {
		newItems = append(newItems, jobs.ItemFromDetection(d))
		counts[d.Type]++
	}
	jobID := job.ID
	items, job, err := m.store.RecordDetections(ctx, jobID, newItems)
	if err != nil {
		m.fail(ctx, logger, jobID, reasonPersistFailed, err)
		return nil, nil, services.Wrap(services.ErrInternal, "analysis", "record detections", "", err)
	}

	metrics.IncreaseAnalysisJobsMetric(string(jobs.StatusCompleted))
	for detectionType, n := range counts {
		metrics.AddDetectionsMetric(string(detectionType), n)
	}
	logger.Info("analysis completed",
		logging.String(logging.FieldEventType, "analysis_completed"),
		logging.Int("detections", len(detections)),
		logging.Int("total_items", job.TotalItems),
		logging.Int("resolved_items", job.ResolvedItems),
	)
	return job, items, nil
}

// claimJob reuses the latest job for the source unless its identification
// failed, then moves it to running/identification. Callers hold the source
// lock.
func (m *Manager) claimJob(ctx context.Context, req Request) (*jobs.Job, error) {
	latest, err := m.store.ClaimJobForSource(ctx, jobs.NewJob{
		CampaignID:  req.CampaignID,
		SourceTable: req.SourceTable,
		SourceID:    req.SourceID,
		SourceField: req.SourceField,
		Content:     req.Content,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "analysis", "claim job", "", err)
	}
	job, err := m.store.BeginIdentification(ctx, latest.ID, req.Content)
	if err != nil {
		if services.Kind(err) == "internal" {
			return nil, services.Wrap(services.ErrInternal, "analysis", "begin identification", "", err)
		}
		return nil, err
	}
	return job, nil
}

func (m *Manager) knownEntities(ctx context.Context, campaignID int64) ([]detector.KnownEntity, error) {
	entities, err := m.entities.ListEntities(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	known := make([]detector.KnownEntity, 0, len(entities))
	for _, entity := range entities {
		known = append(known, detector.KnownEntity{ID: entity.ID, Name: entity.Name, Aliases: entity.Aliases})
	}
	return known, nil
}

func (m *Manager) safeDetect(content string, known []detector.KnownEntity, exclude []int64) (detections []detector.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return m.detector.Detect(content, known, exclude), nil
}

func (m *Manager) fail(ctx context.Context, logger *slog.Logger, jobID int64, reason string, cause error) {
	metrics.IncreaseAnalysisJobsMetric(string(jobs.StatusFailed))
	logging.ErrorWithContext(logger, "analysis failed", "analysis_failed",
		logging.Error(cause),
		logging.String("failure_reason", reason),
	)
	if _, err := m.store.FailJob(context.WithoutCancel(ctx), jobID, reason); err != nil {
		logging.ErrorWithContext(logger, "record analysis failure", "analysis_fail_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the job may remain running until the next restart"),
		)
	}
}

// GetJob returns a job by id.
func (m *Manager) GetJob(ctx context.Context, id int64) (*jobs.Job, error) {
	return m.store.GetJob(ctx, id)
}

// ListJobs returns jobs newest first.
func (m *Manager) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.Job, error) {
	return m.store.ListJobs(ctx, filter)
}

// ListJobItems returns a job's items, optionally filtered.
func (m *Manager) ListJobItems(ctx context.Context, jobID int64, filter jobs.ItemFilter) ([]*jobs.Item, error) {
	return m.store.ListItems(ctx, jobID, filter)
}

// ReclaimInterrupted fails jobs a previous process left mid-identification.
func (m *Manager) ReclaimInterrupted(ctx context.Context) (int64, error) {
	n, err := m.store.ReclaimInterruptedAnalysis(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.WarnWithContext(m.logger, "reclaimed interrupted analysis jobs", "analysis_reclaimed",
			logging.Int64("jobs", n),
			logging.String(logging.FieldImpact, "affected jobs are marked failed; trigger analysis again"),
		)
	}
	return n, nil
}
