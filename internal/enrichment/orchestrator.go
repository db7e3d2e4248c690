package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"loreweave/internal/campaign"
	"loreweave/internal/config"
	"loreweave/internal/jobs"
	"loreweave/internal/logging"
	"loreweave/internal/metrics"
	"loreweave/internal/services"
	"loreweave/internal/services/llm"
)

// Trigger statuses.
const (
	StatusStarted        = "started"
	StatusAlreadyRunning = "already_running"
)

// Cancel statuses.
const (
	StatusCancelled  = "cancelled"
	StatusNotRunning = "not_running"
)

// Run outcomes recorded in metrics.
const (
	outcomeCompleted   = "completed"
	outcomeEmpty       = "empty"
	outcomeFailed      = "failed"
	outcomeCancelled   = "cancelled"
	outcomeInterrupted = "interrupted"
)

const noEntitiesMessage = "No resolved entities to ground enrichment; resolve identification items first"

const reasonRunStateUnreadable = "Enrichment failed: run data could not be read"

var (
	errCancelled = errors.New("enrichment cancelled")
	errShutdown  = errors.New("enrichment interrupted by shutdown")
)

// modelError marks failures that came from the language model: a Generate
// error or output that could not be parsed.
type modelError struct {
	err error
}

func (e *modelError) Error() string { return e.err.Error() }

func (e *modelError) Unwrap() error { return e.err }

// TriggerResult describes the outcome of TriggerEnrichment.
type TriggerResult struct {
	Status      string
	EntityCount int
	Message     string
	RunID       string
}

// CancelResult describes the outcome of CancelEnrichment.
type CancelResult struct {
	Status string
}

// run is the in-memory handle of an active enrichment run.
type run struct {
	jobID     int64
	id        string
	cancelled atomic.Bool
}

// Orchestrator starts, tracks and cancels enrichment runs.
type Orchestrator struct {
	store         *jobs.Store
	entities      campaign.EntityStore
	relationships campaign.RelationshipStore
	generator     llm.Generator
	logger        *slog.Logger

	enabled      bool
	contextLimit int
	maxEntities  int

	mu       sync.Mutex
	runs     map[int64]*run
	stopping bool
	wg       sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New builds an orchestrator. generator may be nil when no language model is
// configured; triggers then fail with an invalid state error.
func New(cfg *config.Config, store *jobs.Store, entities campaign.EntityStore, relationships campaign.RelationshipStore, generator llm.Generator, logger *slog.Logger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:         store,
		entities:      entities,
		relationships: relationships,
		generator:     generator,
		logger:        logging.NewComponentLogger(logger, "enrichment"),
		enabled:       cfg.Enrichment.Enabled,
		contextLimit:  cfg.Enrichment.ContextCharLimit,
		maxEntities:   cfg.Enrichment.MaxEntities,
		runs:          make(map[int64]*run),
		baseCtx:       ctx,
		cancel:        cancel,
	}
}

// Start fails runs a previous process left behind.
func (o *Orchestrator) Start(ctx context.Context) error {
	n, err := o.store.ReclaimInterruptedEnrichment(ctx)
	if err != nil {
		return fmt.Errorf("reclaim enrichment runs: %w", err)
	}
	if n > 0 {
		logging.WarnWithContext(o.logger, "reclaimed interrupted enrichment runs", "enrichment_reclaimed",
			logging.Int64("jobs", n),
			logging.String(logging.FieldImpact, "affected jobs are marked failed; enrichment can be triggered again"),
		)
	}
	return nil
}

// Stop refuses new runs, interrupts active ones, and waits for them to record
// their outcome.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopping = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

// Active reports the number of runs in progress.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runs)
}

// reserve registers a run for jobID unless one is already active. Every
// successful reserve is paired with exactly one release, which Stop waits for.
func (o *Orchestrator) reserve(jobID int64) (*run, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopping {
		return nil, false, services.Wrap(services.ErrInvalidState, "enrichment", "trigger", "the service is shutting down", nil)
	}
	if _, busy := o.runs[jobID]; busy {
		return nil, false, nil
	}
	r := &run{jobID: jobID, id: uuid.NewString()}
	o.runs[jobID] = r
	o.wg.Add(1)
	return r, true, nil
}

func (o *Orchestrator) release(r *run) {
	o.mu.Lock()
	if current, ok := o.runs[r.jobID]; ok && current == r {
		delete(o.runs, r.jobID)
	}
	o.mu.Unlock()
	o.wg.Done()
}

// TriggerEnrichment starts an enrichment run for a job whose identification
// has finished. A job that already has an active run yields
// StatusAlreadyRunning without side effects.
func (o *Orchestrator) TriggerEnrichment(ctx context.Context, jobID int64) (TriggerResult, error) {
	if !o.enabled {
		return TriggerResult{}, services.Wrap(services.ErrInvalidState, "enrichment", "trigger", "enrichment is disabled in the configuration", nil)
	}
	if o.generator == nil {
		return TriggerResult{}, services.Wrap(services.ErrInvalidState, "enrichment", "trigger", "no language model is configured", nil)
	}

	r, ok, err := o.reserve(jobID)
	if err != nil {
		return TriggerResult{}, err
	}
	if !ok {
		return TriggerResult{Status: StatusAlreadyRunning}, nil
	}

	job, err := o.store.BeginEnrichment(ctx, jobID, r.id)
	if err != nil {
		o.release(r)
		if errors.Is(err, jobs.ErrEnrichmentRunning) {
			return TriggerResult{Status: StatusAlreadyRunning}, nil
		}
		return TriggerResult{}, err
	}
	ctx = services.WithPhase(services.WithJobID(ctx, jobID), string(jobs.PhaseEnrichment))
	logger := logging.WithContext(ctx, o.logger).With(logging.String("run_id", r.id))
	metrics.EnrichmentRunStarted()

	g, err := o.assembleGrounding(ctx, job)
	if err != nil {
		o.finishFailed(ctx, logger, r, "Enrichment failed: the grounding context could not be loaded", err)
		o.release(r)
		return TriggerResult{}, services.Wrap(services.ErrInternal, "enrichment", "assemble grounding", "", err)
	}

	if len(g.Entities) == 0 {
		defer o.release(r)
		applied, err := o.store.CompleteEnrichment(ctx, jobID, r.id, nil)
		if err != nil {
			o.finishFailed(ctx, logger, r, "Enrichment failed: results could not be saved", err)
			return TriggerResult{}, services.Wrap(services.ErrInternal, "enrichment", "complete", "", err)
		}
		outcome := outcomeEmpty
		if !applied {
			outcome = outcomeCancelled
		}
		metrics.EnrichmentRunFinished(outcome)
		logging.WarnWithContext(logger, "enrichment skipped", "enrichment_no_entities",
			logging.String(logging.FieldErrorHint, "resolve identification items to link entities, then trigger enrichment again"),
		)
		return TriggerResult{Status: StatusStarted, EntityCount: 0, Message: noEntitiesMessage, RunID: r.id}, nil
	}

	logger.Info("enrichment started",
		logging.String(logging.FieldEventType, "enrichment_started"),
		logging.Int("entities", len(g.Entities)),
		logging.Int("truncated_chars", g.Truncated),
	)
	go o.execute(logger, r, g)
	return TriggerResult{Status: StatusStarted, EntityCount: len(g.Entities), RunID: r.id}, nil
}

// CancelEnrichment stops the job's active run. It reports StatusNotRunning,
// without changing anything, when no run is active.
func (o *Orchestrator) CancelEnrichment(ctx context.Context, jobID int64) (CancelResult, error) {
	if _, err := o.store.GetJob(ctx, jobID); err != nil {
		return CancelResult{}, err
	}
	cancelled, err := o.store.RequestCancel(ctx, jobID)
	if err != nil {
		return CancelResult{}, err
	}
	if !cancelled {
		return CancelResult{Status: StatusNotRunning}, nil
	}
	o.mu.Lock()
	r := o.runs[jobID]
	o.mu.Unlock()
	if r != nil {
		r.cancelled.Store(true)
	}
	logging.WithContext(services.WithJobID(ctx, jobID), o.logger).Info("enrichment cancel requested",
		logging.String(logging.FieldEventType, "enrichment_cancel_requested"),
		logging.Bool("in_process", r != nil),
	)
	return CancelResult{Status: StatusCancelled}, nil
}

// checkpoint returns errShutdown or errCancelled when the run must stop.
func (o *Orchestrator) checkpoint(r *run) error {
	if o.baseCtx.Err() != nil {
		return errShutdown
	}
	if r.cancelled.Load() {
		return errCancelled
	}
	requested, err := o.store.IsCancelRequested(o.baseCtx, r.jobID, r.id)
	if err != nil {
		return fmt.Errorf("check cancellation: %w", err)
	}
	if requested {
		return errCancelled
	}
	return nil
}

func (o *Orchestrator) execute(logger *slog.Logger, r *run, g *grounding) {
	defer o.release(r)
	ctx := services.WithPhase(services.WithJobID(o.baseCtx, r.jobID), string(jobs.PhaseEnrichment))
	defer func() {
		if rec := recover(); rec != nil {
			o.finishFailed(ctx, logger, r, "Enrichment failed: an unexpected error occurred", fmt.Errorf("panic: %v", rec))
		}
	}()

	items, err := o.generate(ctx, r, g)
	if err == nil {
		err = o.checkpoint(r)
	}
	switch {
	case errors.Is(err, errCancelled):
		o.finishCancelled(ctx, logger, r)
		return
	case errors.Is(err, errShutdown), err != nil && o.baseCtx.Err() != nil:
		o.finishInterrupted(ctx, logger, r)
		return
	case err != nil:
		reason := reasonRunStateUnreadable
		var modelErr *modelError
		if errors.As(err, &modelErr) {
			reason = "Enrichment failed: " + llm.Classify(err).Describe()
		}
		o.finishFailed(ctx, logger, r, reason, err)
		return
	}

	applied, err := o.store.CompleteEnrichment(context.WithoutCancel(ctx), r.jobID, r.id, items)
	if err != nil {
		o.finishFailed(ctx, logger, r, "Enrichment failed: results could not be saved", err)
		return
	}
	if !applied {
		o.finishCancelled(ctx, logger, r)
		return
	}
	metrics.EnrichmentRunFinished(outcomeCompleted)
	logger.Info("enrichment completed",
		logging.String(logging.FieldEventType, "enrichment_completed"),
		logging.Int("suggestions", len(items)),
	)
}

// generate issues the generate calls the grounding supports and collects all
// parsed suggestions. The first error aborts the run.
func (o *Orchestrator) generate(ctx context.Context, r *run, g *grounding) ([]jobs.NewItem, error) {
	tasks := []task{taskDescriptions, taskLogEntries}
	if len(g.Entities) >= 2 {
		tasks = append(tasks, taskRelationships)
	}
	var items []jobs.NewItem
	for _, t := range tasks {
		if err := o.checkpoint(r); err != nil {
			return nil, err
		}
		raw, err := o.generator.Generate(ctx, systemPrompt(t), userPrompt(t, g))
		if err != nil {
			return nil, &modelError{fmt.Errorf("%s: %w", t, err)}
		}
		var parsed []jobs.NewItem
		switch t {
		case taskDescriptions:
			parsed, err = parseDescriptions(raw, g)
		case taskLogEntries:
			parsed, err = parseLogEntries(raw, g)
		case taskRelationships:
			parsed, err = o.parseRelationships(ctx, raw, g)
		}
		if errors.Is(err, llm.ErrMalformedOutput) {
			return nil, &modelError{err}
		}
		if err != nil {
			return nil, err
		}
		items = append(items, parsed...)
	}
	return items, nil
}

// finishCancelled discards the run's results. A job the run still owns is
// moved to cancelled so it cannot stay running.
func (o *Orchestrator) finishCancelled(ctx context.Context, logger *slog.Logger, r *run) {
	metrics.EnrichmentRunFinished(outcomeCancelled)
	if _, err := o.store.CancelRun(context.WithoutCancel(ctx), r.jobID, r.id); err != nil {
		logging.ErrorWithContext(logger, "record enrichment cancellation", "enrichment_cancel_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the job is reclaimed as failed on next start"),
		)
	}
	logger.Info("enrichment cancelled; results discarded",
		logging.String(logging.FieldEventType, "enrichment_cancelled"),
	)
}

func (o *Orchestrator) finishInterrupted(ctx context.Context, logger *slog.Logger, r *run) {
	metrics.EnrichmentRunFinished(outcomeInterrupted)
	if _, err := o.store.FailEnrichment(context.WithoutCancel(ctx), r.jobID, r.id, jobs.ReasonEnrichmentShutdown); err != nil {
		logging.ErrorWithContext(logger, "record enrichment interruption", "enrichment_fail_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the job is reclaimed as failed on next start"),
		)
		return
	}
	logging.WarnWithContext(logger, "enrichment interrupted by shutdown", "enrichment_interrupted",
		logging.String(logging.FieldImpact, "no suggestions were saved for this run"),
	)
}

func (o *Orchestrator) finishFailed(ctx context.Context, logger *slog.Logger, r *run, reason string, cause error) {
	metrics.EnrichmentRunFinished(outcomeFailed)
	logging.ErrorWithContext(logger, "enrichment failed", "enrichment_failed",
		logging.Error(cause),
		logging.String("failure_kind", string(llm.Classify(cause))),
		logging.String("failure_reason", reason),
	)
	if _, err := o.store.FailEnrichment(context.WithoutCancel(ctx), r.jobID, r.id, reason); err != nil {
		logging.ErrorWithContext(logger, "record enrichment failure", "enrichment_fail_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the job is reclaimed as failed on next start"),
		)
	}
}
