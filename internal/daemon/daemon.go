package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"loreweave/internal/analysis"
	"loreweave/internal/api"
	"loreweave/internal/campaign"
	"loreweave/internal/config"
	"loreweave/internal/enrichment"
	"loreweave/internal/jobs"
	"loreweave/internal/logging"
	"loreweave/internal/review"
	"loreweave/internal/services/llm"
	"loreweave/internal/storage"
)

// Daemon owns the service lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	db           *storage.DB
	analysis     *analysis.Manager
	orchestrator *enrichment.Orchestrator
	service      *api.Service
	server       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies. generator may be nil
// when no language model is configured; enrichment is then unavailable.
func New(cfg *config.Config, db *storage.DB, generator llm.Generator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("daemon requires config and database")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store := jobs.NewStore(db)
	entities := campaign.NewSQLiteStore(db)
	manager := analysis.NewManager(cfg, store, entities, logger)
	reviewer := review.NewService(store, entities, entities, logger)
	orchestrator := enrichment.New(cfg, store, entities, entities, generator, logger)

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		db:           db,
		analysis:     manager,
		orchestrator: orchestrator,
		service:      api.NewService(manager, reviewer, orchestrator, entities),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, reclaims interrupted jobs and starts the
// API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another loreweave daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	fail := func(err error) error {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}
	if _, err := d.analysis.ReclaimInterrupted(d.ctx); err != nil {
		return fail(fmt.Errorf("reclaim analysis jobs: %w", err))
	}
	if err := d.orchestrator.Start(d.ctx); err != nil {
		return fail(err)
	}
	if err := d.server.start(d.ctx); err != nil {
		return fail(err)
	}

	d.running.Store(true)
	d.logger.Info("loreweave daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("database", d.db.Path()),
	)
	return nil
}

// Stop shuts the API down, drains enrichment runs and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.server.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.orchestrator.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("loreweave daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.db.Close()
}

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Handler returns the HTTP handler serving the API.
func (d *Daemon) Handler() http.Handler {
	return d.server.handler
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:           d.running.Load(),
		PID:               os.Getpid(),
		DatabasePath:      d.db.Path(),
		LockFilePath:      d.lockPath,
		EnrichmentEnabled: d.cfg.Enrichment.Enabled,
		ActiveEnrichments: d.service.ActiveEnrichments(),
	}
	if llmCfg := d.cfg.GetLLM(); llmCfg.APIKey != "" {
		status.LLMProvider = strings.ToLower(llmCfg.Provider)
		status.LLMModel = llmCfg.Model
	}
	if version, err := d.db.SchemaVersion(ctx); err == nil {
		status.SchemaVersion = version
	}
	return status
}
