package daemon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"loreweave/internal/api"
	"loreweave/internal/daemon"
	"loreweave/internal/jobs"
	"loreweave/internal/logging"
	"loreweave/internal/testsupport"
)

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestDaemonStartStopServesStatus(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := d.Addr()
	if addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("expected bound address, got %q", addr)
	}

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.PID == 0 || status.LockFilePath == "" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.LLMProvider == "" {
		t.Fatalf("expected configured provider in status, got %+v", status)
	}

	d.Stop()
	if d.Addr() != "" {
		t.Fatalf("expected no address after stop, got %q", d.Addr())
	}
	if got := d.Status(context.Background()); got.Running {
		t.Fatal("expected stopped daemon to report not running")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)

	first, err := daemon.New(cfg, db, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(first.Stop)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second, err := daemon.New(cfg, db, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to fail acquiring the lock")
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
	second.Stop()
}

func TestDaemonStartReclaimsInterruptedJobs(t *testing.T) {
	f := testsupport.NewFixture(t)
	ctx := context.Background()

	job, err := f.Jobs.CreateJob(ctx, jobs.NewJob{CampaignID: 1, SourceTable: "sessions", SourceID: 3, SourceField: "notes"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := f.Jobs.BeginIdentification(ctx, job.ID, "notes"); err != nil {
		t.Fatalf("BeginIdentification: %v", err)
	}

	d, err := daemon.New(f.Config, f.DB, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Stop)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reloaded, err := f.Jobs.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if reloaded.Status != jobs.StatusFailed || reloaded.FailureReason == "" {
		t.Fatalf("expected interrupted job failed with reason, got %+v", reloaded)
	}
}
