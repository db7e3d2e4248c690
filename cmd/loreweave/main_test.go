package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"loreweave/internal/api"
)

func TestReviewWorkflowThroughCLI(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "entities", "add", "Brannoc", "--campaign", "1", "--type", "npc")
	if err != nil {
		t.Fatalf("entities add: %v", err)
	}
	requireContains(t, out, `Created npc "Brannoc"`)

	notes := filepath.Join(t.TempDir(), "session.md")
	if err := os.WriteFile(notes, []byte("Then Brannok drew his blade at [[Thornwall Keep]]."), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}
	out, err = env.run(t, "--json", "analyze", "--campaign", "1", "--table", "sessions", "--source-id", "7", "--field", "notes", "--file", notes)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var analysis api.AnalysisResponse
	if err := json.Unmarshal([]byte(out), &analysis); err != nil {
		t.Fatalf("decode analyze output %q: %v", out, err)
	}
	if len(analysis.Items) != 2 {
		t.Fatalf("expected misspelling and unresolved link, got %+v", analysis.Items)
	}
	jobID := strconv.FormatInt(analysis.Job.ID, 10)

	out, err = env.run(t, "items", jobID)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	requireContains(t, out, "misspelling")
	requireContains(t, out, "wiki_link_unresolved")

	out, err = env.run(t, "pending", "--campaign", "1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	requireContains(t, out, "2 pending")

	var unresolvedID string
	for _, item := range analysis.Items {
		if item.DetectionType == "wiki_link_unresolved" {
			unresolvedID = strconv.FormatInt(item.ID, 10)
		}
	}
	out, err = env.run(t, "resolve", unresolvedID, "-r", "new_entity", "--entity-type", "location", "--entity-name", "Thornwall Keep")
	if err != nil {
		t.Fatalf("resolve new_entity: %v", err)
	}
	requireContains(t, out, "new_entity")

	out, err = env.run(t, "batch-resolve", jobID, "--type", "misspelling")
	if err != nil {
		t.Fatalf("batch-resolve: %v", err)
	}
	requireContains(t, out, "Resolved 1 item(s) as accepted")

	out, err = env.run(t, "entities", "list", "--campaign", "1")
	if err != nil {
		t.Fatalf("entities list: %v", err)
	}
	requireContains(t, out, "Thornwall Keep")
	requireContains(t, out, "Brannok")

	out, err = env.run(t, "jobs", "show", jobID)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, out, "2/2 resolved")

	out, err = env.run(t, "revert", unresolvedID)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	requireContains(t, out, "pending")

	out, err = env.run(t, "jobs", "list", "--campaign", "1")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "sessions/7.notes")
}

func TestAnalyzeReadsStdin(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"--api", env.apiAddr, "analyze", "--campaign", "2", "--table", "sessions", "--source-id", "1", "--field", "notes"},
		env.configPath, "Nothing of note happened.")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireContains(t, out, "completed: 0 detection(s)")
}

func TestCLIReportsServiceErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := env.run(t, "jobs", "show", "404"); err == nil {
		t.Fatal("expected error for missing job")
	} else {
		requireContains(t, err.Error(), "not_found")
	}

	if _, err := env.run(t, "enrich", "1"); err == nil {
		t.Fatal("expected error for missing job enrichment")
	}

	if _, err := env.run(t, "resolve", "abc"); err == nil {
		t.Fatal("expected invalid id error")
	} else {
		requireContains(t, err.Error(), "invalid item id")
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "running (pid")
	requireContains(t, out, "disabled")

	out, _, err = runCLI(t, []string{"--api", "127.0.0.1:1", "status"}, env.configPath, "")
	if err != nil {
		t.Fatalf("status without daemon: %v", err)
	}
	requireContains(t, out, "not running")
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "loreweave", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config written: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected refusal to overwrite")
	}

	env := setupCLITestEnv(t)
	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Enrichment enabled: no")
}

func TestDoctorCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"doctor"}, env.configPath, "")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Data directory")
	requireContains(t, out, "Database")
}
