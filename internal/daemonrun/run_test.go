package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"loreweave/internal/testsupport"
)

func TestRunServesUntilCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Enrichment.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, Options{LogLevel: "error"}) }()

	pidPath := filepath.Join(cfg.Paths.LogDir, "loreweaved.pid")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(pidPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("pid file never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
	if _, err := os.Lstat(filepath.Join(cfg.Paths.LogDir, "loreweave.log")); err != nil {
		t.Fatalf("expected log pointer: %v", err)
	}
}

func TestNewGeneratorRequiresKeyAndEnrichment(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutLLMKey())
	if newGenerator(cfg) != nil {
		t.Fatal("expected nil generator without api key")
	}
	cfg = testsupport.NewConfig(t)
	cfg.Enrichment.Enabled = false
	if newGenerator(cfg) != nil {
		t.Fatal("expected nil generator when enrichment disabled")
	}
	cfg = testsupport.NewConfig(t)
	if newGenerator(cfg) == nil {
		t.Fatal("expected generator when configured")
	}
}
