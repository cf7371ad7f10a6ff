package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Breaker.Threshold != 3 {
		t.Errorf("breaker threshold = %d, want 3", cfg.Breaker.Threshold)
	}
	if cfg.Breaker.Cooldown != 300*time.Second {
		t.Errorf("breaker cooldown = %v", cfg.Breaker.Cooldown)
	}
	if cfg.Liveness.StallAfter != 15*time.Minute {
		t.Errorf("stall after = %v", cfg.Liveness.StallAfter)
	}
	if cfg.Liveness.MinIndicators != 2 {
		t.Errorf("min indicators = %d", cfg.Liveness.MinIndicators)
	}
	if cfg.Liveness.CompletionMarker != "ALL TASKS COMPLETE" {
		t.Errorf("completion marker = %q", cfg.Liveness.CompletionMarker)
	}
	if cfg.Supervisor.MaxParallel != 3 || cfg.Supervisor.MaxIterations != 10 {
		t.Errorf("supervisor = %+v", cfg.Supervisor)
	}
	if cfg.Fusion.ConsensusThreshold != 0.6 || cfg.Fusion.MinConfidence != 7.0 {
		t.Errorf("fusion = %+v", cfg.Fusion)
	}
	if cfg.Fusion.DefaultStrategy != "majority" {
		t.Errorf("default strategy = %q", cfg.Fusion.DefaultStrategy)
	}
	if cfg.Workspace.Enabled {
		t.Error("workspace isolation should default off")
	}
}

func TestLoadProjectOverride(t *testing.T) {
	// Point XDG at an empty directory so the developer's real config file
	// cannot leak into the test.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".drover"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	project := `
breaker:
  threshold: 5
supervisor:
  max_parallel: 8
`
	if err := os.WriteFile(filepath.Join(root, ".drover", "config.yaml"), []byte(project), 0644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Breaker.Threshold != 5 {
		t.Errorf("project override lost: threshold = %d", cfg.Breaker.Threshold)
	}
	if cfg.Supervisor.MaxParallel != 8 {
		t.Errorf("project override lost: max_parallel = %d", cfg.Supervisor.MaxParallel)
	}
	// Untouched keys keep their defaults.
	if cfg.Breaker.Cooldown != 300*time.Second {
		t.Errorf("default cooldown lost: %v", cfg.Breaker.Cooldown)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".drover"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	project := "breaker:\n  threshold: 5\n"
	if err := os.WriteFile(filepath.Join(root, ".drover", "config.yaml"), []byte(project), 0644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	t.Setenv("DROVER_BREAKER_THRESHOLD", "9")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Breaker.Threshold != 9 {
		t.Errorf("env should outrank the file: threshold = %d", cfg.Breaker.Threshold)
	}
}

func TestLoadWithoutAnyFiles(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Breaker.Threshold != 3 {
		t.Errorf("expected pure defaults, got threshold %d", cfg.Breaker.Threshold)
	}
}
