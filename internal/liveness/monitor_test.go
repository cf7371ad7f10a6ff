package liveness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mpetrun5/drover/pkg/models"
)

const marker = "ALL TASKS COMPLETE"

func newTestMonitor() *Monitor {
	m := NewMonitor(15*time.Minute, 2, marker)
	m.Now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return m
}

func writeOutput(t *testing.T, content string) *models.AgentRun {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.log")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write output: %v", err)
	}
	return &models.AgentRun{
		ID:           "run-1",
		OutputPath:   path,
		LastOutputAt: time.Date(2025, 6, 1, 11, 59, 0, 0, time.UTC),
	}
}

func TestClassifyMissingArtifactIsCrashed(t *testing.T) {
	m := newTestMonitor()
	run := &models.AgentRun{OutputPath: filepath.Join(t.TempDir(), "never-written.log")}

	if got := m.Classify(run); got != models.RunStatusCrashed {
		t.Errorf("expected crashed, got %s", got)
	}
}

func TestClassifyFatalMarkerIsFailed(t *testing.T) {
	m := newTestMonitor()
	run := writeOutput(t, "working\nFATAL: disk full\nALL TASKS COMPLETE\ntask complete\nall done\n")

	// Fatal marker outranks completion.
	if got := m.Classify(run); got != models.RunStatusFailed {
		t.Errorf("expected failed, got %s", got)
	}
}

func TestClassifyDualConditionComplete(t *testing.T) {
	m := newTestMonitor()
	run := writeOutput(t, "task complete\nall done\nALL TASKS COMPLETE\n")

	if got := m.Classify(run); got != models.RunStatusComplete {
		t.Errorf("expected complete, got %s", got)
	}
}

func TestClassifyMarkerWithoutIndicatorsNotComplete(t *testing.T) {
	m := newTestMonitor()
	run := writeOutput(t, "still working\nALL TASKS COMPLETE\n")

	// Marker present but only zero indicator phrases; MinIndicators is 2.
	if got := m.Classify(run); got == models.RunStatusComplete {
		t.Error("marker without enough indicators must not complete the run")
	}
}

func TestClassifyIndicatorsAloneNeverComplete(t *testing.T) {
	m := newTestMonitor()
	run := writeOutput(t, "task complete\nall done\nfinished\nimplementation complete\n")

	// Dual-condition non-regression: any number of indicator phrases
	// without the explicit marker must not end the run.
	if got := m.Classify(run); got == models.RunStatusComplete {
		t.Error("indicator phrases alone classified the run complete")
	}
}

func TestClassifyStructuredReportCompletes(t *testing.T) {
	m := newTestMonitor()
	run := writeOutput(t, `DROVER_REPORT: {"complete": true, "confidence": 9}`+"\n")

	if got := m.Classify(run); got != models.RunStatusComplete {
		t.Errorf("structured completion should complete the run, got %s", got)
	}
}

func TestClassifyStalled(t *testing.T) {
	m := newTestMonitor()
	run := writeOutput(t, "still thinking\n")
	// Output file mtime is now; force the tracked time into the past and
	// keep the mtime older than it so the stall rule fires.
	old := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	os.Chtimes(run.OutputPath, old, old)
	run.LastOutputAt = old

	if got := m.Classify(run); got != models.RunStatusStalled {
		t.Errorf("expected stalled, got %s", got)
	}
}

func TestClassifyHealthy(t *testing.T) {
	m := newTestMonitor()
	run := writeOutput(t, "making progress\n")
	recent := time.Date(2025, 6, 1, 11, 55, 0, 0, time.UTC)
	os.Chtimes(run.OutputPath, recent, recent)
	run.LastOutputAt = recent

	if got := m.Classify(run); got != models.RunStatusRunning {
		t.Errorf("expected running, got %s", got)
	}
}
