package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mpetrun5/drover/pkg/models"
)

func testRun(t *testing.T) *models.AgentRun {
	t.Helper()
	return &models.AgentRun{
		ID:         "run-1",
		Spec:       models.AgentSpec{Name: "worker", Task: "fix the tests"},
		OutputPath: filepath.Join(t.TempDir(), "out.log"),
	}
}

func TestExecRunnerAppendsTask(t *testing.T) {
	r := NewExecRunner("echo working on")
	run := testRun(t)

	if err := r.RunIteration(context.Background(), run, t.TempDir()); err != nil {
		t.Fatalf("RunIteration: %v", err)
	}

	out, err := os.ReadFile(run.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(out), "working on fix the tests") {
		t.Errorf("output %q missing appended task", out)
	}
}

func TestExecRunnerAppendsAcrossIterations(t *testing.T) {
	r := NewExecRunner("echo iteration")
	run := testRun(t)

	for i := 0; i < 2; i++ {
		if err := r.RunIteration(context.Background(), run, t.TempDir()); err != nil {
			t.Fatalf("RunIteration %d: %v", i, err)
		}
	}

	out, _ := os.ReadFile(run.OutputPath)
	if strings.Count(string(out), "iteration") != 2 {
		t.Errorf("expected appended output across iterations, got %q", out)
	}
}

func TestExecRunnerNonZeroExitIsNotAnError(t *testing.T) {
	// Agents report failure in-band; a non-zero exit is not a launch error.
	r := NewExecRunner("sh -c 'exit 3'")
	if err := r.RunIteration(context.Background(), testRun(t), t.TempDir()); err != nil {
		t.Errorf("non-zero exit should not surface: %v", err)
	}
}

func TestExecRunnerBadCommandLine(t *testing.T) {
	r := NewExecRunner("echo 'unterminated")
	if err := r.RunIteration(context.Background(), testRun(t), t.TempDir()); err == nil {
		t.Error("expected quoting error")
	}

	r = NewExecRunner("")
	if err := r.RunIteration(context.Background(), testRun(t), t.TempDir()); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestExecRunnerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The appended task lands in $0, so the sleep itself is undisturbed.
	r := NewExecRunner("sh -c 'sleep 5'")
	err := r.RunIteration(ctx, testRun(t), t.TempDir())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestExecRunnerSilentAgentLeavesNoArtifact(t *testing.T) {
	// An agent that writes nothing must not leave an output file behind;
	// crash classification depends on the artifact's absence.
	r := NewExecRunner("true")
	run := testRun(t)

	if err := r.RunIteration(context.Background(), run, t.TempDir()); err != nil {
		t.Fatalf("RunIteration: %v", err)
	}
	if _, err := os.Stat(run.OutputPath); !os.IsNotExist(err) {
		t.Errorf("expected no output artifact, stat err = %v", err)
	}
}
