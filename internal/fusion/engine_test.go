package fusion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mpetrun5/drover/internal/supervisor"
	"github.com/mpetrun5/drover/pkg/models"
)

// scriptedSupervisor writes a canned output file per agent and reports the
// scripted terminal status, in spec order.
type scriptedSupervisor struct {
	dir      string
	outputs  []string
	statuses []models.RunStatus

	gotOpts supervisor.Options
}

func (s *scriptedSupervisor) Run(_ context.Context, specs []models.AgentSpec, opts supervisor.Options) *supervisor.Result {
	s.gotOpts = opts
	res := &supervisor.Result{}
	for i, spec := range specs {
		path := filepath.Join(s.dir, spec.Name+".log")
		os.WriteFile(path, []byte(s.outputs[i]), 0644)
		run := &models.AgentRun{
			ID:         spec.Name,
			Spec:       spec,
			OutputPath: path,
			Status:     s.statuses[i],
		}
		res.Runs = append(res.Runs, run)
		if run.Status == models.RunStatusComplete {
			res.Completed++
		} else {
			res.Failed++
		}
	}
	return res
}

func TestFuseMajorityAcrossAgents(t *testing.T) {
	sup := &scriptedSupervisor{
		dir: t.TempDir(),
		outputs: []string{
			"- missing auth check\nCONFIDENCE: 8\nALL TASKS COMPLETE\n",
			"- missing auth check\n- flaky test\nCONFIDENCE: 7\nALL TASKS COMPLETE\n",
			"no findings here\n",
		},
		statuses: []models.RunStatus{
			models.RunStatusComplete,
			models.RunStatusComplete,
			models.RunStatusFailed,
		},
	}
	e := New(sup, "ALL TASKS COMPLETE")

	result, err := e.Fuse(context.Background(), "audit the login flow", 3,
		models.FusionMajority, Params{ConsensusThreshold: 0.6})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}

	// Two of three launched completed; both report the auth finding, so it
	// clears ceil(2 * 0.6) = 2. The flaky-test finding has support 1.
	if len(result.Findings) != 1 {
		t.Fatalf("expected one majority finding, got %+v", result.Findings)
	}
	if NormalizeFinding(result.Findings[0].Text) != "missing auth check" {
		t.Errorf("unexpected finding %q", result.Findings[0].Text)
	}
	if result.Stats.Completed != 2 || result.Stats.AgentCount != 3 {
		t.Errorf("stats = %+v", result.Stats)
	}
	if result.Stats.Support["missing auth check"] != 2 {
		t.Errorf("expected support 2, got %d", result.Stats.Support["missing auth check"])
	}
}

func TestFuseRunsAllAgentsInParallel(t *testing.T) {
	sup := &scriptedSupervisor{
		dir:      t.TempDir(),
		outputs:  []string{"x\n", "x\n", "x\n", "x\n"},
		statuses: make([]models.RunStatus, 4),
	}
	e := New(sup, "ALL TASKS COMPLETE")

	_, err := e.Fuse(context.Background(), "task", 4, models.FusionMerge, Params{})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if sup.gotOpts.MaxParallel != 4 {
		t.Errorf("expected parallelism equal to agent count, got %d", sup.gotOpts.MaxParallel)
	}
}

func TestFuseRejectsBadInputs(t *testing.T) {
	e := New(&scriptedSupervisor{dir: t.TempDir()}, "ALL TASKS COMPLETE")

	if _, err := e.Fuse(context.Background(), "task", 0, models.FusionMajority, Params{}); err == nil {
		t.Error("expected error for zero agents")
	}
	if _, err := e.Fuse(context.Background(), "task", 2, models.FusionStrategy("vote"), Params{}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestFuseZeroCompletionsFailsResult(t *testing.T) {
	sup := &scriptedSupervisor{
		dir:      t.TempDir(),
		outputs:  []string{"crash\n", "crash\n"},
		statuses: []models.RunStatus{models.RunStatusFailed, models.RunStatusCrashed},
	}
	e := New(sup, "ALL TASKS COMPLETE")

	result, err := e.Fuse(context.Background(), "task", 2, models.FusionMajority, Params{})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if !result.Failed {
		t.Error("expected failed result when no agent completed")
	}
}
