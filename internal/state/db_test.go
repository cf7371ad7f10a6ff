package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mpetrun5/drover/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "drover.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInvocationLifecycle(t *testing.T) {
	db := openTestDB(t)
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := db.RecordInvocation("inv-1", "supervisor", "worker (+2)", started); err != nil {
		t.Fatalf("RecordInvocation: %v", err)
	}
	if err := db.FinishInvocation("inv-1", 2, 1, started.Add(time.Minute)); err != nil {
		t.Fatalf("FinishInvocation: %v", err)
	}

	invs, err := db.RecentInvocations(10)
	if err != nil {
		t.Fatalf("RecentInvocations: %v", err)
	}
	if len(invs) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(invs))
	}
	inv := invs[0]
	if inv.Kind != "supervisor" || inv.Label != "worker (+2)" {
		t.Errorf("invocation = %+v", inv)
	}
	if inv.Completed != 2 || inv.Failed != 1 {
		t.Errorf("counts = %d/%d, want 2/1", inv.Completed, inv.Failed)
	}
	if !inv.StartedAt.Equal(started) {
		t.Errorf("started at %v, want %v", inv.StartedAt, started)
	}
}

func TestRecentInvocationsOrderAndLimit(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		if err := db.RecordInvocation(id, "supervisor", "", base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("RecordInvocation: %v", err)
		}
	}

	invs, err := db.RecentInvocations(2)
	if err != nil {
		t.Fatalf("RecentInvocations: %v", err)
	}
	if len(invs) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(invs))
	}
	if invs[0].ID != "new" || invs[1].ID != "mid" {
		t.Errorf("order = %s, %s; want newest first", invs[0].ID, invs[1].ID)
	}
}

func TestArchiveRunUpserts(t *testing.T) {
	db := openTestDB(t)
	if err := db.RecordInvocation("inv-1", "supervisor", "", time.Now()); err != nil {
		t.Fatalf("RecordInvocation: %v", err)
	}

	run := &models.AgentRun{
		ID:           "run-1",
		Spec:         models.AgentSpec{Name: "worker", Task: "fix tests"},
		Status:       models.RunStatusRunning,
		WorkspaceRef: "agent-run-1",
		StartedAt:    time.Now(),
		LastOutputAt: time.Now(),
	}
	if err := db.ArchiveRun("inv-1", run); err != nil {
		t.Fatalf("ArchiveRun: %v", err)
	}

	refs, err := db.ActiveWorkspaceRefs()
	if err != nil {
		t.Fatalf("ActiveWorkspaceRefs: %v", err)
	}
	if len(refs) != 1 || refs[0] != "agent-run-1" {
		t.Fatalf("active refs = %v", refs)
	}

	// Same run archived again in a terminal state replaces the row.
	run.Status = models.RunStatusComplete
	run.IterationCount = 4
	if err := db.ArchiveRun("inv-1", run); err != nil {
		t.Fatalf("ArchiveRun upsert: %v", err)
	}

	refs, err = db.ActiveWorkspaceRefs()
	if err != nil {
		t.Fatalf("ActiveWorkspaceRefs: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("terminal run should drop out of active refs, got %v", refs)
	}
}

func TestOpenMigratesIdempotently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drover.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.RecordInvocation("inv-1", "supervisor", "", time.Now()); err != nil {
		t.Fatalf("RecordInvocation: %v", err)
	}
	db.Close()

	// Reopening runs migrations again without clobbering data.
	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	invs, err := db2.RecentInvocations(10)
	if err != nil {
		t.Fatalf("RecentInvocations: %v", err)
	}
	if len(invs) != 1 {
		t.Errorf("expected data to survive reopen, got %d rows", len(invs))
	}
}
