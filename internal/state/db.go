package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mpetrun5/drover/pkg/models"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite run archive. Every supervisor invocation records its
// agent runs here so `drover status` can report recent activity across
// process restarts.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// ProjectDBPath returns the path to the project-local archive database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".drover", "drover.db")
}

// Open opens the archive database at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Invocations},
		{2, migrationV2Runs},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Invocations = `
CREATE TABLE IF NOT EXISTS invocations (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	label TEXT,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	completed INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_invocations_started_at ON invocations(started_at);
`

const migrationV2Runs = `
CREATE TABLE IF NOT EXISTS agent_runs (
	id TEXT PRIMARY KEY,
	invocation_id TEXT NOT NULL,
	name TEXT NOT NULL,
	task TEXT,
	status TEXT NOT NULL,
	iterations INTEGER NOT NULL DEFAULT 0,
	restarts INTEGER NOT NULL DEFAULT 0,
	workspace_ref TEXT,
	failure_reason TEXT,
	started_at DATETIME,
	last_output_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_agent_runs_invocation ON agent_runs(invocation_id);
CREATE INDEX IF NOT EXISTS idx_agent_runs_status ON agent_runs(status);
`

// RecordInvocation inserts a new invocation row.
func (db *DB) RecordInvocation(id, kind, label string, startedAt time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO invocations (id, kind, label, started_at)
		VALUES (?, ?, ?, ?)
	`, id, kind, label, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// FinishInvocation records the final counts for an invocation.
func (db *DB) FinishInvocation(id string, completed, failed int, finishedAt time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		UPDATE invocations SET finished_at = ?, completed = ?, failed = ? WHERE id = ?
	`, formatTime(finishedAt), completed, failed, id)
	if err != nil {
		return fmt.Errorf("update invocation: %w", err)
	}
	return nil
}

// ArchiveRun upserts the final state of an agent run.
func (db *DB) ArchiveRun(invocationID string, run *models.AgentRun) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO agent_runs
			(id, invocation_id, name, task, status, iterations, restarts, workspace_ref, failure_reason, started_at, last_output_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			iterations = excluded.iterations,
			restarts = excluded.restarts,
			failure_reason = excluded.failure_reason,
			last_output_at = excluded.last_output_at
	`, run.ID, invocationID, run.Spec.Name, run.Spec.Task, string(run.Status),
		run.IterationCount, run.Restarts, run.WorkspaceRef, run.FailureReason,
		formatTime(run.StartedAt), formatTime(run.LastOutputAt))
	if err != nil {
		return fmt.Errorf("archive run: %w", err)
	}
	return nil
}

// InvocationSummary is one row of `drover status` output.
type InvocationSummary struct {
	ID         string
	Kind       string
	Label      string
	StartedAt  time.Time
	FinishedAt time.Time
	Completed  int
	Failed     int
}

// RecentInvocations returns the most recent invocations, newest first.
func (db *DB) RecentInvocations(limit int) ([]InvocationSummary, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, kind, COALESCE(label, ''), started_at, COALESCE(finished_at, ''), completed, failed
		FROM invocations ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var out []InvocationSummary
	for rows.Next() {
		var s InvocationSummary
		var started, finished string
		if err := rows.Scan(&s.ID, &s.Kind, &s.Label, &started, &finished, &s.Completed, &s.Failed); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		s.StartedAt = parseTime(started)
		s.FinishedAt = parseTime(finished)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ActiveWorkspaceRefs returns workspace refs of runs that are not terminal,
// used by workspace cleanup-all to spare live workspaces.
func (db *DB) ActiveWorkspaceRefs() ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT DISTINCT workspace_ref FROM agent_runs
		WHERE status IN ('pending', 'running', 'stalled') AND workspace_ref != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("query active workspaces: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan workspace ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
