package workspace

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// ErrValidationFailed is returned when a workspace fails validation before
// merge. The workspace is left untouched.
var ErrValidationFailed = errors.New("workspace: validation failed")

// ErrNotFound is returned for operations on a workspace that does not exist.
var ErrNotFound = errors.New("workspace: not found")

// Workspace is one isolated, branch-scoped checkout owned by a single agent
// for the duration of its run.
type Workspace struct {
	Name      string
	Path      string
	Branch    string
	CreatedAt time.Time
}

// Validator checks a workspace before merge. A nil error is a pass.
type Validator func(ws *Workspace) error

// Manager owns the workspace lifecycle. All operations are idempotent and
// independently callable, returning pass/fail via error.
type Manager struct {
	baseDir string
	git     Git
	// validate runs before merge unless explicitly skipped.
	validate Validator
	mu       sync.Mutex
}

// NewManager creates a Manager that places workspaces under baseDir.
// An empty baseDir defaults to ~/.cache/drover/workspaces.
func NewManager(baseDir string, git Git, validate Validator) (*Manager, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".cache", "drover", "workspaces")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create workspace base directory: %w", err)
	}
	if validate == nil {
		validate = func(*Workspace) error { return nil }
	}
	return &Manager{baseDir: baseDir, git: git, validate: validate}, nil
}

// CommandValidator builds a Validator that runs a shell command inside the
// workspace; a non-zero exit is a validation failure. An empty command
// always passes.
func CommandValidator(command string) Validator {
	return func(ws *Workspace) error {
		if command == "" {
			return nil
		}
		cmd := exec.Command("sh", "-c", command)
		cmd.Dir = ws.Path
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%w: %s: %s", ErrValidationFailed, command, string(out))
		}
		return nil
	}
}

// BaseDir returns the directory workspaces are created under.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

func (m *Manager) workspace(name string) *Workspace {
	branch := "drover/" + name
	return &Workspace{
		Name:   name,
		Path:   filepath.Join(m.baseDir, name),
		Branch: branch,
	}
}

// Create creates an isolated workspace for the named owner. Creating an
// already-existing workspace returns it unchanged.
func (m *Manager) Create(name string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws := m.workspace(name)
	if _, err := os.Stat(ws.Path); err == nil {
		return ws, nil
	}
	if err := m.git.WorktreeAddNewBranch(ws.Path, ws.Branch); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", name, err)
	}
	ws.CreatedAt = time.Now()
	return ws, nil
}

// Get returns the named workspace, or ErrNotFound.
func (m *Manager) Get(name string) (*Workspace, error) {
	ws := m.workspace(name)
	if _, err := os.Stat(ws.Path); err != nil {
		return nil, ErrNotFound
	}
	return ws, nil
}

// Status returns the porcelain status of the workspace's checkout.
func (m *Manager) Status(name string) (string, error) {
	ws, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return m.git.StatusPorcelain(ws.Path)
}

// Validate runs the configured validation against the named workspace.
func (m *Manager) Validate(name string) error {
	ws, err := m.Get(name)
	if err != nil {
		return err
	}
	return m.validate(ws)
}

// Commit stages and commits all changes in the workspace. Committing a clean
// workspace is a no-op.
func (m *Manager) Commit(name, message string) error {
	ws, err := m.Get(name)
	if err != nil {
		return err
	}

	status, err := m.git.StatusPorcelain(ws.Path)
	if err != nil {
		return fmt.Errorf("workspace status: %w", err)
	}
	if status == "" {
		return nil
	}
	if err := m.git.AddAll(ws.Path); err != nil {
		return fmt.Errorf("stage workspace changes: %w", err)
	}
	if err := m.git.Commit(ws.Path, message); err != nil {
		return fmt.Errorf("commit workspace: %w", err)
	}
	return nil
}

// MergeOptions control merge behavior.
type MergeOptions struct {
	// NoValidate merges regardless of validation outcome.
	NoValidate bool
}

// Merge validates the workspace and merges its branch into the current
// branch of the main checkout. On validation failure the merge is refused
// and no state changes.
func (m *Manager) Merge(name string, opts MergeOptions) error {
	ws, err := m.Get(name)
	if err != nil {
		return err
	}

	if !opts.NoValidate {
		if err := m.validate(ws); err != nil {
			if errors.Is(err, ErrValidationFailed) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.git.Merge(ws.Branch); err != nil {
		return fmt.Errorf("merge workspace %s: %w", name, err)
	}
	return nil
}

// Cleanup destroys the named workspace and its branch. Cleaning up a missing
// workspace is not an error.
func (m *Manager) Cleanup(name string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws := m.workspace(name)
	if _, err := os.Stat(ws.Path); err != nil {
		return nil
	}
	if err := m.git.WorktreeRemove(ws.Path, force); err != nil {
		return fmt.Errorf("remove workspace %s: %w", name, err)
	}
	// Branch deletion is best-effort: an unmerged branch left behind is
	// recoverable, a failed cleanup is not worth aborting over.
	_ = m.git.DeleteBranch(ws.Branch)
	return nil
}

// CleanupAll destroys every workspace whose name is not in active, then
// prunes stale worktree references. Returns the number removed.
func (m *Manager) CleanupAll(active []string) (int, error) {
	activeSet := make(map[string]bool, len(active))
	for _, name := range active {
		activeSet[name] = true
	}

	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read workspace base directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || activeSet[e.Name()] {
			continue
		}
		if err := m.Cleanup(e.Name(), true); err != nil {
			return removed, err
		}
		removed++
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.git.WorktreePrune(); err != nil {
		return removed, fmt.Errorf("prune worktrees: %w", err)
	}
	return removed, nil
}
