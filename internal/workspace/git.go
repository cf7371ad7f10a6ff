// Package workspace provides isolated per-agent workspaces backed by git
// worktrees, with a validate-then-merge-then-destroy lifecycle.
package workspace

import (
	"fmt"
	"os/exec"
	"strings"
)

// Git is the subset of git operations the workspace manager needs.
// The interface allows substituting a fake in tests.
type Git interface {
	// WorktreeAddNewBranch creates a worktree at path on a new branch.
	WorktreeAddNewBranch(path, branch string) error
	// WorktreeRemove removes a worktree, optionally forcing.
	WorktreeRemove(path string, force bool) error
	// WorktreePrune removes references to worktrees gone from disk.
	WorktreePrune() error
	// DeleteBranch force-deletes a branch.
	DeleteBranch(branch string) error
	// AddAll stages all changes in the given directory.
	AddAll(dir string) error
	// Commit commits staged changes in the given directory.
	Commit(dir, message string) error
	// Merge merges the given branch into the current branch.
	Merge(branch string) error
	// StatusPorcelain returns `git status --porcelain` for a directory.
	StatusPorcelain(dir string) (string, error)
}

// ExecGit implements Git using the git binary.
type ExecGit struct {
	repoPath string
}

// NewExecGit creates a git runner for the repository at repoPath.
func NewExecGit(repoPath string) *ExecGit {
	return &ExecGit{repoPath: repoPath}
}

func (g *ExecGit) run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir == "" {
		dir = g.repoPath
	}
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// WorktreeAddNewBranch implements Git.
func (g *ExecGit) WorktreeAddNewBranch(path, branch string) error {
	_, err := g.run("", "worktree", "add", "-b", branch, path)
	return err
}

// WorktreeRemove implements Git.
func (g *ExecGit) WorktreeRemove(path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := g.run("", args...)
	return err
}

// WorktreePrune implements Git.
func (g *ExecGit) WorktreePrune() error {
	_, err := g.run("", "worktree", "prune")
	return err
}

// DeleteBranch implements Git.
func (g *ExecGit) DeleteBranch(branch string) error {
	_, err := g.run("", "branch", "-D", branch)
	return err
}

// AddAll implements Git.
func (g *ExecGit) AddAll(dir string) error {
	_, err := g.run(dir, "add", "-A")
	return err
}

// Commit implements Git.
func (g *ExecGit) Commit(dir, message string) error {
	_, err := g.run(dir, "commit", "-m", message)
	return err
}

// Merge implements Git.
func (g *ExecGit) Merge(branch string) error {
	_, err := g.run("", "merge", "--no-ff", branch)
	return err
}

// StatusPorcelain implements Git.
func (g *ExecGit) StatusPorcelain(dir string) (string, error) {
	return g.run(dir, "status", "--porcelain")
}
