package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/kballard/go-shellquote"

	"github.com/mpetrun5/drover/pkg/models"
)

// Runner executes one iteration of an agent. Implementations decouple the
// supervisor's scheduling logic from how an agent is physically launched, so
// tests can substitute a fake.
type Runner interface {
	// RunIteration runs the agent once, appending all output to
	// run.OutputPath. workdir is the agent's working directory (its
	// workspace when isolation is enabled). The returned error covers
	// launch problems only; agent-reported outcomes travel through the
	// output file and liveness classification.
	RunIteration(ctx context.Context, run *models.AgentRun, workdir string) error
}

// ExecRunner invokes the configured external command via os/exec.
type ExecRunner struct {
	// command is the base command line; the task is appended as the final
	// argument.
	command string
}

// NewExecRunner creates an ExecRunner for the given base command line.
func NewExecRunner(command string) *ExecRunner {
	return &ExecRunner{command: command}
}

// lazyFile defers creating the output file until the agent actually writes.
// An agent that exits without producing any output leaves no artifact, which
// is what liveness classification keys crash detection on.
type lazyFile struct {
	path string
	f    *os.File
}

func (l *lazyFile) Write(p []byte) (int, error) {
	if l.f == nil {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return 0, err
		}
		l.f = f
	}
	return l.f.Write(p)
}

func (l *lazyFile) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}

// RunIteration implements Runner.
func (r *ExecRunner) RunIteration(ctx context.Context, run *models.AgentRun, workdir string) error {
	words, err := shellquote.Split(r.command)
	if err != nil {
		return fmt.Errorf("parse agent command: %w", err)
	}
	if len(words) == 0 {
		return fmt.Errorf("agent command is empty")
	}
	args := append(words[1:], run.Spec.Task)

	out := &lazyFile{path: run.OutputPath}
	defer out.Close()

	cmd := exec.CommandContext(ctx, words[0], args...)
	cmd.Dir = workdir
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// Force-terminated on budget expiry; the supervisor classifies
			// this, not us.
			return ctx.Err()
		}
		// Non-zero exit is normal for agents that report failure in-band.
		if _, ok := err.(*exec.ExitError); ok {
			return nil
		}
		return fmt.Errorf("run agent: %w", err)
	}
	return nil
}
