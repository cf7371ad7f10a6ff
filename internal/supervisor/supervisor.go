// Package supervisor implements the bounded fan-out engine. It launches a
// set of agents capped at a parallelism limit, gates every dispatch on the
// circuit breaker, applies liveness classification and the restart policy,
// and brackets each agent with workspace lifecycle calls when isolation is
// enabled. Run never panics outward: all failures are captured in the
// result.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	agentpkg "github.com/mpetrun5/drover/internal/agent"
	"github.com/mpetrun5/drover/internal/breaker"
	"github.com/mpetrun5/drover/internal/liveness"
	"github.com/mpetrun5/drover/internal/state"
	"github.com/mpetrun5/drover/internal/workspace"
	"github.com/mpetrun5/drover/pkg/models"
)

// Workspaces is the slice of the workspace lifecycle the supervisor consumes.
type Workspaces interface {
	Create(name string) (*workspace.Workspace, error)
	Cleanup(name string, force bool) error
}

// Options control one supervisor invocation.
type Options struct {
	// MaxParallel caps concurrently active agents.
	MaxParallel int
	// MaxIterations is the per-agent iteration budget.
	MaxIterations int
	// TimeBudget is the per-agent hard time budget. On expiry the agent is
	// force-terminated and classified failed.
	TimeBudget time.Duration
	// RestartPolicy controls restarts after stalls and crashes.
	RestartPolicy models.RestartPolicy
	// MaxRestarts caps restarts regardless of policy.
	MaxRestarts int
	// PollInterval is the wait between breaker re-checks while paused.
	PollInterval time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxParallel < 1 {
		out.MaxParallel = 1
	}
	if out.MaxIterations < 1 {
		out.MaxIterations = 1
	}
	if out.TimeBudget <= 0 {
		out.TimeBudget = 30 * time.Minute
	}
	if out.RestartPolicy == "" {
		out.RestartPolicy = models.RestartOnce
	}
	if out.MaxRestarts < 0 {
		out.MaxRestarts = 0
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 5 * time.Second
	}
	return out
}

// Result summarizes one supervisor invocation.
type Result struct {
	Completed int
	Failed    int
	Runs      []*models.AgentRun
}

// AllComplete reports whether every agent completed.
func (r *Result) AllComplete() bool {
	return r.Failed == 0 && r.Completed == len(r.Runs)
}

// Supervisor is the fan-out engine.
type Supervisor struct {
	breaker    *breaker.Breaker
	monitor    *liveness.Monitor
	runner     agentpkg.Runner
	workspaces Workspaces // nil disables workspace isolation
	watcher    *liveness.OutputWatcher
	archive    *state.DB // nil disables run archival
	outputDir  string
	workdir    string
}

// New creates a Supervisor. breaker, monitor, and runner are required;
// workspaces, watcher, and archive are optional collaborators.
func New(b *breaker.Breaker, m *liveness.Monitor, r agentpkg.Runner, outputDir, workdir string) *Supervisor {
	return &Supervisor{
		breaker:   b,
		monitor:   m,
		runner:    r,
		outputDir: outputDir,
		workdir:   workdir,
	}
}

// WithWorkspaces enables workspace isolation.
func (s *Supervisor) WithWorkspaces(w Workspaces) *Supervisor {
	s.workspaces = w
	return s
}

// WithWatcher installs an output watcher for cheap last-output tracking.
func (s *Supervisor) WithWatcher(w *liveness.OutputWatcher) *Supervisor {
	s.watcher = w
	return s
}

// WithArchive enables durable run archival.
func (s *Supervisor) WithArchive(db *state.DB) *Supervisor {
	s.archive = db
	return s
}

// Run executes the given agents under the supplied options and returns when
// every agent reaches a terminal state or ctx is cancelled. It never returns
// an error: per-agent failures are reported in the Result, and failures are
// recorded durably before being reported.
func (s *Supervisor) Run(ctx context.Context, specs []models.AgentSpec, opts Options) *Result {
	opts = opts.withDefaults()

	invocationID := uuid.New().String()
	startedAt := time.Now()
	if s.archive != nil {
		if err := s.archive.RecordInvocation(invocationID, "supervisor", label(specs), startedAt); err != nil {
			log.Printf("[supervisor] record invocation: %v", err)
		}
	}

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		log.Printf("[supervisor] create output dir: %v", err)
	}

	sem := semaphore.NewWeighted(int64(opts.MaxParallel))
	result := &Result{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := range specs {
		run := s.newRun(specs[i])
		mu.Lock()
		result.Runs = append(result.Runs, run)
		mu.Unlock()

		wg.Add(1)
		go func(run *models.AgentRun) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				s.finishRun(invocationID, run, models.RunStatusFailed, "cancelled before start")
				return
			}
			defer sem.Release(1)

			s.runAgent(ctx, run, opts)
			s.archiveRun(invocationID, run)
		}(run)
	}

	wg.Wait()

	mu.Lock()
	for _, run := range result.Runs {
		switch run.Status {
		case models.RunStatusComplete:
			result.Completed++
		default:
			result.Failed++
		}
	}
	mu.Unlock()

	if s.archive != nil {
		if err := s.archive.FinishInvocation(invocationID, result.Completed, result.Failed, time.Now()); err != nil {
			log.Printf("[supervisor] finish invocation: %v", err)
		}
	}
	return result
}

func label(specs []models.AgentSpec) string {
	if len(specs) == 0 {
		return ""
	}
	if len(specs) == 1 {
		return specs[0].Name
	}
	return fmt.Sprintf("%s (+%d)", specs[0].Name, len(specs)-1)
}

func (s *Supervisor) newRun(spec models.AgentSpec) *models.AgentRun {
	id := uuid.New().String()
	outputPath := spec.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(s.outputDir, fmt.Sprintf("%s-%s.log", spec.Name, id[:8]))
	}
	return &models.AgentRun{
		ID:         id,
		Spec:       spec,
		OutputPath: outputPath,
		Status:     models.RunStatusPending,
		StartedAt:  time.Now(),
	}
}

// runAgent drives one agent to a terminal state.
func (s *Supervisor) runAgent(ctx context.Context, run *models.AgentRun, opts Options) {
	workdir := s.workdir

	if s.workspaces != nil {
		wsName := fmt.Sprintf("agent-%s", run.ShortID())
		ws, err := s.workspaces.Create(wsName)
		if err != nil {
			s.failRun(run, fmt.Sprintf("create workspace: %v", err))
			return
		}
		run.WorkspaceRef = ws.Name
		workdir = ws.Path
		defer func() {
			if err := s.workspaces.Cleanup(wsName, true); err != nil {
				log.Printf("[supervisor] cleanup workspace %s: %v", wsName, err)
			}
		}()
	}

	agentCtx, cancel := context.WithTimeout(ctx, opts.TimeBudget)
	defer cancel()

	run.LastOutputAt = time.Now()

	for run.IterationCount < opts.MaxIterations {
		// Systemic pause: an open breaker suspends dispatch, it does not
		// fail the agent.
		if !s.waitForBreaker(agentCtx, opts.PollInterval) {
			s.failRun(run, "time budget exceeded while breaker open")
			s.breaker.RecordFailure()
			return
		}

		run.Status = models.RunStatusRunning
		run.IterationCount++
		debugLog("[supervisor] agent %s (%s) iteration %d", run.Spec.Name, run.ShortID(), run.IterationCount)

		err := s.runner.RunIteration(agentCtx, run, workdir)
		if agentCtx.Err() != nil {
			// Force-terminated; no partial-result merging for a forcibly
			// terminated unit.
			s.failRun(run, "time budget exceeded")
			s.breaker.RecordFailure()
			return
		}
		if err != nil {
			log.Printf("[supervisor] agent %s launch error: %v", run.Spec.Name, err)
		}

		if s.watcher != nil {
			if t := s.watcher.LastOutput(run.OutputPath); t.After(run.LastOutputAt) {
				run.LastOutputAt = t
			}
		}

		switch status := s.monitor.Classify(run); status {
		case models.RunStatusComplete:
			run.Status = models.RunStatusComplete
			s.breaker.RecordSuccess()
			debugLog("[supervisor] agent %s complete after %d iterations", run.Spec.Name, run.IterationCount)
			return

		case models.RunStatusFailed:
			// Fatal marker: surfaced immediately, no retry.
			s.failRun(run, "fatal marker in output")
			s.breaker.RecordFailure()
			return

		case models.RunStatusStalled, models.RunStatusCrashed:
			if s.mayRestart(run, opts) {
				run.Restarts++
				run.Status = models.RunStatusPending
				run.LastOutputAt = time.Now()
				log.Printf("[supervisor] agent %s %s, restarting (%d/%d)",
					run.Spec.Name, status, run.Restarts, opts.MaxRestarts)
				continue
			}
			s.failRun(run, fmt.Sprintf("%s, restarts exhausted", status))
			s.breaker.RecordFailure()
			return

		default:
			// Healthy: keep iterating.
		}
	}

	s.failRun(run, "iteration budget exhausted")
	s.breaker.RecordFailure()
}

// mayRestart applies the restart policy to a stalled or crashed run.
func (s *Supervisor) mayRestart(run *models.AgentRun, opts Options) bool {
	limit := opts.MaxRestarts
	switch opts.RestartPolicy {
	case models.RestartNever:
		limit = 0
	case models.RestartOnce:
		if limit > 1 || limit == 0 {
			limit = 1
		}
	}
	return run.Restarts < limit
}

// waitForBreaker blocks until the breaker allows dispatch or ctx ends.
// Returns false if ctx ended first.
func (s *Supervisor) waitForBreaker(ctx context.Context, interval time.Duration) bool {
	if s.breaker.Allow() {
		return true
	}
	log.Printf("[supervisor] circuit breaker open, pausing dispatch")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if s.breaker.Allow() {
				return true
			}
		}
	}
}

func (s *Supervisor) failRun(run *models.AgentRun, reason string) {
	run.Status = models.RunStatusFailed
	run.FailureReason = reason
}

func (s *Supervisor) finishRun(invocationID string, run *models.AgentRun, status models.RunStatus, reason string) {
	run.Status = status
	run.FailureReason = reason
	s.archiveRun(invocationID, run)
}

// archiveRun records the run durably before its failure is reported, so a
// process crash mid-run never silently loses the signal.
func (s *Supervisor) archiveRun(invocationID string, run *models.AgentRun) {
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveRun(invocationID, run); err != nil {
		log.Printf("[supervisor] archive run %s: %v", run.ShortID(), err)
	}
}
