// Package chain implements the checkpointed multi-phase orchestrator.
// Phases run strictly in order, each as one supervisor invocation; state is
// persisted after every transition so an interrupted chain resumes at its
// current phase instead of restarting from phase zero.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mpetrun5/drover/internal/state"
	"github.com/mpetrun5/drover/internal/supervisor"
	"github.com/mpetrun5/drover/pkg/models"
)

// ErrAborted is returned when a checkpoint decision or a phase failure
// aborts the chain.
var ErrAborted = errors.New("chain: aborted")

// Decider supplies the external decision at a checkpoint gate. The chain
// blocks inside Decide until an answer is available.
type Decider interface {
	Decide(phase *models.Phase, failed bool) (models.CheckpointDecision, error)
}

// AutoDecider continues through every checkpoint and aborts on failure.
// Installed by the --auto flag.
type AutoDecider struct{}

// Decide implements Decider.
func (AutoDecider) Decide(_ *models.Phase, failed bool) (models.CheckpointDecision, error) {
	if failed {
		return models.DecisionAbort, nil
	}
	return models.DecisionContinue, nil
}

// Validator runs a phase-specific advisory check after a phase completes.
type Validator interface {
	Validate(ctx context.Context, phase *models.Phase) error
}

// Options control chain execution.
type Options struct {
	// Checkpoints gates every completed phase on an external decision.
	Checkpoints bool
	// CheckpointOnError applies the same decision set to failed phases;
	// otherwise a failed phase aborts the chain.
	CheckpointOnError bool
	// Validation enables advisory post-phase validation.
	Validation bool
	// StrictValidation promotes a validation miss to a phase failure.
	StrictValidation bool
	// MaxRetries caps checkpoint-driven retries per phase.
	MaxRetries int
	// Resume continues a persisted chain at its current index. When false
	// any previous state for the chain name is discarded.
	Resume bool
	// Supervisor options for each phase's invocation.
	Parallel   int
	MaxIter    int
	TimeBudget time.Duration
}

// Supervisor is the slice of the fan-out engine the chain needs. Satisfied
// by *supervisor.Supervisor; tests substitute a fake.
type Supervisor interface {
	Run(ctx context.Context, specs []models.AgentSpec, opts supervisor.Options) *supervisor.Result
}

// Orchestrator runs ordered phase chains.
type Orchestrator struct {
	sup       Supervisor
	store     state.DocStore
	decider   Decider
	validator Validator
}

// New creates a chain Orchestrator. decider may be nil when checkpoints are
// disabled; validator may be nil when validation is disabled.
func New(sup Supervisor, store state.DocStore, decider Decider, validator Validator) *Orchestrator {
	if decider == nil {
		decider = AutoDecider{}
	}
	return &Orchestrator{sup: sup, store: store, decider: decider, validator: validator}
}

func docName(chainName string) string {
	return "chain-" + chainName
}

// Run executes the named chain. phases describe the full chain; when a
// persisted state with matching phase names exists and opts.Resume is set,
// execution continues from the persisted current index.
func (o *Orchestrator) Run(ctx context.Context, chainName string, phases []models.Phase, opts Options) (*models.ChainState, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("chain %s has no phases", chainName)
	}

	cs, err := o.loadOrInit(chainName, phases, opts.Resume)
	if err != nil {
		return nil, err
	}

	for cs.CurrentIndex < len(cs.Phases) {
		phase := &cs.Phases[cs.CurrentIndex]

		if phase.Status == models.PhaseStatusSkipped || phase.Status == models.PhaseStatusComplete {
			cs.CurrentIndex++
			continue
		}

		if err := o.runPhase(ctx, cs, phase, opts); err != nil {
			cs.Status = "aborted"
			o.persist(cs)
			return cs, err
		}
	}

	cs.Status = "complete"
	for i := range cs.Phases {
		if cs.Phases[i].Status == models.PhaseStatusFailed {
			cs.Status = "failed"
			break
		}
	}
	o.persist(cs)
	return cs, nil
}

// runPhase drives one phase through the state machine, including the
// checkpoint gate and retries. It advances cs.CurrentIndex on progression.
func (o *Orchestrator) runPhase(ctx context.Context, cs *models.ChainState, phase *models.Phase, opts Options) error {
	phase.Status = models.PhaseStatusRunning
	o.persist(cs)
	log.Printf("[chain] %s: phase %q running (%d/%d)", cs.Name, phase.Name, cs.CurrentIndex+1, len(cs.Phases))

	res := o.sup.Run(ctx, []models.AgentSpec{{
		Name: fmt.Sprintf("%s-%s", cs.Name, phase.Name),
		Task: phase.Task,
	}}, supervisor.Options{
		MaxParallel:   maxInt(opts.Parallel, 1),
		MaxIterations: opts.MaxIter,
		TimeBudget:    opts.TimeBudget,
	})

	failed := !res.AllComplete()

	if !failed && opts.Validation && o.validator != nil {
		if verr := o.validator.Validate(ctx, phase); verr != nil {
			// Advisory by default: recorded, not blocking.
			phase.ValidationFailed = true
			log.Printf("[chain] %s: phase %q validation failed: %v", cs.Name, phase.Name, verr)
			if opts.StrictValidation {
				failed = true
			}
		}
	}

	if failed {
		phase.Status = models.PhaseStatusFailed
		o.persist(cs)

		if !opts.CheckpointOnError {
			return fmt.Errorf("%w: phase %q failed", ErrAborted, phase.Name)
		}
		return o.gate(cs, phase, true, opts)
	}

	phase.Status = models.PhaseStatusComplete
	o.persist(cs)

	if opts.Checkpoints {
		return o.gate(cs, phase, false, opts)
	}

	cs.CurrentIndex++
	o.persist(cs)
	return nil
}

// gate blocks at a checkpoint until the decider answers, then applies the
// decision. Checkpoint is only reachable after a terminal phase status.
func (o *Orchestrator) gate(cs *models.ChainState, phase *models.Phase, failed bool, opts Options) error {
	prior := phase.Status
	phase.Status = models.PhaseStatusCheckpoint
	o.persist(cs)

	decision, err := o.decider.Decide(phase, failed)
	if err != nil {
		return fmt.Errorf("checkpoint decision: %w", err)
	}

	switch decision {
	case models.DecisionContinue:
		phase.Status = prior
		cs.CurrentIndex++
	case models.DecisionRetry:
		if phase.RetryCount >= opts.MaxRetries {
			phase.Status = models.PhaseStatusFailed
			o.persist(cs)
			return fmt.Errorf("%w: phase %q retries exhausted", ErrAborted, phase.Name)
		}
		phase.RetryCount++
		phase.Status = models.PhaseStatusPending
		// CurrentIndex stays: the phase runs again.
	case models.DecisionSkip:
		phase.Status = models.PhaseStatusSkipped
		cs.CurrentIndex++
	case models.DecisionAbort:
		phase.Status = prior
		o.persist(cs)
		return fmt.Errorf("%w: at phase %q", ErrAborted, phase.Name)
	default:
		return fmt.Errorf("unknown checkpoint decision %q", decision)
	}

	o.persist(cs)
	return nil
}

// loadOrInit restores persisted chain state or initializes a fresh one.
func (o *Orchestrator) loadOrInit(chainName string, phases []models.Phase, resume bool) (*models.ChainState, error) {
	if resume {
		var saved models.ChainState
		err := o.store.Load(docName(chainName), &saved)
		if err == nil && samePhases(saved.Phases, phases) && saved.CurrentIndex < len(saved.Phases) {
			log.Printf("[chain] %s: resuming at phase %d/%d", chainName, saved.CurrentIndex+1, len(saved.Phases))
			// A phase interrupted mid-run restarts cleanly.
			if saved.Phases[saved.CurrentIndex].Status == models.PhaseStatusRunning ||
				saved.Phases[saved.CurrentIndex].Status == models.PhaseStatusCheckpoint {
				saved.Phases[saved.CurrentIndex].Status = models.PhaseStatusPending
			}
			return &saved, nil
		}
		if err != nil && err != state.ErrNotFound {
			return nil, fmt.Errorf("load chain state: %w", err)
		}
	}

	cs := &models.ChainState{
		Name:      chainName,
		Status:    "running",
		Phases:    make([]models.Phase, len(phases)),
		StartedAt: time.Now(),
	}
	copy(cs.Phases, phases)
	for i := range cs.Phases {
		if cs.Phases[i].Status == "" {
			cs.Phases[i].Status = models.PhaseStatusPending
		}
	}
	o.persist(cs)
	return cs, nil
}

// persist writes chain state after a transition. Persist failures are
// logged; in-memory state remains authoritative for this process.
func (o *Orchestrator) persist(cs *models.ChainState) {
	cs.UpdatedAt = time.Now()
	if err := o.store.Save(docName(cs.Name), cs); err != nil {
		log.Printf("[chain] persist %s: %v", cs.Name, err)
	}
}

func samePhases(a []models.Phase, b []models.Phase) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
