// Package compose implements the meta-composer: a declarative list of typed
// steps, each delegating to the fan-out, fusion, or chain engine. Step
// failures are recorded but do not stop subsequent steps; the aggregate
// state reports per-step pass/fail so the caller decides overall success.
package compose

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mpetrun5/drover/internal/chain"
	"github.com/mpetrun5/drover/internal/fusion"
	"github.com/mpetrun5/drover/internal/state"
	"github.com/mpetrun5/drover/internal/supervisor"
	"github.com/mpetrun5/drover/pkg/models"
)

// Supervisor, Fuser, and ChainRunner are the engine slices the composer
// delegates to. Satisfied by the concrete engines; tests substitute fakes.
type Supervisor interface {
	Run(ctx context.Context, specs []models.AgentSpec, opts supervisor.Options) *supervisor.Result
}

// Fuser runs consensus fusion.
type Fuser interface {
	Fuse(ctx context.Context, task string, agentCount int, strategy models.FusionStrategy, params fusion.Params) (*models.FusionResult, error)
}

// ChainRunner runs phase chains.
type ChainRunner interface {
	Run(ctx context.Context, chainName string, phases []models.Phase, opts chain.Options) (*models.ChainState, error)
}

// Composer executes compositions. It holds no retry logic of its own:
// retries belong to the delegated engines.
type Composer struct {
	sup    Supervisor
	fusion Fuser
	chains ChainRunner
	store  state.DocStore

	chainOpts chain.Options
	// defaultStrategy applies to fusion steps that name no strategy.
	defaultStrategy models.FusionStrategy
}

// New creates a Composer over the three engines. defaultStrategy is the
// configured fusion strategy for steps that leave it unset; empty falls back
// to majority.
func New(sup Supervisor, fus Fuser, chains ChainRunner, store state.DocStore, chainOpts chain.Options, defaultStrategy models.FusionStrategy) *Composer {
	if defaultStrategy == "" {
		defaultStrategy = models.FusionMajority
	}
	return &Composer{sup: sup, fusion: fus, chains: chains, store: store, chainOpts: chainOpts, defaultStrategy: defaultStrategy}
}

// Execute runs steps in declared order and returns the accumulated state,
// which is also persisted after every step for inspection after the run.
func (c *Composer) Execute(ctx context.Context, name string, steps []models.CompositionStep) (*models.CompositionState, error) {
	if err := Validate(steps); err != nil {
		return nil, err
	}

	cs := &models.CompositionState{Name: name}
	for _, step := range steps {
		cs.Steps = append(cs.Steps, models.StepRecord{
			Name:       step.Name,
			Type:       step.Type,
			Status:     models.StepStatusPending,
			ThreadKind: threadKind(step.Type),
		})
	}
	c.persist(cs)

	for i := range steps {
		step := steps[i]
		rec := &cs.Steps[i]
		rec.Status = models.StepStatusRunning
		rec.Timestamp = time.Now()
		c.persist(cs)

		log.Printf("[compose] %s: step %q (%s) starting", name, step.Name, step.Type)
		err := c.runStep(ctx, step)

		rec.Timestamp = time.Now()
		if err != nil {
			// Best-effort composition: record and move on.
			rec.Status = models.StepStatusFailed
			rec.Error = err.Error()
			log.Printf("[compose] %s: step %q failed: %v", name, step.Name, err)
		} else {
			rec.Status = models.StepStatusPassed
		}
		c.persist(cs)
	}

	return cs, nil
}

// runStep dispatches one step to its engine.
func (c *Composer) runStep(ctx context.Context, step models.CompositionStep) error {
	budget, err := stepBudget(step)
	if err != nil {
		return err
	}

	switch step.Type {
	case models.StepFanOut:
		specs := make([]models.AgentSpec, 0, len(step.Agents))
		for _, task := range step.Agents {
			specs = append(specs, models.AgentSpec{Name: step.Name, Task: task})
		}
		if len(specs) == 0 && step.Task != "" {
			specs = append(specs, models.AgentSpec{Name: step.Name, Task: step.Task})
		}
		res := c.sup.Run(ctx, specs, supervisor.Options{
			MaxParallel:   step.Parallel,
			MaxIterations: step.MaxIter,
			TimeBudget:    budget,
		})
		if !res.AllComplete() {
			return fmt.Errorf("%d of %d agents failed", res.Failed, len(res.Runs))
		}
		return nil

	case models.StepLongRunning:
		// A long-running loop is one agent with a deep iteration budget.
		res := c.sup.Run(ctx, []models.AgentSpec{{Name: step.Name, Task: step.Task}},
			supervisor.Options{
				MaxParallel:   1,
				MaxIterations: step.MaxIter,
				TimeBudget:    budget,
				RestartPolicy: models.RestartAlways,
				MaxRestarts:   step.MaxIter,
			})
		if !res.AllComplete() {
			return fmt.Errorf("long-running agent did not complete")
		}
		return nil

	case models.StepFusion:
		strategy := step.Strategy
		if strategy == "" {
			strategy = string(c.defaultStrategy)
		}
		result, err := c.fusion.Fuse(ctx, step.Task, step.AgentCount,
			models.FusionStrategy(strategy), fusion.Params{
				ConsensusThreshold: step.Consensus,
				MinConfidence:      step.MinConfidence,
				MaxIterations:      step.MaxIter,
				TimeBudget:         budget,
			})
		if err != nil {
			return err
		}
		if result.Failed {
			return fmt.Errorf("fusion failed: %s", result.Reason)
		}
		return nil

	case models.StepChain:
		phases, err := stepPhases(step)
		if err != nil {
			return err
		}
		opts := c.chainOpts
		opts.TimeBudget = budget
		cs, err := c.chains.Run(ctx, step.Name, phases, opts)
		if err != nil {
			return err
		}
		if cs.Status != "complete" {
			return fmt.Errorf("chain ended %s", cs.Status)
		}
		return nil
	}

	return fmt.Errorf("unknown step type %q", step.Type)
}

func stepPhases(step models.CompositionStep) ([]models.Phase, error) {
	if step.Template != "" {
		return chain.PhasesFromTemplate(step.Template, step.Task)
	}
	if len(step.Phases) > 0 {
		return chain.PhasesFromNames(step.Phases, step.Task), nil
	}
	return nil, fmt.Errorf("chain step %q needs a template or phases", step.Name)
}

func stepBudget(step models.CompositionStep) (time.Duration, error) {
	if step.TimeBudget == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(step.TimeBudget)
	if err != nil {
		return 0, fmt.Errorf("step %q time budget: %w", step.Name, err)
	}
	return d, nil
}

// threadKind labels how a step executes, recorded for inspection.
func threadKind(t models.StepType) string {
	switch t {
	case models.StepFanOut, models.StepFusion:
		return "parallel"
	case models.StepChain:
		return "sequential"
	case models.StepLongRunning:
		return "background"
	}
	return "unknown"
}

func (c *Composer) persist(cs *models.CompositionState) {
	cs.UpdatedAt = time.Now()
	if err := c.store.Save("composition-"+cs.Name, cs); err != nil {
		log.Printf("[compose] persist %s: %v", cs.Name, err)
	}
}
