// Package fusion runs N independent agent instances against one task and
// reconciles their structured outputs into a single result via a selectable
// strategy.
package fusion

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mpetrun5/drover/internal/agent"
	"github.com/mpetrun5/drover/internal/supervisor"
	"github.com/mpetrun5/drover/pkg/models"
)

// Params tune a fusion invocation.
type Params struct {
	// ConsensusThreshold is the majority cutoff fraction (0..1].
	ConsensusThreshold float64
	// MinConfidence is the floor for the best strategy.
	MinConfidence float64
	// MaxIterations and TimeBudget are passed through to the supervisor.
	MaxIterations int
	TimeBudget    time.Duration
}

func (p *Params) withDefaults() Params {
	out := *p
	if out.ConsensusThreshold <= 0 || out.ConsensusThreshold > 1 {
		out.ConsensusThreshold = 0.6
	}
	if out.MinConfidence <= 0 {
		out.MinConfidence = 7
	}
	return out
}

// Supervisor is the slice of the fan-out engine fusion needs. Satisfied by
// *supervisor.Supervisor; tests substitute a fake.
type Supervisor interface {
	Run(ctx context.Context, specs []models.AgentSpec, opts supervisor.Options) *supervisor.Result
}

// Engine is the consensus fusion engine. It delegates execution to the
// supervisor and owns only the reconciliation step.
type Engine struct {
	sup              Supervisor
	completionMarker string
}

// New creates a fusion Engine on top of a supervisor.
func New(sup Supervisor, completionMarker string) *Engine {
	return &Engine{sup: sup, completionMarker: completionMarker}
}

// Fuse runs agentCount independent instances of task and reconciles their
// findings with the given strategy. Agents that fail are excluded from the
// consensus denominator; zero completions fails the fusion.
func (e *Engine) Fuse(ctx context.Context, task string, agentCount int, strategy models.FusionStrategy, params Params) (*models.FusionResult, error) {
	if agentCount < 1 {
		return nil, fmt.Errorf("fusion requires at least one agent, got %d", agentCount)
	}
	if !models.ValidFusionStrategy(string(strategy)) {
		return nil, fmt.Errorf("unknown fusion strategy %q", strategy)
	}
	params = params.withDefaults()

	specs := make([]models.AgentSpec, agentCount)
	for i := range specs {
		specs[i] = models.AgentSpec{
			Name: fmt.Sprintf("fusion-%d", i+1),
			Task: task,
		}
	}

	res := e.sup.Run(ctx, specs, supervisor.Options{
		MaxParallel:   agentCount,
		MaxIterations: params.MaxIterations,
		TimeBudget:    params.TimeBudget,
	})

	// Parse each completed run's output. Failed and crashed agents
	// contribute nothing and shrink the denominator.
	var views []agentView
	for _, run := range res.Runs {
		if run.Status != models.RunStatusComplete {
			continue
		}
		data, err := os.ReadFile(run.OutputPath)
		if err != nil {
			continue
		}
		rep := agent.ParseReport(string(data), e.completionMarker)
		views = append(views, agentView{
			agentID:    run.ID,
			confidence: rep.Confidence,
			findings:   rep.Findings,
		})
	}

	result := reconcile(strategy, agentCount, views, params)
	return result, nil
}

// agentView is one completed agent's contribution to fusion.
type agentView struct {
	agentID    string
	confidence float64
	findings   []string
}
