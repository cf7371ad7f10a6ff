package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mpetrun5/drover/internal/agent"
	"github.com/mpetrun5/drover/internal/breaker"
	"github.com/mpetrun5/drover/internal/chain"
	"github.com/mpetrun5/drover/internal/compose"
	"github.com/mpetrun5/drover/internal/config"
	"github.com/mpetrun5/drover/internal/fusion"
	"github.com/mpetrun5/drover/internal/liveness"
	"github.com/mpetrun5/drover/internal/state"
	"github.com/mpetrun5/drover/internal/supervisor"
	"github.com/mpetrun5/drover/internal/workspace"
	"github.com/mpetrun5/drover/pkg/models"
)

// app wires the engines together for one CLI invocation.
type app struct {
	cfg        *config.Config
	root       string
	store      *state.FileDocStore
	db         *state.DB
	breaker    *breaker.Breaker
	monitor    *liveness.Monitor
	watcher    *liveness.OutputWatcher
	sup        *supervisor.Supervisor
	fusion     *fusion.Engine
	chains     *chain.Orchestrator
	workspaces *workspace.Manager
}

// newApp builds the full engine stack from configuration. decider may be
// nil; chain commands install their own.
func newApp(decider chain.Decider) (*app, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	store, err := state.NewFileDocStore(state.DefaultStateDir(root))
	if err != nil {
		return nil, err
	}

	db, err := state.Open(state.ProjectDBPath(root))
	if err != nil {
		return nil, err
	}

	brk, err := breaker.New(store, cfg.Breaker.Threshold, cfg.Breaker.Cooldown)
	if err != nil {
		db.Close()
		return nil, err
	}

	monitor := liveness.NewMonitor(cfg.Liveness.StallAfter, cfg.Liveness.MinIndicators, cfg.Liveness.CompletionMarker)

	outputDir := cfg.Agent.OutputDir
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(root, outputDir)
	}

	a := &app{
		cfg:     cfg,
		root:    root,
		store:   store,
		db:      db,
		breaker: brk,
		monitor: monitor,
	}

	runner := agent.NewExecRunner(cfg.Agent.Command)
	a.sup = supervisor.New(brk, monitor, runner, outputDir, root).WithArchive(db)

	// The watcher is advisory; failing to start it falls back to stat.
	if w, err := liveness.NewOutputWatcher(outputDir); err == nil {
		a.watcher = w
		a.sup.WithWatcher(w)
	} else {
		log.Printf("[drover] output watcher unavailable: %v", err)
	}

	if cfg.Workspace.Enabled {
		wm, err := workspace.NewManager(cfg.Workspace.BaseDir, workspace.NewExecGit(root),
			workspace.CommandValidator(cfg.Workspace.ValidateCommand))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.workspaces = wm
		a.sup.WithWorkspaces(wm)
	}

	a.fusion = fusion.New(a.sup, cfg.Liveness.CompletionMarker)

	validator := &chain.CommandValidator{Command: cfg.Workspace.ValidateCommand, Dir: root}
	a.chains = chain.New(a.sup, store, decider, validator)

	return a, nil
}

// composer builds the meta-composer with the app's chain options.
func (a *app) composer(chainOpts chain.Options) *compose.Composer {
	return compose.New(a.sup, a.fusion, a.chains, a.store, chainOpts,
		models.FusionStrategy(a.cfg.Fusion.DefaultStrategy))
}

// chainOptions translates configuration into chain options.
func (a *app) chainOptions() chain.Options {
	return chain.Options{
		Checkpoints:       a.cfg.Chain.Checkpoints,
		CheckpointOnError: a.cfg.Chain.CheckpointOnError,
		Validation:        a.cfg.Chain.Validation,
		StrictValidation:  a.cfg.Chain.StrictValidation,
		MaxRetries:        a.cfg.Chain.MaxRetries,
		Resume:            true,
		Parallel:          a.cfg.Supervisor.MaxParallel,
		MaxIter:           a.cfg.Supervisor.MaxIterations,
		TimeBudget:        a.cfg.Supervisor.TimeBudget,
	}
}

// supOptions translates configuration into supervisor options.
func (a *app) supOptions() supervisor.Options {
	return supervisor.Options{
		MaxParallel:   a.cfg.Supervisor.MaxParallel,
		MaxIterations: a.cfg.Supervisor.MaxIterations,
		TimeBudget:    a.cfg.Supervisor.TimeBudget,
		RestartPolicy: models.ParseRestartPolicy(a.cfg.Supervisor.RestartPolicy),
		MaxRestarts:   a.cfg.Supervisor.MaxRestarts,
		PollInterval:  a.cfg.Supervisor.PollInterval,
	}
}

// Close releases the app's resources.
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
