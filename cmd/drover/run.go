package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mpetrun5/drover/pkg/models"
)

var (
	runParallel      int
	runTimeout       time.Duration
	runMaxIter       int
	runAgents        string
	runResetCircuit  bool
	runCircuitStatus bool
	runRestartPolicy string
)

var runCmd = &cobra.Command{
	Use:   "run [task]...",
	Short: "Run agents with bounded-concurrency fan-out",
	Long: `Run one or more agent tasks concurrently, capped at --parallel active
agents. Every dispatch is gated on the circuit breaker: while the breaker is
open the supervisor pauses and resumes after the cooldown instead of
failing. Stalled or crashed agents are restarted per the restart policy.

Tasks come from positional arguments and/or --agents (comma-separated).

Exits 0 if all agents complete, 1 otherwise.`,
	RunE: runFanOut,
}

func init() {
	runCmd.Flags().IntVar(&runParallel, "parallel", 0, "Max concurrently active agents (default from config)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-agent time budget (default from config)")
	runCmd.Flags().IntVar(&runMaxIter, "max-iter", 0, "Per-agent iteration budget (default from config)")
	runCmd.Flags().StringVar(&runAgents, "agents", "", "Comma-separated agent tasks")
	runCmd.Flags().StringVar(&runRestartPolicy, "restart", "", "Restart policy: never, once, or always")
	runCmd.Flags().BoolVar(&runResetCircuit, "reset-circuit", false, "Reset the circuit breaker and exit")
	runCmd.Flags().BoolVar(&runCircuitStatus, "circuit-status", false, "Print circuit breaker state and exit")
}

func runFanOut(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if runResetCircuit {
		a.breaker.Reset()
		fmt.Println("circuit breaker reset")
		return nil
	}
	if runCircuitStatus {
		printBreaker(a)
		return nil
	}

	tasks := append([]string{}, args...)
	for _, t := range strings.Split(runAgents, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no agent tasks given (positional args or --agents)")
	}

	specs := make([]models.AgentSpec, len(tasks))
	for i, task := range tasks {
		specs[i] = models.AgentSpec{Name: fmt.Sprintf("agent-%d", i+1), Task: task}
	}

	opts := a.supOptions()
	if runParallel > 0 {
		opts.MaxParallel = runParallel
	}
	if runTimeout > 0 {
		opts.TimeBudget = runTimeout
	}
	if runMaxIter > 0 {
		opts.MaxIterations = runMaxIter
	}
	if runRestartPolicy != "" {
		opts.RestartPolicy = models.ParseRestartPolicy(runRestartPolicy)
	}

	res := a.sup.Run(context.Background(), specs, opts)
	printRunSummary(res.Runs)

	if !res.AllComplete() {
		return fmt.Errorf("%d of %d agents failed", res.Failed, len(res.Runs))
	}
	return nil
}

// printRunSummary prints the per-unit summary required on every exit path:
// name and final status, with the failure reason when there is one.
func printRunSummary(runs []*models.AgentRun) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	for _, run := range runs {
		status := string(run.Status)
		if run.Status == models.RunStatusComplete {
			status = green(status)
		} else {
			status = red(status)
		}
		line := fmt.Sprintf("  %-20s %s", run.Spec.Name, status)
		if run.FailureReason != "" {
			line += "  (" + run.FailureReason + ")"
		}
		fmt.Println(line)
	}
}
