package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mpetrun5/drover/internal/chain"
	"github.com/mpetrun5/drover/pkg/models"
)

var (
	chainTemplate     string
	chainPhases       string
	chainName         string
	chainAuto         bool
	chainNoValidation bool
	chainNoResume     bool
	chainTimeout      time.Duration
)

var chainCmd = &cobra.Command{
	Use:   "chain <task>",
	Short: "Run a checkpointed multi-phase chain",
	Long: `Run an ordered list of named phases, each executed as one supervisor
invocation. After each completed phase a checkpoint gate asks for a
decision: continue, retry, skip, or abort. Pass --auto to continue through
checkpoints unattended.

Phase state is persisted after every transition; an interrupted chain
resumes at its current phase unless --no-resume is set.

Exits 1 if any phase ends failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runChain,
}

func init() {
	chainCmd.Flags().StringVar(&chainTemplate, "template", "", "Built-in phase template: "+strings.Join(chain.TemplateNames(), ", "))
	chainCmd.Flags().StringVar(&chainPhases, "phases", "", "Comma-separated phase names (overrides --template)")
	chainCmd.Flags().StringVar(&chainName, "name", "", "Chain name for state persistence (default derived from template)")
	chainCmd.Flags().BoolVar(&chainAuto, "auto", false, "Continue through checkpoints without prompting")
	chainCmd.Flags().BoolVar(&chainNoValidation, "no-validation", false, "Disable advisory post-phase validation")
	chainCmd.Flags().BoolVar(&chainNoResume, "no-resume", false, "Discard persisted state and start at phase 1")
	chainCmd.Flags().DurationVar(&chainTimeout, "timeout", 0, "Per-phase time budget (default from config)")
}

func runChain(cmd *cobra.Command, args []string) error {
	task := args[0]

	var decider chain.Decider
	if chainAuto {
		decider = chain.AutoDecider{}
	} else {
		decider = chain.NewPromptDecider(os.Stdin, os.Stdout)
	}

	a, err := newApp(decider)
	if err != nil {
		return err
	}
	defer a.Close()

	var phases []models.Phase
	switch {
	case chainPhases != "":
		phases = chain.PhasesFromNames(strings.Split(chainPhases, ","), task)
	case chainTemplate != "":
		phases, err = chain.PhasesFromTemplate(chainTemplate, task)
		if err != nil {
			return err
		}
	default:
		phases, _ = chain.PhasesFromTemplate("feature", task)
		chainTemplate = "feature"
	}

	name := chainName
	if name == "" {
		name = chainTemplate
		if name == "" {
			name = "chain"
		}
	}

	opts := a.chainOptions()
	opts.Resume = !chainNoResume
	if chainNoValidation {
		opts.Validation = false
	}
	if chainAuto {
		opts.Checkpoints = false
	}
	if chainTimeout > 0 {
		opts.TimeBudget = chainTimeout
	}

	cs, runErr := a.chains.Run(context.Background(), name, phases, opts)
	if cs != nil {
		printChain(cs)
	}
	if runErr != nil {
		return runErr
	}
	if cs.Status != "complete" {
		return fmt.Errorf("chain ended %s", cs.Status)
	}
	return nil
}

func printChain(cs *models.ChainState) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Printf("chain %s: %s\n", cs.Name, cs.Status)
	for _, p := range cs.Phases {
		status := string(p.Status)
		switch p.Status {
		case models.PhaseStatusComplete:
			status = green(status)
		case models.PhaseStatusFailed:
			status = red(status)
		case models.PhaseStatusSkipped:
			status = yellow(status)
		}
		line := fmt.Sprintf("  %-15s %s", p.Name, status)
		if p.RetryCount > 0 {
			line += fmt.Sprintf("  (retried %d)", p.RetryCount)
		}
		if p.ValidationFailed {
			line += "  (validation failed)"
		}
		fmt.Println(line)
	}
}
