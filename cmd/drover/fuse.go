package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mpetrun5/drover/internal/fusion"
	"github.com/mpetrun5/drover/pkg/models"
)

var (
	fuseMode          string
	fuseAgents        int
	fuseMinConfidence float64
	fuseConsensus     float64
)

var fuseCmd = &cobra.Command{
	Use:   "fuse <task>",
	Short: "Run N agents on one task and fuse their results",
	Long: `Run the same task on several independent agents and reconcile their
findings into a single result.

Modes:
  majority   keep findings reported by >= ceil(completed * consensus) agents
  consensus  keep only unanimous findings
  best       select the single highest-confidence agent
  merge      union of all distinct findings
  weighted   rank findings by confidence-weighted occurrence

Exits 1 when best mode finds no result at or above --min-confidence, or when
no agent completes.`,
	Args: cobra.ExactArgs(1),
	RunE: runFuse,
}

func init() {
	fuseCmd.Flags().StringVar(&fuseMode, "mode", "", "Fusion strategy: majority, best, merge, consensus, or weighted (default from config)")
	fuseCmd.Flags().IntVar(&fuseAgents, "agents", 3, "Number of independent agent instances")
	fuseCmd.Flags().Float64Var(&fuseMinConfidence, "min-confidence", 0, "Confidence floor for best mode (default from config)")
	fuseCmd.Flags().Float64Var(&fuseConsensus, "consensus", 0, "Majority cutoff fraction in (0,1] (default from config)")
}

func runFuse(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	mode := fuseMode
	if mode == "" {
		mode = a.cfg.Fusion.DefaultStrategy
	}
	if mode == "" {
		mode = string(models.FusionMajority)
	}

	params := fusion.Params{
		ConsensusThreshold: a.cfg.Fusion.ConsensusThreshold,
		MinConfidence:      a.cfg.Fusion.MinConfidence,
		MaxIterations:      a.cfg.Supervisor.MaxIterations,
		TimeBudget:         a.cfg.Supervisor.TimeBudget,
	}
	if fuseConsensus > 0 {
		params.ConsensusThreshold = fuseConsensus
	}
	if fuseMinConfidence > 0 {
		params.MinConfidence = fuseMinConfidence
	}

	result, err := a.fusion.Fuse(context.Background(), args[0], fuseAgents,
		models.FusionStrategy(mode), params)
	if err != nil {
		return err
	}

	printFusion(result)
	if result.Failed {
		return fmt.Errorf("fusion failed: %s", result.Reason)
	}
	return nil
}

func printFusion(result *models.FusionResult) {
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("%s fusion: %d/%d agents completed\n",
		bold(string(result.Strategy)), result.Stats.Completed, result.Stats.AgentCount)
	if result.SelectedAgentID != "" {
		fmt.Printf("selected agent: %s\n", shortID(result.SelectedAgentID))
	}
	for _, f := range result.Findings {
		support := result.Stats.Support[fusion.NormalizeFinding(f.Text)]
		fmt.Printf("  - %s  [%d/%d, confidence %.1f]\n",
			f.Text, support, result.Stats.Completed, f.Confidence)
	}
	if len(result.Findings) == 0 && !result.Failed {
		fmt.Println("  (no findings survived fusion)")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
