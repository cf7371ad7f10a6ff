package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Fault-tolerant orchestration of autonomous agents",
	Long: `Drover supervises long-running external agents across five execution
topologies: bounded fan-out, consensus fusion, checkpointed phase chains,
long-running loops, and declarative compositions that nest the other four.

The scheduler core carries a durable circuit breaker, a stall/liveness
detector, a consensus-aggregation engine, and a resumable phase state
machine with human checkpoint gates. Agents are opaque commands: they write
progress to an output file and emit an explicit completion marker when done.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fuseCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(circuitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
