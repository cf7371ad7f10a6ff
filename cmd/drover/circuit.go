package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mpetrun5/drover/internal/breaker"
)

var circuitCmd = &cobra.Command{
	Use:   "circuit",
	Short: "Inspect or reset the circuit breaker",
}

var circuitStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print circuit breaker state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()
		printBreaker(a)
		return nil
	},
}

var circuitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the circuit breaker (operator action)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()
		a.breaker.Reset()
		fmt.Println("circuit breaker reset")
		return nil
	},
}

func printBreaker(a *app) {
	snap := a.breaker.Current()

	stateStr := string(snap.State)
	switch snap.State {
	case breaker.Closed:
		stateStr = color.GreenString(stateStr)
	case breaker.Open:
		stateStr = color.RedString(stateStr)
	case breaker.HalfOpen:
		stateStr = color.YellowString(stateStr)
	}

	fmt.Printf("state:                %s\n", stateStr)
	fmt.Printf("consecutive failures: %d\n", snap.ConsecutiveFailures)
	if !snap.LastFailureAt.IsZero() {
		fmt.Printf("last failure:         %s ago\n", time.Since(snap.LastFailureAt).Round(time.Second))
	}
	if snap.State == breaker.Open {
		remaining := a.breaker.Cooldown() - time.Since(snap.LastFailureAt)
		if remaining > 0 {
			fmt.Printf("cooldown remaining:   %s\n", remaining.Round(time.Second))
		}
	}
}

func init() {
	circuitCmd.AddCommand(circuitStatusCmd)
	circuitCmd.AddCommand(circuitResetCmd)
}
