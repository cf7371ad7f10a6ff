package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mpetrun5/drover/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show breaker state, recent runs, and chain progress",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	bold := color.New(color.Bold).SprintFunc()

	fmt.Println(bold("circuit breaker"))
	printBreaker(a)

	fmt.Println()
	fmt.Println(bold("recent invocations"))
	invocations, err := a.db.RecentInvocations(10)
	if err != nil {
		return err
	}
	if len(invocations) == 0 {
		fmt.Println("  (none)")
	}
	for _, inv := range invocations {
		state := "running"
		if !inv.FinishedAt.IsZero() {
			state = fmt.Sprintf("%d completed, %d failed", inv.Completed, inv.Failed)
		}
		fmt.Printf("  %s  %-10s %-30s %s\n",
			inv.StartedAt.Local().Format("2006-01-02 15:04"), inv.Kind, truncate(inv.Label, 30), state)
	}

	fmt.Println()
	fmt.Println(bold("chains"))
	names, err := a.store.List()
	if err != nil {
		return err
	}
	printed := false
	for _, name := range names {
		if !strings.HasPrefix(name, "chain-") {
			continue
		}
		var cs models.ChainState
		if err := a.store.Load(name, &cs); err != nil {
			continue
		}
		current := cs.CurrentIndex + 1
		if current > len(cs.Phases) {
			current = len(cs.Phases)
		}
		fmt.Printf("  %-20s %-10s phase %d/%d\n", cs.Name, cs.Status, current, len(cs.Phases))
		printed = true
	}
	if !printed {
		fmt.Println("  (none)")
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
