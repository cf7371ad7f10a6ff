package chain

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mpetrun5/drover/pkg/models"
)

// PromptDecider reads checkpoint decisions interactively. The chain blocks
// here until the operator answers.
type PromptDecider struct {
	In  io.Reader
	Out io.Writer
}

// NewPromptDecider creates a PromptDecider on the given streams.
func NewPromptDecider(in io.Reader, out io.Writer) *PromptDecider {
	return &PromptDecider{In: in, Out: out}
}

// Decide implements Decider.
func (d *PromptDecider) Decide(phase *models.Phase, failed bool) (models.CheckpointDecision, error) {
	outcome := "completed"
	if failed {
		outcome = "FAILED"
	}
	fmt.Fprintf(d.Out, "\nPhase %q %s.", phase.Name, outcome)
	if phase.ValidationFailed {
		fmt.Fprintf(d.Out, " (validation failed, advisory)")
	}
	fmt.Fprintln(d.Out)

	scanner := bufio.NewScanner(d.In)
	for {
		fmt.Fprint(d.Out, "[c]ontinue / [r]etry / [s]kip / [a]bort? ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("read checkpoint decision: %w", err)
			}
			return models.DecisionAbort, nil
		}

		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "c", "continue":
			return models.DecisionContinue, nil
		case "r", "retry":
			return models.DecisionRetry, nil
		case "s", "skip":
			return models.DecisionSkip, nil
		case "a", "abort":
			return models.DecisionAbort, nil
		}
		fmt.Fprintln(d.Out, "unrecognized answer")
	}
}
