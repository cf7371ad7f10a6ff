package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mpetrun5/drover/internal/compose"
	"github.com/mpetrun5/drover/pkg/models"
)

var (
	composeTemplate string
	composeFile     string
	composeAuto     bool
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Execute a declarative composition of typed steps",
	Long: `Execute an ordered list of typed steps (fan-out, fusion, chain,
long-running), each delegating to the corresponding engine. A failed step is
recorded but does not stop subsequent steps.

The composition comes from --composition <file> (YAML) or a built-in
--template.

Exits 1 if any step failed.`,
	RunE: runCompose,
}

func init() {
	composeCmd.Flags().StringVar(&composeTemplate, "template", "", "Built-in composition template")
	composeCmd.Flags().StringVar(&composeFile, "composition", "", "Path to a YAML composition file")
	composeCmd.Flags().BoolVar(&composeAuto, "auto", true, "Continue chain-step checkpoints without prompting")
}

func runCompose(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		name  string
		steps []models.CompositionStep
	)
	switch {
	case composeFile != "":
		name, steps, err = compose.LoadFile(composeFile)
		if err != nil {
			return err
		}
	case composeTemplate != "":
		steps, err = compose.Template(composeTemplate)
		if err != nil {
			return err
		}
		name = composeTemplate
	default:
		return fmt.Errorf("either --composition or --template is required")
	}

	chainOpts := a.chainOptions()
	if composeAuto {
		chainOpts.Checkpoints = false
	}

	cs, err := a.composer(chainOpts).Execute(context.Background(), name, steps)
	if err != nil {
		return err
	}

	printComposition(cs)
	if cs.Failed() {
		return fmt.Errorf("composition %s had failed steps", cs.Name)
	}
	return nil
}

func printComposition(cs *models.CompositionState) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("composition %s:\n", cs.Name)
	for _, s := range cs.Steps {
		status := string(s.Status)
		switch s.Status {
		case models.StepStatusPassed:
			status = green(status)
		case models.StepStatusFailed:
			status = red(status)
		}
		line := fmt.Sprintf("  %-20s %-12s %s", s.Name, s.Type, status)
		if s.Error != "" {
			line += "  (" + s.Error + ")"
		}
		fmt.Println(line)
	}
}
