package compose

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mpetrun5/drover/pkg/models"
)

// compositionFile is the YAML shape of a composition document.
type compositionFile struct {
	Name  string                   `yaml:"name"`
	Steps []models.CompositionStep `yaml:"steps"`
}

// LoadFile reads a composition from a YAML file.
func LoadFile(path string) (string, []models.CompositionStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read composition file: %w", err)
	}

	var doc compositionFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", nil, fmt.Errorf("parse composition file: %w", err)
	}
	if doc.Name == "" {
		doc.Name = "composition"
	}
	if err := Validate(doc.Steps); err != nil {
		return "", nil, err
	}
	return doc.Name, doc.Steps, nil
}

// Validate checks a composition's steps before execution.
func Validate(steps []models.CompositionStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("composition has no steps")
	}

	seen := make(map[string]bool)
	for i, step := range steps {
		if step.Name == "" {
			return fmt.Errorf("step %d has no name", i+1)
		}
		if seen[step.Name] {
			return fmt.Errorf("duplicate step name %q", step.Name)
		}
		seen[step.Name] = true

		if !models.ValidStepType(string(step.Type)) {
			return fmt.Errorf("step %q has unknown type %q", step.Name, step.Type)
		}

		switch step.Type {
		case models.StepFanOut:
			if len(step.Agents) == 0 && step.Task == "" {
				return fmt.Errorf("fan-out step %q needs agents or a task", step.Name)
			}
		case models.StepFusion:
			if step.Task == "" {
				return fmt.Errorf("fusion step %q needs a task", step.Name)
			}
			if step.AgentCount < 1 {
				return fmt.Errorf("fusion step %q needs agent_count >= 1", step.Name)
			}
			if step.Strategy != "" && !models.ValidFusionStrategy(step.Strategy) {
				return fmt.Errorf("fusion step %q has unknown strategy %q", step.Name, step.Strategy)
			}
		case models.StepChain:
			if step.Template == "" && len(step.Phases) == 0 {
				return fmt.Errorf("chain step %q needs a template or phases", step.Name)
			}
		case models.StepLongRunning:
			if step.Task == "" {
				return fmt.Errorf("long-running step %q needs a task", step.Name)
			}
		}
	}
	return nil
}

// ChainTemplates are built-in named compositions selectable via --template.
var ChainTemplates = map[string][]models.CompositionStep{
	"explore-then-build": {
		{Name: "explore", Type: models.StepFusion, Task: "survey the codebase and report findings", AgentCount: 3, Strategy: "majority"},
		{Name: "build", Type: models.StepChain, Template: "feature", Task: "implement the selected findings"},
	},
	"parallel-audit": {
		{Name: "audit", Type: models.StepFusion, Task: "audit the codebase for defects", AgentCount: 5, Strategy: "majority"},
		{Name: "fix", Type: models.StepFanOut, Task: "fix the reported defects", Parallel: 3},
	},
}

// Template returns a built-in composition by name.
func Template(name string) ([]models.CompositionStep, error) {
	steps, ok := ChainTemplates[name]
	if !ok {
		return nil, fmt.Errorf("unknown composition template %q", name)
	}
	return steps, nil
}
