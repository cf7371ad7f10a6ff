package chain

import (
	"fmt"
	"strings"

	"github.com/mpetrun5/drover/pkg/models"
)

// templates are the built-in named phase lists.
var templates = map[string][]string{
	"feature": {"plan", "implement", "test", "review"},
	"bugfix":  {"reproduce", "fix", "verify"},
	"audit":   {"survey", "analyze", "report"},
}

// TemplateNames returns the available template names.
func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	return names
}

// PhasesFromTemplate expands a named template into phases, each phase's task
// combining the template task wording with the overall chain task.
func PhasesFromTemplate(name, task string) ([]models.Phase, error) {
	names, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown chain template %q (have: %s)",
			name, strings.Join(TemplateNames(), ", "))
	}
	return PhasesFromNames(names, task), nil
}

// PhasesFromNames builds phases from explicit phase names (--phases CSV).
func PhasesFromNames(names []string, task string) []models.Phase {
	phases := make([]models.Phase, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		phases = append(phases, models.Phase{
			Name:   name,
			Task:   fmt.Sprintf("[phase: %s] %s", name, task),
			Status: models.PhaseStatusPending,
		})
	}
	return phases
}
