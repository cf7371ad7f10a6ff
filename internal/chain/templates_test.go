package chain

import (
	"strings"
	"testing"
)

func TestPhasesFromTemplate(t *testing.T) {
	phases, err := PhasesFromTemplate("feature", "add dark mode")
	if err != nil {
		t.Fatalf("PhasesFromTemplate: %v", err)
	}

	want := []string{"plan", "implement", "test", "review"}
	if len(phases) != len(want) {
		t.Fatalf("expected %d phases, got %d", len(want), len(phases))
	}
	for i, p := range phases {
		if p.Name != want[i] {
			t.Errorf("phase %d = %s, want %s", i, p.Name, want[i])
		}
		if !strings.Contains(p.Task, "add dark mode") {
			t.Errorf("phase %s task %q lost the chain task", p.Name, p.Task)
		}
	}
}

func TestPhasesFromTemplateUnknown(t *testing.T) {
	if _, err := PhasesFromTemplate("release", "ship it"); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestPhasesFromNames(t *testing.T) {
	phases := PhasesFromNames([]string{"design", " build ", "", "verify"}, "the task")

	if len(phases) != 3 {
		t.Fatalf("expected blank names dropped, got %d phases", len(phases))
	}
	if phases[1].Name != "build" {
		t.Errorf("expected trimmed name, got %q", phases[1].Name)
	}
	if phases[0].Task != "[phase: design] the task" {
		t.Errorf("task = %q", phases[0].Task)
	}
}
