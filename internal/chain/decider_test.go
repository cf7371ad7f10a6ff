package chain

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mpetrun5/drover/pkg/models"
)

func TestPromptDeciderAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  models.CheckpointDecision
	}{
		{"c\n", models.DecisionContinue},
		{"continue\n", models.DecisionContinue},
		{"R\n", models.DecisionRetry},
		{"s\n", models.DecisionSkip},
		{"abort\n", models.DecisionAbort},
		{"what\nc\n", models.DecisionContinue},
	}

	for _, tt := range tests {
		d := NewPromptDecider(strings.NewReader(tt.input), &bytes.Buffer{})
		got, err := d.Decide(&models.Phase{Name: "plan"}, false)
		if err != nil {
			t.Fatalf("Decide(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Decide(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestPromptDeciderEOFAborts(t *testing.T) {
	d := NewPromptDecider(strings.NewReader(""), &bytes.Buffer{})
	got, err := d.Decide(&models.Phase{Name: "plan"}, true)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got != models.DecisionAbort {
		t.Errorf("EOF should abort, got %s", got)
	}
}
