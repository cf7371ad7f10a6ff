package fusion

import (
	"strings"
	"testing"

	"github.com/mpetrun5/drover/pkg/models"
)

func view(id string, confidence float64, findings ...string) agentView {
	return agentView{agentID: id, confidence: confidence, findings: findings}
}

func findingTexts(result *models.FusionResult) []string {
	out := make([]string, 0, len(result.Findings))
	for _, f := range result.Findings {
		out = append(out, f.Text)
	}
	return out
}

func TestMajorityKeepsThresholdFindings(t *testing.T) {
	views := []agentView{
		view("a", 8, "missing auth check", "flaky test in ci"),
		view("b", 7, "missing auth check"),
		view("c", 9, "missing auth check", "flaky test in ci"),
		view("d", 6, "unused import"),
		view("e", 8, "unused import"),
	}

	result := reconcile(models.FusionMajority, 5, views, Params{ConsensusThreshold: 0.6})

	// ceil(5 * 0.6) = 3: only the finding with three reporters survives.
	texts := findingTexts(result)
	if len(texts) != 1 || texts[0] != "missing auth check" {
		t.Errorf("expected only the 3/5 finding, got %v", texts)
	}
	if result.Stats.Support[normalize("missing auth check")] != 3 {
		t.Errorf("expected support 3, got %d", result.Stats.Support[normalize("missing auth check")])
	}
}

func TestMajorityDenominatorIsCompletedAgents(t *testing.T) {
	// Five agents launched, only three completed: the cutoff is computed
	// over completions, so 2/3 reporters clear a 0.6 threshold.
	views := []agentView{
		view("a", 8, "missing auth check"),
		view("b", 7, "missing auth check"),
		view("c", 9, "something else"),
	}

	result := reconcile(models.FusionMajority, 5, views, Params{ConsensusThreshold: 0.6})

	if len(result.Findings) != 1 {
		t.Fatalf("expected one finding over the shrunken denominator, got %v", findingTexts(result))
	}
	if result.Stats.AgentCount != 5 || result.Stats.Completed != 3 {
		t.Errorf("stats = %+v, want AgentCount 5 Completed 3", result.Stats)
	}
}

func TestConsensusRequiresUnanimity(t *testing.T) {
	views := []agentView{
		view("a", 8, "missing auth check", "flaky test"),
		view("b", 7, "missing auth check", "flaky test"),
		view("c", 9, "missing auth check", "flaky test"),
		view("d", 6, "missing auth check"),
	}

	result := reconcile(models.FusionConsensus, 4, views, Params{})

	texts := findingTexts(result)
	if len(texts) != 1 || texts[0] != "missing auth check" {
		t.Errorf("expected only the unanimous finding, got %v", texts)
	}
}

func TestBestFailsBelowMinConfidence(t *testing.T) {
	views := []agentView{
		view("a", 5, "finding one"),
		view("b", 6, "finding two"),
	}

	result := reconcile(models.FusionBest, 2, views, Params{MinConfidence: 7})

	if !result.Failed {
		t.Fatal("expected fusion failure when no view clears the confidence floor")
	}
	if !strings.Contains(result.Reason, "below minimum") {
		t.Errorf("unexpected reason %q", result.Reason)
	}
}

func TestBestTiesGoFirstSeen(t *testing.T) {
	views := []agentView{
		view("a", 9, "finding from a"),
		view("b", 9, "finding from b"),
	}

	result := reconcile(models.FusionBest, 2, views, Params{MinConfidence: 7})

	if result.SelectedAgentID != "a" {
		t.Errorf("tie should select first-seen agent, got %s", result.SelectedAgentID)
	}
}

func TestMergeDedupesByNormalizedText(t *testing.T) {
	views := []agentView{
		view("a", 8, "- Missing Auth Check", "unused import"),
		view("b", 7, "missing  auth check"),
	}

	result := reconcile(models.FusionMerge, 2, views, Params{})

	if len(result.Findings) != 2 {
		t.Fatalf("expected bullet and case variants to collapse, got %v", findingTexts(result))
	}
	// First-seen wording wins.
	if result.Findings[0].Text != "- Missing Auth Check" {
		t.Errorf("expected first-seen wording, got %q", result.Findings[0].Text)
	}
	if result.Stats.Support[normalize("missing auth check")] != 2 {
		t.Errorf("expected support 2 for the merged finding")
	}
}

func TestWeightedOrdersByConfidenceSum(t *testing.T) {
	views := []agentView{
		view("a", 3, "low support finding"),
		view("b", 9, "strong finding"),
		view("c", 9, "strong finding"),
	}

	result := reconcile(models.FusionWeighted, 3, views, Params{})

	texts := findingTexts(result)
	if len(texts) != 2 || texts[0] != "strong finding" {
		t.Errorf("expected weight-ranked output, got %v", texts)
	}
}

func TestReconcileNoCompletionsFails(t *testing.T) {
	result := reconcile(models.FusionMajority, 3, nil, Params{ConsensusThreshold: 0.6})

	if !result.Failed {
		t.Fatal("expected failure with zero completed agents")
	}
	if result.Reason != "no agents completed" {
		t.Errorf("unexpected reason %q", result.Reason)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"- Missing Auth Check", "missing auth check"},
		{"* missing auth check ", "missing auth check"},
		{"missing\tauth   check", "missing auth check"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
