package models

// FusionStrategy selects how N independent result sets are reconciled.
type FusionStrategy string

const (
	// FusionMajority keeps findings reported by at least
	// ceil(completed * consensus_threshold) agents.
	FusionMajority FusionStrategy = "majority"
	// FusionConsensus keeps only unanimous findings.
	FusionConsensus FusionStrategy = "consensus"
	// FusionBest selects the single highest-confidence agent.
	FusionBest FusionStrategy = "best"
	// FusionMerge unions all distinct findings with no filtering.
	FusionMerge FusionStrategy = "merge"
	// FusionWeighted ranks findings by confidence-weighted occurrence.
	FusionWeighted FusionStrategy = "weighted"
)

// ValidFusionStrategy reports whether s names a known strategy.
func ValidFusionStrategy(s string) bool {
	switch FusionStrategy(s) {
	case FusionMajority, FusionConsensus, FusionBest, FusionMerge, FusionWeighted:
		return true
	}
	return false
}

// Finding is the minimal structured unit of agent output.
type Finding struct {
	// Text is the finding content, as reported by the agent.
	Text string
	// SourceAgentID identifies the run that produced this finding.
	SourceAgentID string
	// Confidence is the reporting agent's confidence, 0-10.
	Confidence float64
}

// AgreementStats describes how much the agents agreed during fusion.
type AgreementStats struct {
	// AgentCount is the number of agents requested.
	AgentCount int
	// Completed is the number of agents that actually finished; this is the
	// denominator for majority and consensus cutoffs.
	Completed int
	// Support maps normalized finding text to the number of agents that
	// reported it.
	Support map[string]int
}

// FusionResult is the immutable outcome of one fusion invocation.
type FusionResult struct {
	Strategy FusionStrategy
	Findings []Finding
	Stats    AgreementStats
	// SelectedAgentID is set by the best strategy.
	SelectedAgentID string
	// Failed is true when the strategy could not produce a qualifying
	// result (no completions, or best-confidence below the floor).
	Failed bool
	// Reason explains a failed fusion.
	Reason string
}
