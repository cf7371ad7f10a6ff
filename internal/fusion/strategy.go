package fusion

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mpetrun5/drover/pkg/models"
)

// NormalizeFinding canonicalizes finding text the same way fusion groups it,
// so callers can look up support counts in AgreementStats.Support.
func NormalizeFinding(text string) string {
	return normalize(text)
}

// normalize canonicalizes finding text for grouping: lowercased, bullet
// prefixes stripped, whitespace collapsed.
func normalize(text string) string {
	s := strings.TrimSpace(strings.ToLower(text))
	s = strings.TrimPrefix(s, "- ")
	s = strings.TrimPrefix(s, "* ")
	return strings.Join(strings.Fields(s), " ")
}

// group holds one distinct finding across agents.
type group struct {
	// text is the first-seen original wording.
	text string
	// first is the agent that first reported it.
	first string
	// count is the number of distinct agents reporting it.
	count int
	// weight is the confidence-weighted occurrence sum.
	weight float64
	// order is the first-seen position, for stable output.
	order int
}

// reconcile applies the fusion strategy to the completed agents' views.
func reconcile(strategy models.FusionStrategy, agentCount int, views []agentView, params Params) *models.FusionResult {
	result := &models.FusionResult{
		Strategy: strategy,
		Stats: models.AgreementStats{
			AgentCount: agentCount,
			Completed:  len(views),
			Support:    make(map[string]int),
		},
	}

	if len(views) == 0 {
		result.Failed = true
		result.Reason = "no agents completed"
		return result
	}

	groups, ordered := groupFindings(views)
	for key, g := range groups {
		result.Stats.Support[key] = g.count
	}

	switch strategy {
	case models.FusionMajority:
		// A finding survives if reported by at least
		// ceil(completed * threshold) agents. Hard numeric cutoff, no
		// tie-break needed.
		minCount := int(math.Ceil(float64(len(views)) * params.ConsensusThreshold))
		for _, g := range ordered {
			if g.count >= minCount {
				result.Findings = append(result.Findings, models.Finding{
					Text:          g.text,
					SourceAgentID: g.first,
					Confidence:    avgConfidence(views, g),
				})
			}
		}

	case models.FusionConsensus:
		for _, g := range ordered {
			if g.count == len(views) {
				result.Findings = append(result.Findings, models.Finding{
					Text:          g.text,
					SourceAgentID: g.first,
					Confidence:    avgConfidence(views, g),
				})
			}
		}

	case models.FusionBest:
		best := bestView(views)
		if best.confidence < params.MinConfidence {
			result.Failed = true
			result.Reason = fmt.Sprintf("best confidence %.1f below minimum %.1f",
				best.confidence, params.MinConfidence)
			return result
		}
		result.SelectedAgentID = best.agentID
		for _, f := range best.findings {
			result.Findings = append(result.Findings, models.Finding{
				Text:          f,
				SourceAgentID: best.agentID,
				Confidence:    best.confidence,
			})
		}

	case models.FusionMerge:
		for _, g := range ordered {
			result.Findings = append(result.Findings, models.Finding{
				Text:          g.text,
				SourceAgentID: g.first,
				Confidence:    avgConfidence(views, g),
			})
		}

	case models.FusionWeighted:
		ranked := make([]*group, len(ordered))
		copy(ranked, ordered)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].weight > ranked[j].weight
		})
		for _, g := range ranked {
			result.Findings = append(result.Findings, models.Finding{
				Text:          g.text,
				SourceAgentID: g.first,
				Confidence:    avgConfidence(views, g),
			})
		}
	}

	return result
}

// groupFindings buckets findings by normalized text, counting each agent at
// most once per finding.
func groupFindings(views []agentView) (map[string]*group, []*group) {
	groups := make(map[string]*group)
	var ordered []*group

	for _, v := range views {
		seen := make(map[string]bool)
		for _, text := range v.findings {
			key := normalize(text)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true

			g, ok := groups[key]
			if !ok {
				g = &group{text: text, first: v.agentID, order: len(ordered)}
				groups[key] = g
				ordered = append(ordered, g)
			}
			g.count++
			g.weight += v.confidence
		}
	}
	return groups, ordered
}

// avgConfidence averages the confidence of agents that reported the group.
func avgConfidence(views []agentView, g *group) float64 {
	if g.count == 0 {
		return 0
	}
	return g.weight / float64(g.count)
}

// bestView returns the highest-confidence view, ties broken by first-seen
// agent order.
func bestView(views []agentView) agentView {
	best := views[0]
	for _, v := range views[1:] {
		if v.confidence > best.confidence {
			best = v
		}
	}
	return best
}
