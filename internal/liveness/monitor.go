// Package liveness detects stalled, crashed, and completed agents from their
// output artifacts. It depends only on the agent-output contract: an
// addressable output location plus the markers defined in internal/agent.
package liveness

import (
	"os"
	"time"

	"github.com/mpetrun5/drover/internal/agent"
	"github.com/mpetrun5/drover/pkg/models"
)

// Monitor classifies agent runs. Rules are applied in order: missing output
// artifact, fatal marker, dual-condition completion, stall threshold,
// healthy.
type Monitor struct {
	// StallAfter is how long without new output before a run is stalled.
	StallAfter time.Duration
	// MinIndicators is the minimum completion-indicator phrase count that
	// must accompany the explicit completion marker. Zero means the marker
	// alone suffices.
	MinIndicators int
	// CompletionMarker is the explicit completion marker.
	CompletionMarker string

	// Now is swappable for tests.
	Now func() time.Time
}

// NewMonitor creates a Monitor with the given thresholds.
func NewMonitor(stallAfter time.Duration, minIndicators int, completionMarker string) *Monitor {
	return &Monitor{
		StallAfter:       stallAfter,
		MinIndicators:    minIndicators,
		CompletionMarker: completionMarker,
		Now:              time.Now,
	}
}

// Classify reads the run's output artifact and returns its liveness status.
// It refreshes run.LastOutputAt from the artifact's modification time.
func (m *Monitor) Classify(run *models.AgentRun) models.RunStatus {
	info, err := os.Stat(run.OutputPath)
	if err != nil {
		return models.RunStatusCrashed
	}
	if mt := info.ModTime(); mt.After(run.LastOutputAt) {
		run.LastOutputAt = mt
	}

	data, err := os.ReadFile(run.OutputPath)
	if err != nil {
		return models.RunStatusCrashed
	}

	rep := agent.ParseReport(string(data), m.CompletionMarker)
	return m.classify(rep, run.LastOutputAt)
}

// classify applies the ordered rule set to a parsed report.
func (m *Monitor) classify(rep agent.Report, lastOutput time.Time) models.RunStatus {
	if rep.Crashed {
		return models.RunStatusFailed
	}

	// Dual-condition completion: the explicit marker must be present, and
	// unless the agent used the structured contract, enough indicator
	// phrases must back it up. Indicator phrases alone never complete a
	// run.
	if rep.Complete && (rep.Structured || rep.Indicators >= m.MinIndicators) {
		return models.RunStatusComplete
	}

	if m.StallAfter > 0 && m.Now().Sub(lastOutput) > m.StallAfter {
		return models.RunStatusStalled
	}

	return models.RunStatusRunning
}
