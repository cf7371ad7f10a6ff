// Package models defines the shared data model for drover orchestration.
package models

import (
	"time"
)

// RunStatus represents the lifecycle state of a single agent run.
type RunStatus string

const (
	// RunStatusPending indicates the run has been created but not started.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning indicates the agent is actively producing output.
	RunStatusRunning RunStatus = "running"
	// RunStatusStalled indicates the agent produced no output past the stall threshold.
	RunStatusStalled RunStatus = "stalled"
	// RunStatusCrashed indicates the agent left no output artifact at all.
	RunStatusCrashed RunStatus = "crashed"
	// RunStatusComplete indicates the agent emitted its completion marker.
	RunStatusComplete RunStatus = "complete"
	// RunStatusFailed indicates a fatal marker, exhausted restarts, or an
	// expired time budget.
	RunStatusFailed RunStatus = "failed"
)

// Terminal returns true if the status will never change again.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// RestartPolicy controls how stalled or crashed agents are restarted.
type RestartPolicy string

const (
	RestartNever  RestartPolicy = "never"
	RestartOnce   RestartPolicy = "once"
	RestartAlways RestartPolicy = "always"
)

// ParseRestartPolicy converts a string to a RestartPolicy, defaulting to
// RestartOnce for unknown values.
func ParseRestartPolicy(s string) RestartPolicy {
	switch RestartPolicy(s) {
	case RestartNever, RestartOnce, RestartAlways:
		return RestartPolicy(s)
	default:
		return RestartOnce
	}
}

// AgentSpec describes one agent the supervisor should run. The command is
// opaque to the core: it must write textual progress to OutputPath and emit
// an explicit completion marker when done.
type AgentSpec struct {
	// Name is a short human-readable label for the agent.
	Name string
	// Task is the unit of work handed to the agent.
	Task string
	// Command is the external command line to invoke, shell-quoted.
	Command string
	// OutputPath is where the agent writes its progress. Empty means the
	// supervisor assigns a path under the run directory.
	OutputPath string
}

// AgentRun is one execution of one agent instance. Created by the supervisor
// at launch, mutated by liveness classification and completion detection,
// archived when the owning supervisor invocation ends.
type AgentRun struct {
	ID             string
	Spec           AgentSpec
	WorkspaceRef   string
	OutputPath     string
	StartedAt      time.Time
	LastOutputAt   time.Time
	Status         RunStatus
	IterationCount int
	Restarts       int
	// FailureReason records why a run ended Failed, for the CLI summary.
	FailureReason string
}

// ShortID returns the first 8 characters of the run ID for display.
func (r *AgentRun) ShortID() string {
	if len(r.ID) > 8 {
		return r.ID[:8]
	}
	return r.ID
}
