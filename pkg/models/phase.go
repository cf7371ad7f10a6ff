package models

import "time"

// PhaseStatus represents the state machine position of a chain phase.
type PhaseStatus string

const (
	PhaseStatusPending    PhaseStatus = "pending"
	PhaseStatusRunning    PhaseStatus = "running"
	PhaseStatusCheckpoint PhaseStatus = "checkpoint"
	PhaseStatusComplete   PhaseStatus = "complete"
	PhaseStatusFailed     PhaseStatus = "failed"
	PhaseStatusSkipped    PhaseStatus = "skipped"
)

// Phase is one named step of a checkpointed chain.
type Phase struct {
	Name       string      `json:"name"`
	Task       string      `json:"task"`
	Status     PhaseStatus `json:"status"`
	RetryCount int         `json:"retry_count"`
	// ValidationFailed records an advisory validation miss; it does not by
	// itself block progression.
	ValidationFailed bool `json:"validation_failed,omitempty"`
}

// ChainState is the durable record of a phase chain, persisted after every
// transition so an interrupted chain resumes at CurrentIndex.
type ChainState struct {
	Name         string    `json:"name"`
	CurrentIndex int       `json:"current_phase"`
	Status       string    `json:"status"`
	Phases       []Phase   `json:"phases"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CheckpointDecision is the external answer supplied at a checkpoint gate.
type CheckpointDecision string

const (
	DecisionContinue CheckpointDecision = "continue"
	DecisionRetry    CheckpointDecision = "retry"
	DecisionSkip     CheckpointDecision = "skip"
	DecisionAbort    CheckpointDecision = "abort"
)
