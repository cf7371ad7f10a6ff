package models

import "time"

// StepType tags a composition step with the engine that executes it.
type StepType string

const (
	StepFanOut      StepType = "fan-out"
	StepFusion      StepType = "fusion"
	StepChain       StepType = "chain"
	StepLongRunning StepType = "long-running"
)

// ValidStepType reports whether t names a known step type.
func ValidStepType(t string) bool {
	switch StepType(t) {
	case StepFanOut, StepFusion, StepChain, StepLongRunning:
		return true
	}
	return false
}

// CompositionStep is one entry of a declarative composition. Exactly the
// fields matching its Type are consulted; the rest are ignored.
type CompositionStep struct {
	Name string   `yaml:"name"`
	Type StepType `yaml:"type"`

	// Fan-out and long-running parameters.
	Agents      []string `yaml:"agents,omitempty"`
	Task        string   `yaml:"task,omitempty"`
	Parallel    int      `yaml:"parallel,omitempty"`
	MaxIter     int      `yaml:"max_iterations,omitempty"`
	TimeBudget  string   `yaml:"time_budget,omitempty"`

	// Fusion parameters.
	AgentCount    int     `yaml:"agent_count,omitempty"`
	Strategy      string  `yaml:"strategy,omitempty"`
	Consensus     float64 `yaml:"consensus,omitempty"`
	MinConfidence float64 `yaml:"min_confidence,omitempty"`

	// Chain parameters.
	Template string   `yaml:"template,omitempty"`
	Phases   []string `yaml:"phases,omitempty"`
}

// StepStatus is the recorded outcome of one composition step.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusRunning StepStatus = "running"
	StepStatusPassed  StepStatus = "passed"
	StepStatusFailed  StepStatus = "failed"
)

// StepRecord is the durable per-step entry accumulated by the composer.
type StepRecord struct {
	Name       string     `json:"name"`
	Type       StepType   `json:"type"`
	Status     StepStatus `json:"status"`
	ThreadKind string     `json:"thread_kind"`
	Error      string     `json:"error,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// CompositionState maps step names to their records, in execution order, and
// is durable for inspection after the run ends.
type CompositionState struct {
	Name      string       `json:"name"`
	Steps     []StepRecord `json:"steps"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Failed returns true if any step failed.
func (c *CompositionState) Failed() bool {
	for _, s := range c.Steps {
		if s.Status == StepStatusFailed {
			return true
		}
	}
	return false
}

// Record returns the record for the named step, or nil.
func (c *CompositionState) Record(name string) *StepRecord {
	for i := range c.Steps {
		if c.Steps[i].Name == name {
			return &c.Steps[i]
		}
	}
	return nil
}
