package domain

import "time"

// Outcome is the final disposition of a run.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeEscalated Outcome = "escalated"
	OutcomeMaxSteps  Outcome = "max_steps"
	OutcomeError     Outcome = "error"
)

// RunResult summarizes a finished run. The full state snapshot and audit
// trail are persisted separately as write-once artifacts.
type RunResult struct {
	RunID      string         `json:"run_id"`
	Outcome    Outcome        `json:"outcome"`
	Reason     string         `json:"reason"`
	FinalNode  string         `json:"final_node"`
	TotalSteps int            `json:"total_steps"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	FinalState map[string]any `json:"final_state,omitempty"`

	// ResumeSnapshot carries the minimal state a human needs to resume an
	// escalated run manually. Empty for other outcomes.
	ResumeSnapshot map[string]any `json:"resume_snapshot,omitempty"`
}
