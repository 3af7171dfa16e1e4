package domain

// Audit actions recorded by the controller.
const (
	AuditExecuted      = "executed"
	AuditTransition    = "transition"
	AuditRetry         = "retry"
	AuditForcedFailure = "forced_failure"
	AuditSpawn         = "spawn"
	AuditMemoryWrite   = "memory_write"
	AuditTerminal      = "terminal"
	AuditError         = "error"
	AuditEvolution     = "evolution"
)

// AuditEvent is one entry in a run's append-only audit trail. Events are
// ordered strictly by Sequence, never by wall-clock arrival, so replaying a
// run with identical external responses produces an identical trail.
type AuditEvent struct {
	Sequence int            `json:"seq"`
	NodeID   string         `json:"node_id"`
	Action   string         `json:"action"`
	Summary  string         `json:"summary"`
	Signals  map[string]any `json:"signals,omitempty"`
}
