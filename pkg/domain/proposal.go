package domain

import "time"

// ChangeType constants classify graph mutations.
const (
	ChangeEdgePriority       = "update_edge_priority"
	ChangeEdgeWeight         = "update_edge_weight"
	ChangeMaxRetries         = "update_max_retries"
	ChangeGuard              = "update_guard"
	ChangePrompt             = "update_prompt"
	ChangeAddEdge            = "add_edge"
	ChangeRemoveEdge         = "remove_edge"
	ChangeAddNode            = "add_node"
	ChangeAddRelationship    = "add_relationship"
	ChangeRelationshipWeight = "update_relationship_weight"
)

// Proposal statuses.
const (
	ProposalPending  = "pending"
	ProposalApproved = "approved"
	ProposalRejected = "rejected"
	ProposalApplied  = "applied"
)

// Change is one proposed graph mutation. Low-risk tuning (edge priority,
// edge/relationship weights, retry bounds) is auto-applied; structural or
// semantic edits require approval.
type Change struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Target    string `json:"target"`
	OldValue  any    `json:"old_value,omitempty"`
	NewValue  any    `json:"new_value,omitempty"`
	Rationale string `json:"rationale"`
	AutoApply bool   `json:"auto_apply"`

	Applied   bool       `json:"applied,omitempty"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// Advisory reports whether the change carries no concrete new value and
// exists only to direct a human review. Advisory changes are never fed to
// the applier; approving their proposal acknowledges them without mutating
// the graph.
func (c Change) Advisory() bool { return c.NewValue == nil }

// Proposal groups related changes derived from a set of analyzed runs.
type Proposal struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	BasedOn    []string  `json:"based_on_runs"`
	Changes    []Change  `json:"changes"`
	Summary    string    `json:"summary"`
	Confidence float64   `json:"confidence"`
	Status     string    `json:"status"`
}
