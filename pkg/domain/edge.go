package domain

// EdgeKind constants define how an edge participates in routing.
const (
	// EdgeForward is the standard transition taken when its guard holds.
	EdgeForward = "forward"
	// EdgeRetry is a bounded correction loop; traversals count against
	// MaxRetries and the global retry budget.
	EdgeRetry = "retry"
	// EdgeMemoryPull marks a memory retrieval dependency (dredge source).
	EdgeMemoryPull = "memory-pull"
	// EdgeCrossRun marks a read of another run's published state.
	EdgeCrossRun = "cross-run-read"
	// EdgeDecompose splits one goal into a bounded number of child tasks.
	EdgeDecompose = "decompose"
	// EdgeDepends blocks the target until required nodes have completed.
	EdgeDepends = "depends"
)

// Edge is the only routing mechanism in the graph: the worker cannot move
// between nodes unless an edge exists and its guard evaluates true.
type Edge struct {
	ID   string `json:"id" yaml:"id"`
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
	Kind string `json:"kind" yaml:"kind"`

	// Guard is a boolean expression over the state snapshot. Empty means
	// always true. Syntax is validated at graph-load time.
	Guard string `json:"guard,omitempty" yaml:"guard,omitempty"`

	// Priority orders guard evaluation: lowest wins. Equal priorities are
	// broken by declaration order in the graph document.
	Priority int `json:"priority" yaml:"priority"`

	// MaxRetries bounds traversals of retry edges. Required for EdgeRetry.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`

	// Depends configuration (EdgeDepends only).
	Depends *DependsConfig `json:"depends,omitempty" yaml:"depends,omitempty"`

	// Decompose configuration (EdgeDecompose only).
	Decompose *DecomposeConfig `json:"decompose,omitempty" yaml:"decompose,omitempty"`

	// OnTraverse actions applied to state after the edge is taken.
	OnTraverse []EdgeAction `json:"on_traverse,omitempty" yaml:"on_traverse,omitempty"`

	// Learning metadata. Routing never reads these; the learning loop does.
	SuccessCount int     `json:"success_count,omitempty" yaml:"success_count,omitempty"`
	FailureCount int     `json:"failure_count,omitempty" yaml:"failure_count,omitempty"`
	Weight       float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// DependsConfig blocks an edge until required nodes completed and required
// state values are present.
type DependsConfig struct {
	RequiredNodes []string       `json:"required_nodes,omitempty" yaml:"required_nodes,omitempty"`
	RequireAll    bool           `json:"require_all" yaml:"require_all"`
	RequiredState map[string]any `json:"required_state,omitempty" yaml:"required_state,omitempty"`
}

// DecomposeConfig bounds goal-to-task fan-out on a decompose edge.
type DecomposeConfig struct {
	ParentID    string `json:"parent_id" yaml:"parent_id"`
	MaxChildren int    `json:"max_children" yaml:"max_children"`
}

// EdgeAction is a declarative post-traversal action.
type EdgeAction struct {
	Action string         `json:"action" yaml:"action"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}
