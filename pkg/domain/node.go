package domain

// NodeType constants define per-node execution behavior.
const (
	// NodeInit initializes the run: first LM call, seeds the data bag.
	NodeInit = "init"
	// NodeReason is a main reasoning step (LM call, may spawn parallel tasks).
	NodeReason = "reason"
	// NodeTool executes an external skill in isolation.
	NodeTool = "tool"
	// NodeMerge combines parallel branch results back into shared state.
	NodeMerge = "merge"
	// NodeMemoryWrite commits pending facts to the sediment store.
	NodeMemoryWrite = "memory-write"
	// NodeGate checks named criteria against state; never calls the LM.
	NodeGate = "gate"
	// NodeDecision routes deterministically via an ordered rule list; never calls the LM.
	NodeDecision = "decision"
	// NodeTerminal ends the run.
	NodeTerminal = "terminal"
)

// Node represents a typed unit of work in the execution graph.
// Nodes are immutable during a run; they are mutated only between runs
// via the evolution path.
type Node struct {
	ID      string `json:"id" yaml:"id"`
	Type    string `json:"type" yaml:"type"`
	Stage   string `json:"stage,omitempty" yaml:"stage,omitempty"`
	Purpose string `json:"purpose,omitempty" yaml:"purpose,omitempty"`

	// Prompt is the LM instruction template for init/reason nodes.
	// Supports {{dot.path}} interpolation against the state snapshot.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// OutputSchema constrains LM output for this node.
	OutputSchema *OutputSchema `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`

	// MaxOutputRetries bounds re-asks when LM output fails its schema.
	MaxOutputRetries int `json:"max_output_retries,omitempty" yaml:"max_output_retries,omitempty"`

	// Skill configuration (tool nodes).
	SkillName   string         `json:"skill,omitempty" yaml:"skill,omitempty"`
	SkillParams map[string]any `json:"skill_params,omitempty" yaml:"skill_params,omitempty"`

	// StateWrites maps LM/skill output paths into the run data bag.
	StateWrites []StateWrite `json:"state_writes,omitempty" yaml:"state_writes,omitempty"`

	// Memory directives: what to dredge before executing and whether to write.
	Memory MemoryDirective `json:"memory,omitempty" yaml:"memory,omitempty"`

	// Parallel directives (reason nodes may spawn, tool nodes run isolated).
	Parallel ParallelDirective `json:"parallel,omitempty" yaml:"parallel,omitempty"`

	// Merge configuration (merge nodes only).
	Merge *MergeConfig `json:"merge,omitempty" yaml:"merge,omitempty"`

	// Gate configuration (gate nodes only).
	Gate *GateConfig `json:"gate,omitempty" yaml:"gate,omitempty"`

	// Decision configuration (decision nodes only).
	Decision *DecisionConfig `json:"decision,omitempty" yaml:"decision,omitempty"`

	// OnReach actions for terminal nodes (outcome hints, learning triggers).
	OnReach []NodeAction `json:"on_reach,omitempty" yaml:"on_reach,omitempty"`
}

// OutputSchema is a minimal JSON-schema-like contract for LM output.
type OutputSchema struct {
	Type       string         `json:"type" yaml:"type"`
	Required   []string       `json:"required,omitempty" yaml:"required,omitempty"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// StateWrite maps a value from node output into the run data bag.
type StateWrite struct {
	Path string `json:"path" yaml:"path"`
	From string `json:"from" yaml:"from"`
}

// MemoryDirective configures memory access for a node.
type MemoryDirective struct {
	// Dredge lists queries run against the sediment store before execution.
	Dredge []DredgeQuery `json:"dredge,omitempty" yaml:"dredge,omitempty"`
	// Write enables fact commits from this node's output.
	Write bool `json:"write,omitempty" yaml:"write,omitempty"`
	// Source is the state path holding pending facts (memory-write nodes).
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	// ConflictPolicy: "flag" (default) or "overwrite" (supersede).
	ConflictPolicy string `json:"conflict_policy,omitempty" yaml:"conflict_policy,omitempty"`
}

// DredgeQuery describes one memory lookup injected into a node's prompt.
type DredgeQuery struct {
	Text       string   `json:"text,omitempty" yaml:"text,omitempty"`
	Subjects   []string `json:"subjects,omitempty" yaml:"subjects,omitempty"`
	Predicates []string `json:"predicates,omitempty" yaml:"predicates,omitempty"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Limit      int      `json:"limit,omitempty" yaml:"limit,omitempty"`
	AsKey      string   `json:"as_key,omitempty" yaml:"as_key,omitempty"`
}

// ParallelDirective configures task spawning for a node.
type ParallelDirective struct {
	Spawn         bool `json:"spawn,omitempty" yaml:"spawn,omitempty"`
	MaxConcurrent int  `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
	WaitForAll    bool `json:"wait_for_all,omitempty" yaml:"wait_for_all,omitempty"`
}

// MergeConfig controls how a merge node folds finished branch results back
// into the shared data bag.
type MergeConfig struct {
	TargetPath string      `json:"target_path" yaml:"target_path"`
	Policy     MergePolicy `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// GateConfig defines a quality gate: named criteria evaluated against state.
// On failure the node routes back via a retry edge up to that edge's bound,
// then escalates.
type GateConfig struct {
	Criteria []Criterion `json:"criteria" yaml:"criteria"`
}

// Criterion is one named gate check. Check is a guard expression.
type Criterion struct {
	Name  string `json:"name" yaml:"name"`
	Check string `json:"check" yaml:"check"`
}

// DecisionConfig defines a pure-logic router. The variable is evaluated
// against rules in order; the first matching rule wins. A "default" rule
// is mandatory and enforced at graph-load time.
type DecisionConfig struct {
	Variable string `json:"variable" yaml:"variable"`
	Rules    []Rule `json:"rules" yaml:"rules"`
}

// Rule is one ordered decision rule. Condition is either the literal
// "default" or a guard expression over the bound variable `value`
// (e.g. "value >= 0.8").
type Rule struct {
	Condition string `json:"condition" yaml:"condition"`
	Target    string `json:"target" yaml:"target"`
}

// NodeAction is a declarative action attached to a node (e.g. terminal
// outcome hints).
type NodeAction struct {
	Action  string `json:"action" yaml:"action"`
	Outcome string `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// IsTerminal reports whether the node ends a run.
func (n *Node) IsTerminal() bool {
	return n.Type == NodeTerminal
}
