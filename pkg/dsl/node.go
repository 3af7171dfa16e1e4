package dsl

import "github.com/riverbedai/riverbed/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node domain.Node
}

// Prompt sets the LM instruction template.
func (n *NodeBuilder) Prompt(template string) *NodeBuilder {
	n.node.Prompt = template
	return n
}

// Stage tags the node with a pipeline stage label.
func (n *NodeBuilder) Stage(stage string) *NodeBuilder {
	n.node.Stage = stage
	return n
}

// Purpose documents what the node is for.
func (n *NodeBuilder) Purpose(purpose string) *NodeBuilder {
	n.node.Purpose = purpose
	return n
}

// Schema constrains LM output and bounds re-asks.
func (n *NodeBuilder) Schema(required []string, maxRetries int) *NodeBuilder {
	n.node.OutputSchema = &domain.OutputSchema{Type: "object", Required: required}
	n.node.MaxOutputRetries = maxRetries
	return n
}

// Skill configures the skill invoked by a tool node.
func (n *NodeBuilder) Skill(name string, params map[string]any) *NodeBuilder {
	n.node.SkillName = name
	n.node.SkillParams = params
	return n
}

// SaveTo maps a node output key into the run data bag.
func (n *NodeBuilder) SaveTo(path, from string) *NodeBuilder {
	n.node.StateWrites = append(n.node.StateWrites, domain.StateWrite{Path: path, From: from})
	return n
}

// Dredge injects a memory lookup into the node's prompt context.
func (n *NodeBuilder) Dredge(q domain.DredgeQuery) *NodeBuilder {
	n.node.Memory.Dredge = append(n.node.Memory.Dredge, q)
	return n
}

// WriteFacts enables fact extraction from this node's output.
func (n *NodeBuilder) WriteFacts() *NodeBuilder {
	n.node.Memory.Write = true
	return n
}

// CommitFrom points a memory-write node at its pending fact source.
func (n *NodeBuilder) CommitFrom(sourcePath string) *NodeBuilder {
	n.node.Memory.Source = sourcePath
	return n
}

// Spawn marks a reason node as a parallel task spawner.
func (n *NodeBuilder) Spawn(maxConcurrent int, waitForAll bool) *NodeBuilder {
	n.node.Parallel = domain.ParallelDirective{
		Spawn:         true,
		MaxConcurrent: maxConcurrent,
		WaitForAll:    waitForAll,
	}
	return n
}

// MergeInto configures a merge node's target path and policy.
func (n *NodeBuilder) MergeInto(targetPath string, policy domain.MergePolicy) *NodeBuilder {
	n.node.Merge = &domain.MergeConfig{TargetPath: targetPath, Policy: policy}
	return n
}

// Criterion adds a named gate check.
func (n *NodeBuilder) Criterion(name, check string) *NodeBuilder {
	if n.node.Gate == nil {
		n.node.Gate = &domain.GateConfig{}
	}
	n.node.Gate.Criteria = append(n.node.Gate.Criteria, domain.Criterion{Name: name, Check: check})
	return n
}

// Switch sets the variable a decision node routes on.
func (n *NodeBuilder) Switch(variable string) *NodeBuilder {
	if n.node.Decision == nil {
		n.node.Decision = &domain.DecisionConfig{}
	}
	n.node.Decision.Variable = variable
	return n
}

// Rule adds an ordered decision rule.
func (n *NodeBuilder) Rule(condition, target string) *NodeBuilder {
	if n.node.Decision == nil {
		n.node.Decision = &domain.DecisionConfig{}
	}
	n.node.Decision.Rules = append(n.node.Decision.Rules, domain.Rule{Condition: condition, Target: target})
	return n
}

// Default adds the mandatory fallback decision rule.
func (n *NodeBuilder) Default(target string) *NodeBuilder {
	return n.Rule("default", target)
}

// Outcome sets the terminal outcome hint.
func (n *NodeBuilder) Outcome(outcome domain.Outcome) *NodeBuilder {
	n.node.OnReach = append(n.node.OnReach, domain.NodeAction{
		Action:  "set_outcome",
		Outcome: string(outcome),
	})
	return n
}

// Build returns the underlying domain.Node.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() domain.Node {
	return n.node
}

// EdgeBuilder provides a fluent API for configuring an edge.
type EdgeBuilder struct {
	edge domain.Edge
}

// Guard sets the boolean transition condition.
func (e *EdgeBuilder) Guard(expr string) *EdgeBuilder {
	e.edge.Guard = expr
	return e
}

// Priority orders guard evaluation; lowest wins.
func (e *EdgeBuilder) Priority(p int) *EdgeBuilder {
	e.edge.Priority = p
	return e
}

// MaxRetries bounds traversals of a retry edge.
func (e *EdgeBuilder) MaxRetries(n int) *EdgeBuilder {
	e.edge.MaxRetries = n
	return e
}

// Weight sets the learning weight, clamped at apply time.
func (e *EdgeBuilder) Weight(w float64) *EdgeBuilder {
	e.edge.Weight = w
	return e
}

// OnTraverse appends a post-traversal state action.
func (e *EdgeBuilder) OnTraverse(action string, params map[string]any) *EdgeBuilder {
	e.edge.OnTraverse = append(e.edge.OnTraverse, domain.EdgeAction{Action: action, Params: params})
	return e
}

// Build returns the underlying domain.Edge.
func (e *EdgeBuilder) Build() domain.Edge {
	return e.edge
}
