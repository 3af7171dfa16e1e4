// Package validator performs load-time structural validation of a graph.
// Every problem is collected; a graph with any problem never starts a run.
package validator

import (
	"fmt"

	"github.com/riverbedai/riverbed/pkg/domain"
	"github.com/riverbedai/riverbed/pkg/guard"
)

var nodeTypes = map[string]bool{
	domain.NodeInit:        true,
	domain.NodeReason:      true,
	domain.NodeTool:        true,
	domain.NodeMerge:       true,
	domain.NodeMemoryWrite: true,
	domain.NodeGate:        true,
	domain.NodeDecision:    true,
	domain.NodeTerminal:    true,
}

var edgeKinds = map[string]bool{
	domain.EdgeForward:    true,
	domain.EdgeRetry:      true,
	domain.EdgeMemoryPull: true,
	domain.EdgeCrossRun:   true,
	domain.EdgeDecompose:  true,
	domain.EdgeDepends:    true,
}

// Validate checks a graph definition. It returns a *domain.ValidationError
// listing every problem found, or nil when the graph is well-formed.
func Validate(g *domain.Graph) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if g.Name == "" {
		add("graph name is required")
	}
	if g.Version < 1 {
		add("graph version must be >= 1, got %d", g.Version)
	}

	nodes := make(map[string]*domain.Node, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			add("node %d has no id", i)
			continue
		}
		if _, dup := nodes[n.ID]; dup {
			add("duplicate node id %q", n.ID)
			continue
		}
		nodes[n.ID] = n
	}

	if g.StartNode == "" {
		add("start_node is required")
	} else if _, ok := nodes[g.StartNode]; !ok {
		add("start_node %q does not exist", g.StartNode)
	}

	if len(g.TerminalNodes) == 0 {
		add("at least one terminal node is required")
	}
	for _, id := range g.TerminalNodes {
		n, ok := nodes[id]
		if !ok {
			add("terminal node %q does not exist", id)
			continue
		}
		if n.Type != domain.NodeTerminal {
			add("terminal node %q has type %q, want %q", id, n.Type, domain.NodeTerminal)
		}
	}

	if g.FailureNode == "" {
		add("failure_node is required")
	} else if n, ok := nodes[g.FailureNode]; !ok {
		add("failure_node %q does not exist", g.FailureNode)
	} else if n.Type != domain.NodeTerminal {
		add("failure_node %q must be a terminal node", g.FailureNode)
	}

	if g.EscalateNode != "" {
		if _, ok := nodes[g.EscalateNode]; !ok {
			add("escalate_node %q does not exist", g.EscalateNode)
		}
	}

	for i := range g.Nodes {
		validateNode(&g.Nodes[i], add)
	}

	edgeIDs := make(map[string]bool, len(g.Edges))
	for i := range g.Edges {
		e := &g.Edges[i]
		if e.ID == "" {
			add("edge %d (%s -> %s) has no id", i, e.From, e.To)
		} else if edgeIDs[e.ID] {
			add("duplicate edge id %q", e.ID)
		} else {
			edgeIDs[e.ID] = true
		}
		validateEdge(e, nodes, add)
	}

	// Every non-terminal node must have a way out.
	for id, n := range nodes {
		if n.IsTerminal() {
			continue
		}
		if len(g.Outgoing(id)) == 0 {
			add("non-terminal node %q has no outgoing edges", id)
		}
	}

	for _, unreached := range unreachable(g, nodes) {
		add("node %q is unreachable from start", unreached)
	}

	for i := range g.Relationships {
		r := &g.Relationships[i]
		if r.Weight < 0 || r.Weight > 2 {
			add("relationship %q weight %.2f outside [0, 2]", r.ID, r.Weight)
		}
	}

	if len(problems) > 0 {
		return &domain.ValidationError{Problems: problems}
	}
	return nil
}

func validateNode(n *domain.Node, add func(string, ...any)) {
	if !nodeTypes[n.Type] {
		add("node %q has unknown type %q", n.ID, n.Type)
		return
	}

	switch n.Type {
	case domain.NodeInit, domain.NodeReason:
		if n.Prompt == "" {
			add("%s node %q requires a prompt", n.Type, n.ID)
		}
	case domain.NodeTool:
		if n.SkillName == "" {
			add("tool node %q requires a skill name", n.ID)
		}
	case domain.NodeGate:
		if n.Gate == nil || len(n.Gate.Criteria) == 0 {
			add("gate node %q requires at least one criterion", n.ID)
		} else {
			for _, c := range n.Gate.Criteria {
				if c.Name == "" {
					add("gate node %q has an unnamed criterion", n.ID)
				}
				if _, err := guard.Compile(c.Check); err != nil {
					add("gate node %q criterion %q: %v", n.ID, c.Name, err)
				}
			}
		}
	case domain.NodeDecision:
		validateDecision(n, add)
	case domain.NodeMemoryWrite:
		if n.Memory.Source == "" {
			add("memory-write node %q requires a memory source path", n.ID)
		}
	}

	if n.Parallel.Spawn && n.Type != domain.NodeReason {
		add("node %q: only reason nodes may spawn parallel tasks", n.ID)
	}
}

func validateDecision(n *domain.Node, add func(string, ...any)) {
	d := n.Decision
	if d == nil || len(d.Rules) == 0 {
		add("decision node %q requires rules", n.ID)
		return
	}
	if d.Variable == "" {
		add("decision node %q requires a variable path", n.ID)
	}
	hasDefault := false
	for i, r := range d.Rules {
		if r.Target == "" {
			add("decision node %q rule %d has no target", n.ID, i)
		}
		if r.Condition == "default" {
			hasDefault = true
			if i != len(d.Rules)-1 {
				add("decision node %q default rule must be last", n.ID)
			}
			continue
		}
		if _, err := guard.Compile(r.Condition); err != nil {
			add("decision node %q rule %d: %v", n.ID, i, err)
		}
	}
	if !hasDefault {
		add("decision node %q has no default rule", n.ID)
	}
}

func validateEdge(e *domain.Edge, nodes map[string]*domain.Node, add func(string, ...any)) {
	label := e.ID
	if label == "" {
		label = fmt.Sprintf("%s->%s", e.From, e.To)
	}

	if !edgeKinds[e.Kind] {
		add("edge %q has unknown kind %q", label, e.Kind)
	}
	from, ok := nodes[e.From]
	if !ok {
		add("edge %q references unknown source node %q", label, e.From)
	}
	if _, ok := nodes[e.To]; !ok {
		add("edge %q references unknown target node %q", label, e.To)
	}
	if from != nil && from.IsTerminal() && (e.Kind == domain.EdgeForward || e.Kind == domain.EdgeRetry) {
		add("edge %q leaves terminal node %q", label, e.From)
	}

	if _, err := guard.Compile(e.Guard); err != nil {
		add("edge %q: %v", label, err)
	}

	switch e.Kind {
	case domain.EdgeRetry:
		if e.MaxRetries < 1 {
			add("retry edge %q requires max_retries >= 1", label)
		}
	case domain.EdgeDepends:
		if e.Depends == nil || (len(e.Depends.RequiredNodes) == 0 && len(e.Depends.RequiredState) == 0) {
			add("depends edge %q requires a depends configuration", label)
		} else {
			for _, id := range e.Depends.RequiredNodes {
				if _, ok := nodes[id]; !ok {
					add("depends edge %q requires unknown node %q", label, id)
				}
			}
		}
	case domain.EdgeDecompose:
		if e.Decompose == nil || e.Decompose.MaxChildren < 1 {
			add("decompose edge %q requires max_children >= 1", label)
		}
	}
}

// unreachable walks forward and retry edges from the start node and
// returns node ids the walk never reaches, in declaration order.
func unreachable(g *domain.Graph, nodes map[string]*domain.Node) []string {
	if _, ok := nodes[g.StartNode]; !ok {
		return nil
	}
	visited := map[string]bool{g.StartNode: true}
	queue := []string{g.StartNode}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.Outgoing(cur) {
			if !visited[e.To] {
				visited[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	// Failure and escalate targets are reached by forced transitions.
	visited[g.FailureNode] = true
	if g.EscalateNode != "" {
		visited[g.EscalateNode] = true
	}

	var out []string
	for i := range g.Nodes {
		if id := g.Nodes[i].ID; id != "" && !visited[id] {
			out = append(out, id)
		}
	}
	return out
}
