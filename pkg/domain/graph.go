package domain

import "sort"

// RelationType constants classify learned concept relationships.
const (
	RelationInforms    = "informs"
	RelationGrounds    = "grounds"
	RelationEnables    = "enables"
	RelationBlocks     = "blocks"
	RelationCorrelates = "correlates"
	RelationIndicates  = "indicates"
)

// Relationship is a weighted concept link maintained by the learning loop.
// Routing never reads relationships.
type Relationship struct {
	ID           string   `json:"id" yaml:"id"`
	From         string   `json:"from" yaml:"from"`
	To           string   `json:"to" yaml:"to"`
	Type         string   `json:"type" yaml:"type"`
	Weight       float64  `json:"weight" yaml:"weight"`
	Observations []string `json:"observations,omitempty" yaml:"observations,omitempty"`
}

// Graph is one immutable version of the routing definition. A run executes
// against exactly one version; the evolution path publishes new versions.
type Graph struct {
	Name    string `json:"name" yaml:"name"`
	Version int    `json:"version" yaml:"version"`

	StartNode     string   `json:"start_node" yaml:"start_node"`
	TerminalNodes []string `json:"terminal_nodes" yaml:"terminal_nodes"`

	// FailureNode receives forced transitions when a retry budget is
	// exceeded, overriding normal priority resolution.
	FailureNode string `json:"failure_node" yaml:"failure_node"`
	// EscalateNode receives escalations that need a human to resume.
	EscalateNode string `json:"escalate_node,omitempty" yaml:"escalate_node,omitempty"`

	Nodes         []Node         `json:"nodes" yaml:"nodes"`
	Edges         []Edge         `json:"edges" yaml:"edges"`
	Relationships []Relationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// EdgeByID returns the edge with the given id, or nil.
func (g *Graph) EdgeByID(id string) *Edge {
	for i := range g.Edges {
		if g.Edges[i].ID == id {
			return &g.Edges[i]
		}
	}
	return nil
}

// Outgoing returns the edges leaving a node in routing order: ascending
// priority, declaration order as the tie-break.
func (g *Graph) Outgoing(nodeID string) []*Edge {
	var out []*Edge
	for i := range g.Edges {
		if g.Edges[i].From == nodeID {
			out = append(out, &g.Edges[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// IsTerminal reports whether the node id is a declared terminal.
func (g *Graph) IsTerminal(nodeID string) bool {
	for _, id := range g.TerminalNodes {
		if id == nodeID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to mutate independently of the original.
// The evolution path clones, mutates, validates and then swaps versions;
// a graph is never mutated while a run executes against it.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Name:          g.Name,
		Version:       g.Version,
		StartNode:     g.StartNode,
		FailureNode:   g.FailureNode,
		EscalateNode:  g.EscalateNode,
		TerminalNodes: append([]string(nil), g.TerminalNodes...),
		Nodes:         make([]Node, len(g.Nodes)),
		Edges:         make([]Edge, len(g.Edges)),
		Relationships: make([]Relationship, len(g.Relationships)),
	}
	copy(c.Nodes, g.Nodes)
	copy(c.Edges, g.Edges)
	copy(c.Relationships, g.Relationships)
	for i := range c.Nodes {
		n := &c.Nodes[i]
		n.StateWrites = append([]StateWrite(nil), n.StateWrites...)
		n.Memory.Dredge = append([]DredgeQuery(nil), n.Memory.Dredge...)
		n.OnReach = append([]NodeAction(nil), n.OnReach...)
		if n.OutputSchema != nil {
			s := *n.OutputSchema
			s.Required = append([]string(nil), s.Required...)
			n.OutputSchema = &s
		}
		if n.Merge != nil {
			mc := *n.Merge
			n.Merge = &mc
		}
		if n.Gate != nil {
			gc := GateConfig{Criteria: append([]Criterion(nil), n.Gate.Criteria...)}
			n.Gate = &gc
		}
		if n.Decision != nil {
			dc := DecisionConfig{Variable: n.Decision.Variable, Rules: append([]Rule(nil), n.Decision.Rules...)}
			n.Decision = &dc
		}
	}
	for i := range c.Edges {
		e := &c.Edges[i]
		e.OnTraverse = append([]EdgeAction(nil), e.OnTraverse...)
		if e.Depends != nil {
			d := *e.Depends
			d.RequiredNodes = append([]string(nil), d.RequiredNodes...)
			e.Depends = &d
		}
		if e.Decompose != nil {
			d := *e.Decompose
			e.Decompose = &d
		}
	}
	for i := range c.Relationships {
		r := &c.Relationships[i]
		r.Observations = append([]string(nil), r.Observations...)
	}
	return c
}
