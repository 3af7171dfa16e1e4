package dsl

import (
	"fmt"

	"github.com/riverbedai/riverbed/internal/validator"
	"github.com/riverbedai/riverbed/pkg/domain"
)

// Builder manages graph construction. Node and edge declaration order is
// preserved; equal-priority edges tie-break on that order at runtime.
type Builder struct {
	name      string
	startNode string
	failure   string
	escalate  string
	nodes     []*NodeBuilder
	byID      map[string]*NodeBuilder
	edges     []*EdgeBuilder
}

// New creates a new graph builder.
func New(name string) *Builder {
	return &Builder{
		name: name,
		byID: make(map[string]*NodeBuilder),
	}
}

// Start sets the entry node. Defaults to the first declared node.
func (b *Builder) Start(id string) *Builder {
	b.startNode = id
	return b
}

// Failure sets the forced-failure terminal.
func (b *Builder) Failure(id string) *Builder {
	b.failure = id
	return b
}

// Escalate sets the human-handoff node.
func (b *Builder) Escalate(id string) *Builder {
	b.escalate = id
	return b
}

func (b *Builder) add(id, nodeType string) *NodeBuilder {
	if nb, ok := b.byID[id]; ok {
		nb.node.Type = nodeType
		return nb
	}
	nb := &NodeBuilder{node: domain.Node{ID: id, Type: nodeType}}
	b.nodes = append(b.nodes, nb)
	b.byID[id] = nb
	return nb
}

// Init declares the run initialization node.
func (b *Builder) Init(id string) *NodeBuilder { return b.add(id, domain.NodeInit) }

// Reason declares a reasoning node.
func (b *Builder) Reason(id string) *NodeBuilder { return b.add(id, domain.NodeReason) }

// Tool declares a skill execution node.
func (b *Builder) Tool(id string) *NodeBuilder { return b.add(id, domain.NodeTool) }

// Merge declares a branch merge node.
func (b *Builder) Merge(id string) *NodeBuilder { return b.add(id, domain.NodeMerge) }

// MemoryWrite declares a fact commit node.
func (b *Builder) MemoryWrite(id string) *NodeBuilder { return b.add(id, domain.NodeMemoryWrite) }

// Gate declares a quality gate node.
func (b *Builder) Gate(id string) *NodeBuilder { return b.add(id, domain.NodeGate) }

// Decision declares a pure-logic routing node.
func (b *Builder) Decision(id string) *NodeBuilder { return b.add(id, domain.NodeDecision) }

// Terminal declares a terminal node.
func (b *Builder) Terminal(id string) *NodeBuilder { return b.add(id, domain.NodeTerminal) }

// Forward adds a standard transition.
func (b *Builder) Forward(id, from, to string) *EdgeBuilder {
	return b.edge(id, from, to, domain.EdgeForward)
}

// Retry adds a bounded correction loop.
func (b *Builder) Retry(id, from, to string) *EdgeBuilder {
	eb := b.edge(id, from, to, domain.EdgeRetry)
	eb.edge.MaxRetries = 1
	return eb
}

// Depends adds an edge blocked until required nodes complete.
func (b *Builder) Depends(id, from, to string, nodes ...string) *EdgeBuilder {
	eb := b.edge(id, from, to, domain.EdgeDepends)
	eb.edge.Depends = &domain.DependsConfig{RequiredNodes: nodes, RequireAll: true}
	return eb
}

func (b *Builder) edge(id, from, to, kind string) *EdgeBuilder {
	eb := &EdgeBuilder{edge: domain.Edge{ID: id, From: from, To: to, Kind: kind, Priority: 1}}
	b.edges = append(b.edges, eb)
	return eb
}

// Graph compiles and validates the builder into a versioned graph.
func (b *Builder) Graph() (*domain.Graph, error) {
	if len(b.nodes) == 0 {
		return nil, fmt.Errorf("graph %q has no nodes", b.name)
	}

	start := b.startNode
	if start == "" {
		start = b.nodes[0].node.ID
	}

	g := &domain.Graph{
		Name:         b.name,
		Version:      1,
		StartNode:    start,
		FailureNode:  b.failure,
		EscalateNode: b.escalate,
	}
	for _, nb := range b.nodes {
		g.Nodes = append(g.Nodes, nb.node)
		if nb.node.IsTerminal() {
			g.TerminalNodes = append(g.TerminalNodes, nb.node.ID)
		}
	}
	for _, eb := range b.edges {
		g.Edges = append(g.Edges, eb.edge)
	}

	if err := validator.Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// MustGraph is Graph for tests and static wiring; it panics on error.
func (b *Builder) MustGraph() *domain.Graph {
	g, err := b.Graph()
	if err != nil {
		panic(err)
	}
	return g
}
