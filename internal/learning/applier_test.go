package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverbedai/riverbed/pkg/domain"
)

func testGraph() *domain.Graph {
	return &domain.Graph{
		Name:          "triage",
		Version:       1,
		StartNode:     "start",
		TerminalNodes: []string{"done", "failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeInit, Prompt: "Classify: {{request}}"},
			{ID: "work", Type: domain.NodeReason, Prompt: "Work it"},
			{ID: "done", Type: domain.NodeTerminal},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "e1", From: "start", To: "work", Kind: domain.EdgeForward, Priority: 1},
			{ID: "fast", From: "work", To: "done", Kind: domain.EdgeForward, Priority: 1},
			{ID: "slow", From: "work", To: "done", Kind: domain.EdgeForward, Priority: 2},
			{ID: "again", From: "work", To: "start", Kind: domain.EdgeRetry, Priority: 3, MaxRetries: 2},
		},
	}
}

func TestApplyBumpsVersionAndKeepsOriginal(t *testing.T) {
	g := testGraph()
	next, err := Apply(g, []domain.Change{
		{ID: "c1", Type: domain.ChangeEdgePriority, Target: "slow", NewValue: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, next.Version)
	assert.Equal(t, 1, next.EdgeByID("slow").Priority)
	// The active version is untouched.
	assert.Equal(t, 1, g.Version)
	assert.Equal(t, 2, g.EdgeByID("slow").Priority)
}

func TestApplyMarksChangesApplied(t *testing.T) {
	g := testGraph()
	changes := []domain.Change{
		{ID: "c1", Type: domain.ChangeMaxRetries, Target: "again", NewValue: 3},
	}
	_, err := Apply(g, changes)
	require.NoError(t, err)
	assert.True(t, changes[0].Applied)
	assert.NotNil(t, changes[0].AppliedAt)
}

func TestApplyRejectsUnknownTarget(t *testing.T) {
	g := testGraph()
	_, err := Apply(g, []domain.Change{
		{ID: "c1", Type: domain.ChangeEdgePriority, Target: "ghost", NewValue: 1},
	})
	assert.Error(t, err)
}

func TestApplyRejectsInvalidResult(t *testing.T) {
	g := testGraph()
	// Removing the only edge out of start leaves a dead end; the whole
	// change set is rejected.
	_, err := Apply(g, []domain.Change{
		{ID: "c1", Type: domain.ChangeRemoveEdge, Target: "e1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}

func TestApplyGuardAndPrompt(t *testing.T) {
	g := testGraph()
	next, err := Apply(g, []domain.Change{
		{ID: "c1", Type: domain.ChangeGuard, Target: "fast", NewValue: "data.score > 0.5"},
		{ID: "c2", Type: domain.ChangePrompt, Target: "work", NewValue: "Work harder on {{data.topic}}"},
	})
	require.NoError(t, err)
	assert.Equal(t, "data.score > 0.5", next.EdgeByID("fast").Guard)
	assert.Equal(t, "Work harder on {{data.topic}}", next.NodeByID("work").Prompt)
}

func TestApplyBadGuardRejected(t *testing.T) {
	g := testGraph()
	_, err := Apply(g, []domain.Change{
		{ID: "c1", Type: domain.ChangeGuard, Target: "fast", NewValue: "data.score >"},
	})
	assert.Error(t, err)
}

func TestApplyAddEdge(t *testing.T) {
	g := testGraph()
	next, err := Apply(g, []domain.Change{
		{ID: "c1", Type: domain.ChangeAddEdge, NewValue: map[string]any{
			"id": "bypass", "from": "start", "to": "done", "kind": domain.EdgeForward, "priority": 5,
		}},
	})
	require.NoError(t, err)
	edge := next.EdgeByID("bypass")
	require.NotNil(t, edge)
	assert.Equal(t, "done", edge.To)
	assert.Equal(t, 5, edge.Priority)
}

func TestApplyWeightClamped(t *testing.T) {
	g := testGraph()
	next, err := Apply(g, []domain.Change{
		{ID: "c1", Type: domain.ChangeEdgeWeight, Target: "fast", NewValue: 7.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, next.EdgeByID("fast").Weight)
}
