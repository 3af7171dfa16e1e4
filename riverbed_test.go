package riverbed_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverbedai/riverbed"
	"github.com/riverbedai/riverbed/internal/learning"
	"github.com/riverbedai/riverbed/pkg/adapters/memory"
	"github.com/riverbedai/riverbed/pkg/domain"
)

type scriptedCompleter struct {
	mu        sync.Mutex
	responses []map[string]any
	calls     int
}

func (c *scriptedCompleter) Complete(ctx context.Context, prompt string, schema *domain.OutputSchema) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls % len(c.responses)
	c.calls++
	return c.responses[i], nil
}

func triageGraph() *domain.Graph {
	return &domain.Graph{
		Name:          "triage",
		Version:       1,
		StartNode:     "intake",
		TerminalNodes: []string{"done", "failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "intake", Type: domain.NodeInit, Prompt: "Classify: {{request}}"},
			{ID: "answer", Type: domain.NodeReason, Prompt: "Answer for {{data.topic}}"},
			{ID: "done", Type: domain.NodeTerminal},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "e1", From: "intake", To: "answer", Kind: domain.EdgeForward, Priority: 1},
			{ID: "e2", From: "answer", To: "done", Kind: domain.EdgeForward, Priority: 1},
		},
	}
}

func newEngine(t *testing.T, opts ...riverbed.Option) *riverbed.Engine {
	t.Helper()
	completer := &scriptedCompleter{responses: []map[string]any{
		{"topic": "billing"},
		{"answer": "42"},
	}}
	eng, err := riverbed.New(context.Background(), memory.NewGraphSource(triageGraph()), completer, opts...)
	require.NoError(t, err)
	return eng
}

func TestCreateAndRun(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	runID, err := eng.Create(ctx, "what is my invoice total?", map[string]any{"tenant": "acme"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	result, err := eng.Run(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "done", result.FinalNode)

	status, err := eng.Status(ctx, runID)
	require.NoError(t, err)
	assert.True(t, status.Finished)
	assert.Equal(t, domain.OutcomeSuccess, status.Outcome)

	audit, err := eng.Audit(ctx, runID)
	require.NoError(t, err)
	assert.NotEmpty(t, audit)
}

func TestStatusBeforeRun(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	runID, err := eng.Create(ctx, "hello", nil)
	require.NoError(t, err)

	status, err := eng.Status(ctx, runID)
	require.NoError(t, err)
	assert.False(t, status.Finished)
	assert.Equal(t, "intake", status.CurrentNode)
	assert.Zero(t, status.TotalSteps)
}

func TestStatusUnknownRun(t *testing.T) {
	eng := newEngine(t)

	_, err := eng.Status(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestRunsFeedTheLearningLoop(t *testing.T) {
	eng := newEngine(t, riverbed.WithEvolution(learning.WithMinRuns(2)))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := eng.Start(ctx, "question", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, eng.PendingRuns())

	// Two identical successful runs give the analyzer nothing to change,
	// but the batch must be consumed either way.
	_, err := eng.Learn(ctx)
	require.NoError(t, err)
	assert.Zero(t, eng.PendingRuns())
}

func TestFactsRoundtrip(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	written, err := eng.WriteFact(ctx, domain.Fact{Text: "tenant acme prefers terse answers", Confidence: 0.8}, "")
	require.NoError(t, err)
	require.NotEmpty(t, written.ID)

	facts := eng.Dredge(domain.FactFilter{Text: "acme"})
	require.Len(t, facts, 1)
	assert.Equal(t, written.ID, facts[0].ID)
}

func TestNewRequiresSourceAndCompleter(t *testing.T) {
	ctx := context.Background()

	_, err := riverbed.New(ctx, nil, &scriptedCompleter{responses: []map[string]any{{}}})
	assert.Error(t, err)

	_, err = riverbed.New(ctx, memory.NewGraphSource(triageGraph()), nil)
	assert.Error(t, err)
}
