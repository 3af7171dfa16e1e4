package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverbedai/riverbed/internal/sediment"
	"github.com/riverbedai/riverbed/pkg/adapters/memory"
	"github.com/riverbedai/riverbed/pkg/domain"
)

// scriptedCompleter replays canned LM responses in call order. The last
// response repeats once the script is exhausted.
type scriptedCompleter struct {
	mu        sync.Mutex
	responses []map[string]any
	calls     int
}

func (c *scriptedCompleter) Complete(ctx context.Context, prompt string, schema *domain.OutputSchema) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	c.calls++
	return c.responses[i], nil
}

type skillFunc func(ctx context.Context, name string, params map[string]any) (map[string]any, error)

func (f skillFunc) Invoke(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	return f(ctx, name, params)
}

// lineGraph is start(init) -> work(reason) -> done, plus a failure terminal.
func lineGraph() *domain.Graph {
	return &domain.Graph{
		Name:          "line",
		Version:       1,
		StartNode:     "start",
		TerminalNodes: []string{"done", "failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeInit, Prompt: "Classify: {{request}}"},
			{ID: "work", Type: domain.NodeReason, Prompt: "Answer about {{data.topic}}"},
			{ID: "done", Type: domain.NodeTerminal},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "e1", From: "start", To: "work", Kind: domain.EdgeForward, Priority: 1},
			{ID: "e2", From: "work", To: "done", Kind: domain.EdgeForward, Priority: 1},
		},
	}
}

func TestRunHappyPath(t *testing.T) {
	completer := &scriptedCompleter{responses: []map[string]any{
		{"topic": "billing"},
		{"answer": "42"},
	}}
	store := memory.NewStore()
	archive := memory.NewArchive()
	engine := New(lineGraph(), completer, WithStore(store), WithArchive(archive))

	state := domain.NewState("run-1", "start")
	state.Request = "what is my invoice total?"

	result, err := engine.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "done", result.FinalNode)
	assert.Equal(t, 3, result.TotalSteps)
	assert.Equal(t, "42", state.GetString("answer"))

	// State was committed and the artifacts archived.
	_, err = store.Load(context.Background(), "run-1")
	require.NoError(t, err)
	archived, err := archive.LoadResult(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, archived.Outcome)
}

// Two runs with identical external responses must produce identical audit
// trails: same events, same order, same transitions.
func TestReplayDeterminism(t *testing.T) {
	runOnce := func(runID string) []domain.AuditEvent {
		completer := &scriptedCompleter{responses: []map[string]any{
			{"topic": "billing"},
			{"answer": "42"},
		}}
		engine := New(lineGraph(), completer)
		state := domain.NewState(runID, "start")
		state.Request = "same request"
		_, err := engine.Run(context.Background(), state)
		require.NoError(t, err)
		return state.Audit
	}

	first := runOnce("run-a")
	second := runOnce("run-b")

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Sequence, second[i].Sequence)
		assert.Equal(t, first[i].NodeID, second[i].NodeID)
		assert.Equal(t, first[i].Action, second[i].Action)
	}
}

// A gate that keeps failing exhausts its retry edge and the run is forced
// to the failure terminal with outcome failure, not an error.
func TestRetryExhaustionForcesFailure(t *testing.T) {
	g := &domain.Graph{
		Name:          "gated",
		Version:       1,
		StartNode:     "start",
		TerminalNodes: []string{"done", "failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeInit, Prompt: "go"},
			{ID: "check", Type: domain.NodeGate, Gate: &domain.GateConfig{
				Criteria: []domain.Criterion{{Name: "has answer", Check: `length(data.answer) > 0`}},
			}},
			{ID: "done", Type: domain.NodeTerminal},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "e1", From: "start", To: "check", Kind: domain.EdgeForward, Priority: 1},
			{ID: "pass", From: "check", To: "done", Kind: domain.EdgeForward, Priority: 1, Guard: "data.gate.passed"},
			{ID: "again", From: "check", To: "start", Kind: domain.EdgeRetry, Priority: 2, MaxRetries: 2},
		},
	}

	// The LM never produces an answer, so the gate never passes.
	completer := &scriptedCompleter{responses: []map[string]any{{"noise": true}}}
	engine := New(g, completer)

	state := domain.NewState("run-retry", "start")
	result, err := engine.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.Equal(t, "failed", result.FinalNode)
	assert.Equal(t, 2, state.Counters.Retries("again"))

	var forced bool
	for _, ev := range state.Audit {
		if ev.Action == domain.AuditForcedFailure {
			forced = true
		}
	}
	assert.True(t, forced, "expected a forced_failure audit event")
	assert.Equal(t, "retry budget exceeded", state.GetString("failure_reason"))
}

func TestGlobalRetryBudget(t *testing.T) {
	g := &domain.Graph{
		Name:          "gated",
		Version:       1,
		StartNode:     "start",
		TerminalNodes: []string{"done", "failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeInit, Prompt: "go"},
			{ID: "check", Type: domain.NodeGate, Gate: &domain.GateConfig{
				Criteria: []domain.Criterion{{Name: "never", Check: "data.absent"}},
			}},
			{ID: "done", Type: domain.NodeTerminal},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "e1", From: "start", To: "check", Kind: domain.EdgeForward, Priority: 1},
			{ID: "pass", From: "check", To: "done", Kind: domain.EdgeForward, Priority: 1, Guard: "data.gate.passed"},
			{ID: "again", From: "check", To: "start", Kind: domain.EdgeRetry, Priority: 2, MaxRetries: 100},
		},
	}

	completer := &scriptedCompleter{responses: []map[string]any{{"noise": true}}}
	engine := New(g, completer, WithRetryBudget(3))

	state := domain.NewState("run-budget", "start")
	result, err := engine.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.Equal(t, 3, state.Counters.TotalRetries)
}

func TestMaxStepsTerminates(t *testing.T) {
	// start and work bounce forever without a terminal in reach.
	g := &domain.Graph{
		Name:          "loop",
		Version:       1,
		StartNode:     "start",
		TerminalNodes: []string{"failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeInit, Prompt: "go"},
			{ID: "work", Type: domain.NodeReason, Prompt: "more"},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "e1", From: "start", To: "work", Kind: domain.EdgeForward, Priority: 1},
			{ID: "e2", From: "work", To: "start", Kind: domain.EdgeForward, Priority: 1},
		},
	}

	completer := &scriptedCompleter{responses: []map[string]any{{"x": 1}}}
	engine := New(g, completer, WithMaxSteps(7))

	state := domain.NewState("run-loop", "start")
	result, err := engine.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeMaxSteps, result.Outcome)
	assert.Equal(t, 7, result.TotalSteps)
}

func TestPriorityAndDeclarationOrder(t *testing.T) {
	g := lineGraph()
	// Two guard-true edges out of work: lower priority wins; equal
	// priorities fall back to declaration order.
	g.Nodes = append(g.Nodes, domain.Node{ID: "alt", Type: domain.NodeTerminal})
	g.TerminalNodes = append(g.TerminalNodes, "alt")
	g.Edges = []domain.Edge{
		{ID: "e1", From: "start", To: "work", Kind: domain.EdgeForward, Priority: 1},
		{ID: "to-alt", From: "work", To: "alt", Kind: domain.EdgeForward, Priority: 2},
		{ID: "to-done", From: "work", To: "done", Kind: domain.EdgeForward, Priority: 1},
	}

	completer := &scriptedCompleter{responses: []map[string]any{{"x": 1}}}
	state := domain.NewState("run-prio", "start")
	result, err := New(g, completer).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "done", result.FinalNode)

	// Same priority: first declared wins.
	g2 := lineGraph()
	g2.Nodes = append(g2.Nodes, domain.Node{ID: "alt", Type: domain.NodeTerminal})
	g2.TerminalNodes = append(g2.TerminalNodes, "alt")
	g2.Edges = []domain.Edge{
		{ID: "e1", From: "start", To: "work", Kind: domain.EdgeForward, Priority: 1},
		{ID: "to-alt", From: "work", To: "alt", Kind: domain.EdgeForward, Priority: 1},
		{ID: "to-done", From: "work", To: "done", Kind: domain.EdgeForward, Priority: 1},
	}
	state2 := domain.NewState("run-order", "start")
	result2, err := New(g2, &scriptedCompleter{responses: []map[string]any{{"x": 1}}}).Run(context.Background(), state2)
	require.NoError(t, err)
	assert.Equal(t, "alt", result2.FinalNode)
}

func TestDecisionRouting(t *testing.T) {
	g := &domain.Graph{
		Name:          "routes",
		Version:       1,
		StartNode:     "start",
		TerminalNodes: []string{"billing", "other", "failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeInit, Prompt: "Classify: {{request}}"},
			{ID: "route", Type: domain.NodeDecision, Decision: &domain.DecisionConfig{
				Variable: "data.category",
				Rules: []domain.Rule{
					{Condition: `value == "billing"`, Target: "billing"},
					{Condition: "default", Target: "other"},
				},
			}},
			{ID: "billing", Type: domain.NodeTerminal},
			{ID: "other", Type: domain.NodeTerminal},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "e1", From: "start", To: "route", Kind: domain.EdgeForward, Priority: 1},
			{ID: "e2", From: "route", To: "billing", Kind: domain.EdgeForward, Priority: 1},
			{ID: "e3", From: "route", To: "other", Kind: domain.EdgeForward, Priority: 2},
		},
	}

	completer := &scriptedCompleter{responses: []map[string]any{{"category": "billing"}}}
	state := domain.NewState("run-dec", "start")
	result, err := New(g, completer).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "billing", result.FinalNode)

	// Unmatched value takes the default rule.
	completer2 := &scriptedCompleter{responses: []map[string]any{{"category": "shipping"}}}
	state2 := domain.NewState("run-dec2", "start")
	result2, err := New(g, completer2).Run(context.Background(), state2)
	require.NoError(t, err)
	assert.Equal(t, "other", result2.FinalNode)
}

func TestParallelSpawnAndMerge(t *testing.T) {
	g := &domain.Graph{
		Name:          "fanout",
		Version:       1,
		StartNode:     "plan",
		TerminalNodes: []string{"done", "failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "plan", Type: domain.NodeInit, Prompt: "Plan tasks", Parallel: domain.ParallelDirective{Spawn: true, WaitForAll: true, MaxConcurrent: 2}},
			{ID: "combine", Type: domain.NodeMerge, Merge: &domain.MergeConfig{TargetPath: "findings", Policy: domain.MergeAppend}},
			{ID: "done", Type: domain.NodeTerminal},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "e1", From: "plan", To: "combine", Kind: domain.EdgeForward, Priority: 1},
			{ID: "e2", From: "combine", To: "done", Kind: domain.EdgeForward, Priority: 1},
		},
	}
	// init nodes spawn in tests via the same path reason nodes use
	g.Nodes[0].Type = domain.NodeReason

	completer := &scriptedCompleter{responses: []map[string]any{{
		"tasks": []any{
			map[string]any{"id": "t1", "skill": "search", "params": map[string]any{"q": "alpha"}},
			map[string]any{"id": "t2", "skill": "search", "params": map[string]any{"q": "beta"}},
		},
	}}}

	skills := skillFunc(func(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
		return map[string]any{"hit": params["q"]}, nil
	})

	state := domain.NewState("run-par", "plan")
	result, err := New(g, completer, WithSkillRunner(skills)).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, state.Counters.TasksSpawned)
	assert.Equal(t, 2, state.Counters.TasksCompleted)

	// Branch results were appended in spawn order at the merge node.
	merged, ok := state.Get("findings")
	require.True(t, ok)
	list, ok := merged.([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	second := list[1].(map[string]any)
	assert.Equal(t, "alpha", first["hit"])
	assert.Equal(t, "beta", second["hit"])

	// Branch namespaces are cleared after the merge.
	_, stillThere := state.Get("branches.t1")
	assert.False(t, stillThere)
}

func TestParallelFailurePropagatesWhenWaiting(t *testing.T) {
	g := lineGraph()
	g.Nodes[1].Parallel = domain.ParallelDirective{Spawn: true, WaitForAll: true}

	completer := &scriptedCompleter{responses: []map[string]any{
		{"topic": "x"},
		{"tasks": []any{map[string]any{"id": "t1", "skill": "boom"}}},
	}}
	skills := skillFunc(func(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
		return nil, errors.New("skill exploded")
	})

	state := domain.NewState("run-parfail", "start")
	result, err := New(g, completer, WithSkillRunner(skills)).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.Equal(t, 1, state.Counters.TasksFailed)
}

// fanoutGraph is plan(reason, spawns) -> combine(merge) -> done.
func fanoutGraph(waitForAll bool) *domain.Graph {
	return &domain.Graph{
		Name:          "fanout",
		Version:       1,
		StartNode:     "plan",
		TerminalNodes: []string{"done", "failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "plan", Type: domain.NodeReason, Prompt: "Plan tasks",
				Parallel: domain.ParallelDirective{Spawn: true, WaitForAll: waitForAll}},
			{ID: "combine", Type: domain.NodeMerge, Merge: &domain.MergeConfig{TargetPath: "findings", Policy: domain.MergeAppend}},
			{ID: "done", Type: domain.NodeTerminal},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "e1", From: "plan", To: "combine", Kind: domain.EdgeForward, Priority: 1},
			{ID: "e2", From: "combine", To: "done", Kind: domain.EdgeForward, Priority: 1},
		},
	}
}

// One of three tasks exceeds its per-task timeout. With log_and_continue
// the run keeps going and the merge folds in the two survivors.
func TestParallelTaskTimeoutLogAndContinue(t *testing.T) {
	completer := &scriptedCompleter{responses: []map[string]any{{
		"tasks": []any{
			map[string]any{"id": "t1", "skill": "search", "params": map[string]any{"q": "alpha"}},
			map[string]any{"id": "t2", "skill": "search", "params": map[string]any{"q": "beta"}},
			map[string]any{"id": "t3", "skill": "stall", "timeout": 0.05},
		},
	}}}
	skills := skillFunc(func(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
		if name == "stall" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return map[string]any{"hit": params["q"]}, nil
	})

	state := domain.NewState("run-slowtask", "plan")
	result, err := New(fanoutGraph(false), completer, WithSkillRunner(skills)).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, state.Counters.TasksCompleted)
	assert.Equal(t, 1, state.Counters.TasksFailed)

	merged, ok := state.Get("findings")
	require.True(t, ok)
	assert.Len(t, merged.([]any), 2)
}

// A blocking task with on_fail propagate fails its node even without
// wait_for_all on the node.
func TestParallelOnFailPropagate(t *testing.T) {
	completer := &scriptedCompleter{responses: []map[string]any{{
		"tasks": []any{map[string]any{"id": "t1", "skill": "boom", "on_fail": "propagate"}},
	}}}
	skills := skillFunc(func(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
		return nil, errors.New("skill exploded")
	})

	state := domain.NewState("run-propagate", "plan")
	result, err := New(fanoutGraph(false), completer, WithSkillRunner(skills)).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
}

// A wait=false task still running at merge time is skipped, and whatever
// is left at run end is dropped without failing the run.
func TestParallelFireAndForgetDroppedAtRunEnd(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	completer := &scriptedCompleter{responses: []map[string]any{{
		"tasks": []any{
			map[string]any{"id": "t1", "skill": "search", "params": map[string]any{"q": "alpha"}},
			map[string]any{"id": "t2", "skill": "linger", "wait": false},
		},
	}}}
	skills := skillFunc(func(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
		if name == "linger" {
			<-release
			return map[string]any{"late": true}, nil
		}
		return map[string]any{"hit": params["q"]}, nil
	})

	eng := New(fanoutGraph(false), completer, WithSkillRunner(skills), WithTaskTimeout(0))
	state := domain.NewState("run-bg", "plan")
	result, err := eng.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)

	merged, ok := state.Get("findings")
	require.True(t, ok)
	assert.Len(t, merged.([]any), 1, "only the blocking task's branch is merged")
	_, lateThere := state.Get("branches.t2")
	assert.False(t, lateThere)

	eng.bgMu.Lock()
	_, tracked := eng.bg["run-bg"]
	eng.bgMu.Unlock()
	assert.False(t, tracked, "run end drops its background tasks")
}

// A wait=false task that finishes before the merge node runs is adopted
// into the merged result.
func TestParallelFireAndForgetAdoptedWhenDone(t *testing.T) {
	eng := New(fanoutGraph(false), &scriptedCompleter{responses: []map[string]any{{}}},
		WithSkillRunner(skillFunc(func(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
			return map[string]any{"late": true}, nil
		})))

	state := domain.NewState("run-adopt", "plan")
	node := eng.Graph().NodeByID("plan")
	err := eng.spawnTasks(context.Background(), state, node,
		[]any{map[string]any{"id": "t1", "skill": "fast", "wait": false}})
	require.NoError(t, err)

	eng.bgMu.Lock()
	require.Len(t, eng.bg["run-adopt"], 1)
	pending := eng.bg["run-adopt"][0]
	eng.bgMu.Unlock()
	<-pending.done

	eng.adoptBackground(state, "combine")
	assert.Equal(t, 1, state.Counters.TasksCompleted)
	assert.Empty(t, state.Parallel.Active)
	branch, ok := state.Get("branches.t1")
	require.True(t, ok)
	assert.Equal(t, true, branch.(map[string]any)["late"])
}

// A decompose edge stops routing once the parent's children hit the
// configured bound or the parent is past its decomposing phase.
func TestDecomposeEdgeRespectsChildBound(t *testing.T) {
	g := &domain.Graph{
		Name:          "chunking",
		Version:       1,
		StartNode:     "goal",
		TerminalNodes: []string{"done", "failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "goal", Type: domain.NodeReason, Prompt: "Break it down"},
			{ID: "subtask", Type: domain.NodeReason, Prompt: "Do a piece"},
			{ID: "done", Type: domain.NodeTerminal},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "dec", From: "goal", To: "subtask", Kind: domain.EdgeDecompose, Priority: 1,
				Decompose: &domain.DecomposeConfig{ParentID: "goal", MaxChildren: 2}},
			{ID: "wrap", From: "goal", To: "done", Kind: domain.EdgeForward, Priority: 2},
		},
	}
	eng := New(g, &scriptedCompleter{responses: []map[string]any{{}}})

	state := domain.NewState("run-dec", "goal")
	edge, _, err := eng.nextEdge(g, state, "goal")
	require.NoError(t, err)
	assert.Equal(t, "dec", edge.ID, "room for children keeps the decompose edge viable")

	state.Set("task_children.goal", []any{"c1", "c2"})
	edge, _, err = eng.nextEdge(g, state, "goal")
	require.NoError(t, err)
	assert.Equal(t, "wrap", edge.ID, "full fan-out blocks the decompose edge")

	state.Set("task_children.goal", []any{"c1"})
	state.Set("task_status.goal", "completed")
	edge, _, err = eng.nextEdge(g, state, "goal")
	require.NoError(t, err)
	assert.Equal(t, "wrap", edge.ID, "a finished parent never decomposes again")
}

func TestMemoryWriteNode(t *testing.T) {
	g := &domain.Graph{
		Name:          "remember",
		Version:       1,
		StartNode:     "start",
		TerminalNodes: []string{"done", "failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeInit, Prompt: "go", Memory: domain.MemoryDirective{Write: true}},
			{ID: "commit", Type: domain.NodeMemoryWrite, Memory: domain.MemoryDirective{Source: "pending_facts"}},
			{ID: "done", Type: domain.NodeTerminal},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "e1", From: "start", To: "commit", Kind: domain.EdgeForward, Priority: 1},
			{ID: "e2", From: "commit", To: "done", Kind: domain.EdgeForward, Priority: 1},
		},
	}

	completer := &scriptedCompleter{responses: []map[string]any{{
		"facts": []any{
			map[string]any{"text": "customer is on the pro plan", "confidence": 0.9, "subject": "cust-1", "predicate": "plan", "object": "pro"},
		},
	}}}

	sed, err := sediment.New(context.Background(), memory.NewFactLog(), nil)
	require.NoError(t, err)

	state := domain.NewState("run-mem", "start")
	result, err := New(g, completer, WithSediment(sed)).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 1, state.Counters.MemoryWrites)

	facts := sed.Dredge(domain.FactFilter{Subjects: []string{"cust-1"}})
	require.Len(t, facts, 1)
	assert.Equal(t, "run-mem", facts[0].Provenance.RunID)
	assert.Equal(t, "commit", facts[0].Provenance.NodeID)

	// The pending list was drained.
	pending, _ := state.Get("pending_facts")
	assert.Empty(t, pending)
}

func TestSchemaRetryThenForcedFailure(t *testing.T) {
	g := lineGraph()
	g.Nodes[1].OutputSchema = &domain.OutputSchema{Type: "object", Required: []string{"answer"}}
	g.Nodes[1].MaxOutputRetries = 1

	// Never returns the required key; one re-ask then the node errors.
	completer := &scriptedCompleter{responses: []map[string]any{
		{"topic": "x"},
		{"junk": true},
	}}

	state := domain.NewState("run-schema", "start")
	result, err := New(g, completer).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	// First call, then failing node call plus one re-ask.
	assert.Equal(t, 3, state.Counters.LMCalls)
}

func TestTransitionAuditCarriesCandidates(t *testing.T) {
	completer := &scriptedCompleter{responses: []map[string]any{{"x": 1}}}
	state := domain.NewState("run-audit", "start")
	_, err := New(lineGraph(), completer).Run(context.Background(), state)
	require.NoError(t, err)

	var seen bool
	for _, ev := range state.Audit {
		if ev.Action == domain.AuditTransition {
			seen = true
			assert.NotEmpty(t, ev.Signals["edge_id"])
			assert.NotEmpty(t, ev.Signals["candidates"])
		}
	}
	assert.True(t, seen)
}

func TestEscalation(t *testing.T) {
	g := lineGraph()
	g.EscalateNode = "human"
	g.Nodes = append(g.Nodes, domain.Node{ID: "human", Type: domain.NodeReason, Prompt: "hold"})
	g.Edges = append(g.Edges, domain.Edge{ID: "esc", From: "human", To: "done", Kind: domain.EdgeForward, Priority: 1})
	// Route work to escalation instead of done.
	g.Edges[1] = domain.Edge{ID: "e2", From: "work", To: "human", Kind: domain.EdgeForward, Priority: 1}

	completer := &scriptedCompleter{responses: []map[string]any{{"x": 1}}}
	state := domain.NewState("run-esc", "start")
	result, err := New(g, completer).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeEscalated, result.Outcome)
	assert.NotNil(t, result.ResumeSnapshot)
}
