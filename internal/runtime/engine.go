/*
Package runtime implements the deterministic execution controller.

The controller owns every transition: it executes the current node's typed
behavior, commits the resulting state, then resolves exactly one outgoing
edge by guard and priority. The language model only ever fills in node
outputs; it never chooses where to go next.
*/
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/riverbedai/riverbed/internal/logging"
	"github.com/riverbedai/riverbed/internal/sediment"
	"github.com/riverbedai/riverbed/pkg/domain"
	"github.com/riverbedai/riverbed/pkg/guard"
	"github.com/riverbedai/riverbed/pkg/observability"
	"github.com/riverbedai/riverbed/pkg/ports"
)

const (
	defaultMaxSteps    = 50
	defaultRetryBudget = 10
	defaultTaskTimeout = 60 * time.Second
)

// Engine drives runs against one immutable graph version.
type Engine struct {
	graph     *domain.Graph
	completer ports.Completer
	skills    ports.SkillRunner
	sediment  *sediment.Store
	store     ports.RunStore
	archive   ports.RunArchive
	guards    *guard.Evaluator
	logger    *slog.Logger
	metrics   *observability.Metrics

	maxSteps    int
	retryBudget int
	taskTimeout time.Duration

	// Fire-and-forget parallel tasks still running, keyed by run id.
	bgMu sync.Mutex
	bg   map[string][]*pendingTask
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithSkillRunner sets the external skill executor.
func WithSkillRunner(s ports.SkillRunner) Option { return func(e *Engine) { e.skills = s } }

// WithSediment sets the fact store used for dredge and memory-write nodes.
func WithSediment(s *sediment.Store) Option { return func(e *Engine) { e.sediment = s } }

// WithStore sets the run state store for per-step persistence.
func WithStore(s ports.RunStore) Option { return func(e *Engine) { e.store = s } }

// WithArchive sets the write-once artifact store.
func WithArchive(a ports.RunArchive) Option { return func(e *Engine) { e.archive = a } }

// WithMaxSteps bounds total controller steps per run.
func WithMaxSteps(n int) Option { return func(e *Engine) { e.maxSteps = n } }

// WithRetryBudget bounds total retry traversals per run across all edges.
func WithRetryBudget(n int) Option { return func(e *Engine) { e.retryBudget = n } }

// WithTaskTimeout bounds each skill invocation.
func WithTaskTimeout(d time.Duration) Option { return func(e *Engine) { e.taskTimeout = d } }

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *observability.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// New creates an engine bound to one graph version.
func New(g *domain.Graph, completer ports.Completer, opts ...Option) *Engine {
	e := &Engine{
		graph:       g,
		completer:   completer,
		guards:      guard.NewEvaluator(),
		logger:      logging.NewNop(),
		maxSteps:    defaultMaxSteps,
		retryBudget: defaultRetryBudget,
		taskTimeout: defaultTaskTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the graph version this engine executes.
func (e *Engine) Graph() *domain.Graph { return e.graph }

// Run executes the state to completion and returns the run result.
// State is committed after every step, so a crashed run can be reloaded
// and resumed from its last committed node.
func (e *Engine) Run(ctx context.Context, state *domain.State) (domain.RunResult, error) {
	g := e.graph
	state.GraphName = g.Name
	state.GraphVersion = g.Version
	if e.metrics != nil {
		e.metrics.RunsStarted.Inc()
	}
	e.logger.Info("run started", "run_id", state.RunID, "graph", g.Name, "version", g.Version)

	for {
		if err := ctx.Err(); err != nil {
			return e.finish(ctx, state, domain.OutcomeError, fmt.Sprintf("context canceled: %v", err))
		}

		node := g.NodeByID(state.CurrentNode)
		if node == nil {
			return e.finish(ctx, state, domain.OutcomeError, fmt.Sprintf("unknown node %q", state.CurrentNode))
		}

		// Step ceiling check happens before executing, so a run never
		// exceeds its budget even by one node.
		if state.Counters.TotalSteps >= e.maxSteps {
			state.AddAudit(node.ID, domain.AuditTerminal, "max steps reached", nil)
			return e.finish(ctx, state, domain.OutcomeMaxSteps,
				fmt.Sprintf("reached step ceiling %d", e.maxSteps))
		}

		state.Counters.VisitNode(node.ID)
		if e.metrics != nil {
			e.metrics.Steps.Inc()
		}

		if err := e.executeNode(ctx, g, state, node); err != nil {
			e.logger.Warn("node execution failed", "run_id", state.RunID, "node_id", node.ID, "error", err)
			state.AddAudit(node.ID, domain.AuditError, err.Error(), nil)
			state.Signals.RecordFailure(node.ID, "execution error", map[string]any{"error": err.Error()})

			if done, result := e.routeAfterError(ctx, state, node); done {
				return result, nil
			}
			e.commit(ctx, state)
			continue
		}

		state.AddAudit(node.ID, domain.AuditExecuted, node.Purpose, nil)

		if node.IsTerminal() {
			outcome, reason := e.terminalOutcome(g, node)
			state.AddAudit(node.ID, domain.AuditTerminal, reason, nil)
			return e.finish(ctx, state, outcome, reason)
		}
		if g.EscalateNode != "" && node.ID == g.EscalateNode {
			state.AddAudit(node.ID, domain.AuditTerminal, "escalated to human", nil)
			return e.finish(ctx, state, domain.OutcomeEscalated, "escalated to human")
		}

		if done, result := e.route(ctx, state, node); done {
			return result, nil
		}
		e.commit(ctx, state)
	}
}

// route resolves and takes the next edge. It returns (true, result) when
// routing terminated the run instead of moving it.
func (e *Engine) route(ctx context.Context, state *domain.State, node *domain.Node) (bool, domain.RunResult) {
	edge, candidates, err := e.nextEdge(e.graph, state, node.ID)
	switch {
	case errors.Is(err, domain.ErrRetryBudgetExceeded):
		return e.forceFailure(ctx, state, node, "retry budget exceeded")
	case errors.Is(err, errNoRoute):
		return e.forceFailure(ctx, state, node, "no viable edge")
	}

	if edge.Kind == domain.EdgeRetry {
		count := state.Counters.AddRetry(edge.ID)
		if e.metrics != nil {
			e.metrics.Retries.Inc()
		}
		state.AddAudit(node.ID, domain.AuditRetry,
			fmt.Sprintf("retry %d/%d via %s", count, edge.MaxRetries, edge.ID),
			map[string]any{"edge_id": edge.ID, "retry": count, "candidates": toAnySlice(candidates)})
	} else {
		state.Signals.RecordSuccess(node.ID, edge.ID)
		state.AddAudit(node.ID, domain.AuditTransition,
			fmt.Sprintf("%s -> %s via %s", edge.From, edge.To, edge.ID),
			map[string]any{"edge_id": edge.ID, "candidates": toAnySlice(candidates)})
	}

	e.applyTraverseActions(state, edge)
	state.CurrentNode = edge.To
	return false, domain.RunResult{}
}

// routeAfterError looks for a usable retry edge out of a failed node.
// Without one, the failure terminal takes over.
func (e *Engine) routeAfterError(ctx context.Context, state *domain.State, node *domain.Node) (bool, domain.RunResult) {
	for _, edge := range e.graph.Outgoing(node.ID) {
		if edge.Kind != domain.EdgeRetry {
			continue
		}
		if state.Counters.Retries(edge.ID) >= edge.MaxRetries {
			continue
		}
		if e.retryBudget > 0 && state.Counters.TotalRetries >= e.retryBudget {
			continue
		}
		count := state.Counters.AddRetry(edge.ID)
		if e.metrics != nil {
			e.metrics.Retries.Inc()
		}
		state.AddAudit(node.ID, domain.AuditRetry,
			fmt.Sprintf("retry %d/%d via %s after error", count, edge.MaxRetries, edge.ID),
			map[string]any{"edge_id": edge.ID, "retry": count})
		state.CurrentNode = edge.To
		return false, domain.RunResult{}
	}
	return e.forceFailure(ctx, state, node, "node failed with no retry budget left")
}

// forceFailure overrides normal routing and moves the run to the failure
// terminal. Without a failure node the run ends immediately.
func (e *Engine) forceFailure(ctx context.Context, state *domain.State, node *domain.Node, reason string) (bool, domain.RunResult) {
	state.AddAudit(node.ID, domain.AuditForcedFailure, reason, nil)
	state.Signals.RecordFailure(node.ID, reason, nil)
	e.logger.Warn("forced failure", "run_id", state.RunID, "node_id", node.ID, "reason", reason)

	if e.graph.FailureNode == "" {
		result, _ := e.finish(ctx, state, domain.OutcomeFailure, reason)
		return true, result
	}
	state.Set("failure_reason", reason)
	state.CurrentNode = e.graph.FailureNode
	return false, domain.RunResult{}
}

// terminalOutcome maps a terminal node to the run's final disposition.
func (e *Engine) terminalOutcome(g *domain.Graph, node *domain.Node) (domain.Outcome, string) {
	for _, action := range node.OnReach {
		if action.Action == "set_outcome" && action.Outcome != "" {
			return domain.Outcome(action.Outcome), fmt.Sprintf("terminal %s", node.ID)
		}
	}
	if node.ID == g.FailureNode {
		return domain.OutcomeFailure, fmt.Sprintf("reached failure terminal %s", node.ID)
	}
	return domain.OutcomeSuccess, fmt.Sprintf("reached terminal %s", node.ID)
}

// applyTraverseActions applies an edge's declarative post-traversal actions.
func (e *Engine) applyTraverseActions(state *domain.State, edge *domain.Edge) {
	for _, action := range edge.OnTraverse {
		switch action.Action {
		case "set":
			for path, value := range action.Params {
				state.Set(path, value)
			}
		case "clear":
			for path := range action.Params {
				state.Set(path, nil)
			}
		case "observe":
			state.Signals.RecordObservation(edge.ID, action.Params)
		default:
			e.logger.Debug("unknown traverse action", "edge_id", edge.ID, "action", action.Action)
		}
	}
}

// finish seals the run: final state, archived result, full audit trail.
func (e *Engine) finish(ctx context.Context, state *domain.State, outcome domain.Outcome, reason string) (domain.RunResult, error) {
	e.dropBackground(state)
	now := time.Now().UTC()
	state.EndedAt = &now

	result := domain.RunResult{
		RunID:      state.RunID,
		Outcome:    outcome,
		Reason:     reason,
		FinalNode:  state.CurrentNode,
		TotalSteps: state.Counters.TotalSteps,
		StartedAt:  state.StartedAt,
		EndedAt:    now,
		FinalState: state.Snapshot(),
	}
	if outcome == domain.OutcomeEscalated {
		result.ResumeSnapshot = state.Snapshot()
	}

	e.commit(ctx, state)
	if e.archive != nil {
		if err := e.archive.SaveResult(ctx, result); err != nil {
			e.logger.Error("archiving result failed", "run_id", state.RunID, "error", err)
		}
		if err := e.archive.AppendAudit(ctx, state.RunID, state.Audit); err != nil {
			e.logger.Error("archiving audit failed", "run_id", state.RunID, "error", err)
		}
	}
	if e.metrics != nil {
		e.metrics.RunsFinished.WithLabelValues(string(outcome)).Inc()
		e.metrics.RunDuration.Observe(now.Sub(state.StartedAt).Seconds())
	}
	e.logger.Info("run finished",
		"run_id", state.RunID, "outcome", outcome, "steps", state.Counters.TotalSteps, "final_node", state.CurrentNode)
	return result, nil
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// commit persists state. Persistence failures degrade durability, not
// correctness, so they are logged and execution continues.
func (e *Engine) commit(ctx context.Context, state *domain.State) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, state.RunID, state); err != nil {
		e.logger.Error("state commit failed", "run_id", state.RunID, "error", err)
	}
}
