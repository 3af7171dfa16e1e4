package riverbed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/riverbedai/riverbed/internal/learning"
	"github.com/riverbedai/riverbed/internal/logging"
	"github.com/riverbedai/riverbed/internal/runtime"
	"github.com/riverbedai/riverbed/internal/sediment"
	"github.com/riverbedai/riverbed/pkg/adapters/memory"
	"github.com/riverbedai/riverbed/pkg/domain"
	"github.com/riverbedai/riverbed/pkg/observability"
	"github.com/riverbedai/riverbed/pkg/ports"
	"github.com/riverbedai/riverbed/pkg/run"
)

// Engine is the high-level entry point for the riverbed library. It wires
// the graph registry, the run controller, the sediment store, and the
// learning loop behind one operator-facing API.
type Engine struct {
	registry  *learning.Registry
	evolution *learning.Evolution
	sediment  *sediment.Store
	runs      *run.Manager

	store     ports.RunStore
	archive   ports.RunArchive
	facts     ports.FactLog
	proposals ports.ProposalStore
	completer ports.Completer
	skills    ports.SkillRunner
	locker    ports.Locker
	metrics   *observability.Metrics
	logger    *slog.Logger

	runtimeOpts []runtime.Option
	evoOpts     []learning.EvolutionOption
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithSkillRunner injects the tool execution backend.
func WithSkillRunner(skills ports.SkillRunner) Option {
	return func(e *Engine) { e.skills = skills }
}

// WithRunStore replaces the default in-memory run store.
func WithRunStore(store ports.RunStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithArchive replaces the default in-memory run archive.
func WithArchive(archive ports.RunArchive) Option {
	return func(e *Engine) { e.archive = archive }
}

// WithFactLog replaces the default in-memory fact log.
func WithFactLog(facts ports.FactLog) Option {
	return func(e *Engine) { e.facts = facts }
}

// WithProposalStore replaces the default in-memory proposal store.
func WithProposalStore(proposals ports.ProposalStore) Option {
	return func(e *Engine) { e.proposals = proposals }
}

// WithLocker enables distributed locking for multi-instance deployments.
func WithLocker(locker ports.Locker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxSteps overrides the controller step ceiling.
func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxSteps(n)) }
}

// WithRetryBudget overrides the global retry budget per run.
func WithRetryBudget(n int) Option {
	return func(e *Engine) { e.runtimeOpts = append(e.runtimeOpts, runtime.WithRetryBudget(n)) }
}

// WithEvolution forwards tuning options to the evolution engine.
func WithEvolution(opts ...learning.EvolutionOption) Option {
	return func(e *Engine) { e.evoOpts = append(e.evoOpts, opts...) }
}

// New initializes an Engine from a graph source and a language-model
// completer. All persistence defaults to in-memory adapters; production
// deployments override them via options.
func New(ctx context.Context, source ports.GraphSource, completer ports.Completer, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("graph source is required")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}

	e := &Engine{completer: completer}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.archive == nil {
		e.archive = memory.NewArchive()
	}
	if e.facts == nil {
		e.facts = memory.NewFactLog()
	}
	if e.proposals == nil {
		e.proposals = memory.NewProposalStore()
	}

	e.registry = learning.NewRegistry(source, e.logger)
	if err := e.registry.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}

	sed, err := sediment.New(ctx, e.facts, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open sediment store: %w", err)
	}
	e.sediment = sed

	runOpts := []run.Option{run.WithLogger(e.logger)}
	if e.locker != nil {
		runOpts = append(runOpts, run.WithLocker(e.locker))
	}
	e.runs = run.NewManager(e.store, runOpts...)

	evoOpts := append([]learning.EvolutionOption{learning.WithEvolutionLogger(e.logger)}, e.evoOpts...)
	if e.metrics != nil {
		evoOpts = append(evoOpts, learning.WithEvolutionMetrics(e.metrics))
	}
	e.evolution = learning.NewEvolution(e.registry, e.proposals, e.sediment, evoOpts...)

	return e, nil
}

// Graph returns the active graph version.
func (e *Engine) Graph() *domain.Graph {
	return e.registry.Active()
}

// Create initializes a new run positioned at the graph's start node and
// persists it. The request payload is available to prompts and guards
// under the "request" data path.
func (e *Engine) Create(ctx context.Context, request string, data map[string]any) (string, error) {
	g := e.registry.Active()

	runID := uuid.NewString()
	state := domain.NewState(runID, g.StartNode)
	state.GraphName = g.Name
	state.GraphVersion = g.Version
	state.Request = request
	state.Data["request"] = request
	for k, v := range data {
		state.Data[k] = v
	}

	if err := e.runs.Save(ctx, runID, state); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	e.logger.Info("run created", "run", runID, "graph", g.Name, "version", g.Version)
	return runID, nil
}

// Run executes a previously created run to a terminal outcome. The run
// lock is held for the whole execution, so concurrent Run calls for the
// same ID serialize. The finished run is fed to the learning loop.
func (e *Engine) Run(ctx context.Context, runID string) (domain.RunResult, error) {
	var result domain.RunResult

	err := e.runs.WithLock(ctx, runID, func(ctx context.Context) error {
		state, err := e.runs.Store().Load(ctx, runID)
		if err != nil {
			return err
		}

		opts := []runtime.Option{
			runtime.WithLogger(e.logger),
			runtime.WithSediment(e.sediment),
			runtime.WithStore(e.runs.Store()),
			runtime.WithArchive(e.archive),
		}
		if e.skills != nil {
			opts = append(opts, runtime.WithSkillRunner(e.skills))
		}
		if e.metrics != nil {
			opts = append(opts, runtime.WithMetrics(e.metrics))
		}
		opts = append(opts, e.runtimeOpts...)

		controller := runtime.New(e.registry.Active(), e.completer, opts...)
		result, err = controller.Run(ctx, state)
		if err != nil {
			return err
		}

		audit, auditErr := e.archive.LoadAudit(ctx, runID)
		if auditErr != nil {
			e.logger.Warn("run finished but audit unavailable for learning", "run", runID, "err", auditErr)
			return nil
		}
		e.evolution.Record(result, audit)
		return nil
	})

	return result, err
}

// Start is a convenience wrapper: Create followed by Run.
func (e *Engine) Start(ctx context.Context, request string, data map[string]any) (domain.RunResult, error) {
	runID, err := e.Create(ctx, request, data)
	if err != nil {
		return domain.RunResult{}, err
	}
	return e.Run(ctx, runID)
}

// Status describes where a run currently is.
type Status struct {
	RunID       string         `json:"run_id"`
	Finished    bool           `json:"finished"`
	CurrentNode string         `json:"current_node"`
	Stage       string         `json:"stage,omitempty"`
	TotalSteps  int            `json:"total_steps"`
	Outcome     domain.Outcome `json:"outcome,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// Status reports the current position of a run, finished or not.
func (e *Engine) Status(ctx context.Context, runID string) (Status, error) {
	if result, err := e.archive.LoadResult(ctx, runID); err == nil {
		return Status{
			RunID:       runID,
			Finished:    true,
			CurrentNode: result.FinalNode,
			TotalSteps:  result.TotalSteps,
			Outcome:     result.Outcome,
			Reason:      result.Reason,
		}, nil
	}

	state, err := e.runs.Load(ctx, runID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		RunID:       runID,
		CurrentNode: state.CurrentNode,
		Stage:       state.Stage,
		TotalSteps:  state.Counters.TotalSteps,
	}, nil
}

// Result returns the archived result of a finished run.
func (e *Engine) Result(ctx context.Context, runID string) (domain.RunResult, error) {
	return e.archive.LoadResult(ctx, runID)
}

// Audit returns the ordered audit trail of a run.
func (e *Engine) Audit(ctx context.Context, runID string) ([]domain.AuditEvent, error) {
	return e.archive.LoadAudit(ctx, runID)
}

// Runs lists known run IDs.
func (e *Engine) Runs(ctx context.Context) ([]string, error) {
	return e.runs.List(ctx)
}

// Learn analyzes the recorded batch of runs and produces a proposal.
// Returns (nil, nil) when not enough runs have accumulated.
func (e *Engine) Learn(ctx context.Context) (*domain.Proposal, error) {
	return e.evolution.Learn(ctx)
}

// PendingRuns reports how many finished runs await the next Learn pass.
func (e *Engine) PendingRuns() int {
	return e.evolution.PendingRuns()
}

// Proposals lists all learning proposals.
func (e *Engine) Proposals(ctx context.Context) ([]domain.Proposal, error) {
	return e.evolution.List(ctx)
}

// Approve applies a pending proposal, including its gated changes, and
// swaps the new graph version in.
func (e *Engine) Approve(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	return e.evolution.Approve(ctx, proposalID)
}

// Reject marks a proposal rejected. Rejected proposals are never applied.
func (e *Engine) Reject(ctx context.Context, proposalID string) error {
	return e.evolution.Reject(ctx, proposalID)
}

// Dredge queries the sediment store.
func (e *Engine) Dredge(filter domain.FactFilter) []domain.Fact {
	return e.sediment.Dredge(filter)
}

// WriteFact records a fact into sediment with the given conflict policy.
func (e *Engine) WriteFact(ctx context.Context, fact domain.Fact, policy string) (domain.Fact, error) {
	return e.sediment.Write(ctx, fact, policy)
}

// Sediment exposes the underlying sediment store for inspection.
func (e *Engine) Sediment() *sediment.Store {
	return e.sediment
}
