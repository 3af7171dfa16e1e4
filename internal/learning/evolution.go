package learning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/riverbedai/riverbed/internal/logging"
	"github.com/riverbedai/riverbed/internal/sediment"
	"github.com/riverbedai/riverbed/pkg/domain"
	"github.com/riverbedai/riverbed/pkg/observability"
	"github.com/riverbedai/riverbed/pkg/ports"
)

const (
	defaultMinRuns       = 3
	defaultMinConfidence = 0.3
)

// Evolution orchestrates the learning loop: it accumulates finished runs,
// analyzes them in batches, persists the resulting proposal and
// auto-applies the low-risk subset as a new graph version.
type Evolution struct {
	registry  *Registry
	proposals ports.ProposalStore
	sediment  *sediment.Store
	logger    *slog.Logger
	metrics   *observability.Metrics

	minRuns       int
	minConfidence float64

	mu      sync.Mutex
	pending []RunRecord
}

// EvolutionOption configures the evolution loop.
type EvolutionOption func(*Evolution)

// WithMinRuns sets how many recorded runs a batch needs before analysis.
func WithMinRuns(n int) EvolutionOption { return func(e *Evolution) { e.minRuns = n } }

// WithMinConfidence sets the proposal confidence floor for auto-apply.
func WithMinConfidence(c float64) EvolutionOption { return func(e *Evolution) { e.minConfidence = c } }

// WithEvolutionLogger sets the logger.
func WithEvolutionLogger(l *slog.Logger) EvolutionOption { return func(e *Evolution) { e.logger = l } }

// WithEvolutionMetrics attaches Prometheus collectors.
func WithEvolutionMetrics(m *observability.Metrics) EvolutionOption {
	return func(e *Evolution) { e.metrics = m }
}

// NewEvolution creates the learning loop over a registry and stores.
func NewEvolution(registry *Registry, proposals ports.ProposalStore, sed *sediment.Store, opts ...EvolutionOption) *Evolution {
	e := &Evolution{
		registry:      registry,
		proposals:     proposals,
		sediment:      sed,
		logger:        logging.NewNop(),
		minRuns:       defaultMinRuns,
		minConfidence: defaultMinConfidence,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Record queues one finished run for the next analysis batch.
func (e *Evolution) Record(result domain.RunResult, audit []domain.AuditEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, RunRecord{Result: result, Audit: audit})
}

// PendingRuns reports how many runs await analysis.
func (e *Evolution) PendingRuns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Learn analyzes the queued batch, stores a proposal and auto-applies its
// eligible changes when confidence clears the floor. It returns nil when
// the batch is too small or nothing actionable was found.
func (e *Evolution) Learn(ctx context.Context) (*domain.Proposal, error) {
	e.mu.Lock()
	if len(e.pending) < e.minRuns {
		have := len(e.pending)
		e.mu.Unlock()
		e.logger.Debug("not enough runs to learn from", "have", have, "need", e.minRuns)
		return nil, nil
	}
	batch := e.pending
	e.pending = nil
	e.mu.Unlock()

	analysis := Analyze(batch)
	runIDs := make([]string, len(batch))
	for i, rec := range batch {
		runIDs[i] = rec.Result.RunID
	}

	g := e.registry.Active()
	if g == nil {
		return nil, fmt.Errorf("no active graph to learn against")
	}

	proposal := Propose(g, analysis, runIDs)
	if proposal == nil {
		e.logger.Info("analysis surfaced nothing actionable", "runs", analysis.Runs)
		return nil, nil
	}

	if proposal.Confidence >= e.minConfidence {
		if err := e.autoApply(ctx, g, proposal); err != nil {
			e.logger.Warn("auto-apply failed, proposal kept pending", "proposal_id", proposal.ID, "error", err)
		}
	} else {
		e.logger.Info("confidence below auto-apply floor",
			"proposal_id", proposal.ID, "confidence", proposal.Confidence, "floor", e.minConfidence)
	}

	if err := e.proposals.Append(ctx, *proposal); err != nil {
		return nil, fmt.Errorf("storing proposal: %w", err)
	}
	if e.metrics != nil {
		e.metrics.Proposals.WithLabelValues(proposal.Status).Inc()
	}

	e.writeLesson(ctx, proposal, analysis)
	e.logger.Info("learning pass complete",
		"proposal_id", proposal.ID, "changes", len(proposal.Changes),
		"status", proposal.Status, "confidence", proposal.Confidence)
	return proposal, nil
}

// autoApply installs the auto-applicable subset of a proposal as a new
// graph version. Approval-gated changes stay pending on the proposal.
func (e *Evolution) autoApply(ctx context.Context, g *domain.Graph, proposal *domain.Proposal) error {
	var autoIdx []int
	for i, c := range proposal.Changes {
		if c.AutoApply {
			autoIdx = append(autoIdx, i)
		}
	}
	if len(autoIdx) == 0 {
		return nil
	}

	auto := make([]domain.Change, len(autoIdx))
	for i, idx := range autoIdx {
		auto[i] = proposal.Changes[idx]
	}

	next, err := Apply(g, auto)
	if err != nil {
		return err
	}
	if err := e.registry.Swap(ctx, next); err != nil {
		return err
	}

	for i, idx := range autoIdx {
		proposal.Changes[idx] = auto[i]
	}
	if len(autoIdx) == len(proposal.Changes) {
		proposal.Status = domain.ProposalApplied
	}
	return nil
}

// Approve applies every remaining applicable change of a pending proposal,
// including the approval-gated ones, and installs the result. Advisory
// changes (prompt reviews, bottleneck flags) carry no new value; approval
// acknowledges them without touching the graph.
func (e *Evolution) Approve(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	proposal, err := e.find(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Status == domain.ProposalRejected {
		return nil, fmt.Errorf("proposal %s was rejected", proposalID)
	}

	var remaining []domain.Change
	var remainingIdx []int
	for i, c := range proposal.Changes {
		if !c.Applied && !c.Advisory() {
			remaining = append(remaining, c)
			remainingIdx = append(remainingIdx, i)
		}
	}

	if len(remaining) > 0 {
		g := e.registry.Active()
		next, err := Apply(g, remaining)
		if err != nil {
			return nil, err
		}
		if err := e.registry.Swap(ctx, next); err != nil {
			return nil, err
		}
		for i, idx := range remainingIdx {
			proposal.Changes[idx] = remaining[i]
		}
	}

	proposal.Status = domain.ProposalApplied
	if err := e.proposals.Update(ctx, *proposal); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.Proposals.WithLabelValues(domain.ProposalApproved).Inc()
	}
	e.logger.Info("proposal approved and applied", "proposal_id", proposalID)
	return proposal, nil
}

// Reject marks a proposal rejected. Already auto-applied changes stay in
// the active graph; rejection only blocks the gated remainder.
func (e *Evolution) Reject(ctx context.Context, proposalID string) error {
	proposal, err := e.find(ctx, proposalID)
	if err != nil {
		return err
	}
	proposal.Status = domain.ProposalRejected
	if err := e.proposals.Update(ctx, *proposal); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.Proposals.WithLabelValues(domain.ProposalRejected).Inc()
	}
	e.logger.Info("proposal rejected", "proposal_id", proposalID)
	return nil
}

// List returns all stored proposals.
func (e *Evolution) List(ctx context.Context) ([]domain.Proposal, error) {
	return e.proposals.List(ctx)
}

func (e *Evolution) find(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	list, err := e.proposals.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == proposalID {
			return &list[i], nil
		}
	}
	return nil, domain.ErrProposalNotFound
}

// writeLesson records what the learning pass concluded as a sediment fact.
func (e *Evolution) writeLesson(ctx context.Context, proposal *domain.Proposal, analysis *Analysis) {
	if e.sediment == nil {
		return
	}
	text := fmt.Sprintf("after %d runs (%.0f%% success): %s",
		analysis.Runs, analysis.SuccessRate()*100, proposal.Summary)
	if _, err := e.sediment.WriteLesson(ctx, text, proposal.Confidence, domain.Provenance{Source: "learning"}); err != nil {
		e.logger.Warn("writing lesson failed", "error", err)
	}
}
