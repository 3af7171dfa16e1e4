package ports

import (
	"context"

	"github.com/riverbedai/riverbed/pkg/domain"
)

// RunStore persists live run state. This enables durable execution and
// the operator status surface.
type RunStore interface {
	// Save persists the state for a given run ID.
	Save(ctx context.Context, runID string, state *domain.State) error

	// Load retrieves the state for a given run ID.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.State, error)

	// Delete removes the state for a given run ID.
	Delete(ctx context.Context, runID string) error

	// List returns the known run IDs.
	List(ctx context.Context) ([]string, error)
}

// RunArchive stores write-once, read-many run artifacts: the final result,
// the ordered audit trail, and the evolution log.
type RunArchive interface {
	SaveResult(ctx context.Context, result domain.RunResult) error
	AppendAudit(ctx context.Context, runID string, events []domain.AuditEvent) error
	LoadAudit(ctx context.Context, runID string) ([]domain.AuditEvent, error)
	LoadResult(ctx context.Context, runID string) (domain.RunResult, error)
}

// FactLog is the append-only persistence behind the sediment store.
// Implementations never rewrite existing entries.
type FactLog interface {
	Append(ctx context.Context, facts []domain.Fact) error
	All(ctx context.Context) ([]domain.Fact, error)
}

// ProposalStore persists learning proposals and their status transitions.
type ProposalStore interface {
	Append(ctx context.Context, p domain.Proposal) error
	List(ctx context.Context) ([]domain.Proposal, error)
	Update(ctx context.Context, p domain.Proposal) error
}

// GraphSource loads the declarative graph definition and publishes new
// versions produced by the evolution path.
type GraphSource interface {
	Load(ctx context.Context) (*domain.Graph, error)
	Publish(ctx context.Context, g *domain.Graph) error
}
