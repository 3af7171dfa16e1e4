package learning

import (
	"context"
	"log/slog"
	"sync"

	"github.com/riverbedai/riverbed/internal/logging"
	"github.com/riverbedai/riverbed/internal/validator"
	"github.com/riverbedai/riverbed/pkg/domain"
	"github.com/riverbedai/riverbed/pkg/ports"
)

// Registry holds the active graph version. Runs pin the version that was
// active when they started; a swap only affects runs started afterwards.
type Registry struct {
	mu     sync.RWMutex
	active *domain.Graph
	source ports.GraphSource
	logger *slog.Logger
}

// NewRegistry creates a registry backed by a graph source.
func NewRegistry(source ports.GraphSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{source: source, logger: logger}
}

// Load reads the graph from the source, validates it and makes it active.
func (r *Registry) Load(ctx context.Context) error {
	g, err := r.source.Load(ctx)
	if err != nil {
		return err
	}
	if err := validator.Validate(g); err != nil {
		return err
	}
	r.mu.Lock()
	r.active = g
	r.mu.Unlock()
	r.logger.Info("graph loaded", "graph", g.Name, "version", g.Version,
		"nodes", len(g.Nodes), "edges", len(g.Edges))
	return nil
}

// Active returns the current graph version. The returned graph is treated
// as immutable; mutation goes through Swap with a new version.
func (r *Registry) Active() *domain.Graph {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Swap validates, publishes and atomically installs a new graph version.
// The old version stays untouched for runs still executing against it.
func (r *Registry) Swap(ctx context.Context, g *domain.Graph) error {
	if err := validator.Validate(g); err != nil {
		return err
	}
	if err := r.source.Publish(ctx, g); err != nil {
		return err
	}
	r.mu.Lock()
	old := r.active
	r.active = g
	r.mu.Unlock()

	oldVersion := 0
	if old != nil {
		oldVersion = old.Version
	}
	r.logger.Info("graph version swapped", "graph", g.Name, "from", oldVersion, "to", g.Version)
	return nil
}
