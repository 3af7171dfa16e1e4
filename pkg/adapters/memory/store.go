// Package memory provides in-memory adapters for every persistence port.
// They are the default wiring for tests and single-process runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/riverbedai/riverbed/pkg/domain"
)

// Store implements ports.RunStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.State
	mu   sync.RWMutex
}

// NewStore creates a new in-memory run store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.State),
	}
}

// Save persists the state in memory.
func (s *Store) Save(ctx context.Context, runID string, state *domain.State) error {
	// Deep copy to ensure isolation, similar to serialization
	copied := state.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[runID] = copied
	return nil
}

// Load retrieves the state from memory.
func (s *Store) Load(ctx context.Context, runID string) (*domain.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}

	// Copy on read so the caller can't mutate store state by pointer
	return state.Clone(), nil
}

// Delete removes the state.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns the known run IDs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Archive implements ports.RunArchive in memory.
type Archive struct {
	mu      sync.RWMutex
	results map[string]domain.RunResult
	audits  map[string][]domain.AuditEvent
}

// NewArchive creates a new in-memory run archive.
func NewArchive() *Archive {
	return &Archive{
		results: make(map[string]domain.RunResult),
		audits:  make(map[string][]domain.AuditEvent),
	}
}

// SaveResult stores the final result of a run.
func (a *Archive) SaveResult(ctx context.Context, result domain.RunResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[result.RunID] = result
	return nil
}

// AppendAudit appends audit events for a run.
func (a *Archive) AppendAudit(ctx context.Context, runID string, events []domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audits[runID] = append(a.audits[runID], events...)
	return nil
}

// LoadAudit returns the audit trail for a run in sequence order.
func (a *Archive) LoadAudit(ctx context.Context, runID string) ([]domain.AuditEvent, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	events := a.audits[runID]
	out := make([]domain.AuditEvent, len(events))
	copy(out, events)
	return out, nil
}

// LoadResult returns the archived result for a run.
func (a *Archive) LoadResult(ctx context.Context, runID string) (domain.RunResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result, ok := a.results[runID]
	if !ok {
		return domain.RunResult{}, domain.ErrRunNotFound
	}
	return result, nil
}

// FactLog implements ports.FactLog in memory. Entries are append-only.
type FactLog struct {
	mu    sync.RWMutex
	facts []domain.Fact
}

// NewFactLog creates a new in-memory fact log.
func NewFactLog() *FactLog {
	return &FactLog{}
}

// Append adds facts to the log.
func (l *FactLog) Append(ctx context.Context, facts []domain.Fact) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.facts = append(l.facts, facts...)
	return nil
}

// All returns every fact in append order.
func (l *FactLog) All(ctx context.Context) ([]domain.Fact, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Fact, len(l.facts))
	copy(out, l.facts)
	return out, nil
}

// ProposalStore implements ports.ProposalStore in memory.
type ProposalStore struct {
	mu        sync.RWMutex
	proposals []domain.Proposal
}

// NewProposalStore creates a new in-memory proposal store.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{}
}

// Append stores a new proposal.
func (p *ProposalStore) Append(ctx context.Context, proposal domain.Proposal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proposals = append(p.proposals, proposal)
	return nil
}

// List returns all proposals in creation order.
func (p *ProposalStore) List(ctx context.Context) ([]domain.Proposal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Proposal, len(p.proposals))
	copy(out, p.proposals)
	return out, nil
}

// Update replaces a stored proposal by ID.
func (p *ProposalStore) Update(ctx context.Context, proposal domain.Proposal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.proposals {
		if p.proposals[i].ID == proposal.ID {
			p.proposals[i] = proposal
			return nil
		}
	}
	return domain.ErrProposalNotFound
}

// GraphSource implements ports.GraphSource over an in-memory graph value.
type GraphSource struct {
	mu    sync.RWMutex
	graph *domain.Graph
}

// NewGraphSource creates a graph source seeded with the given graph.
func NewGraphSource(g *domain.Graph) *GraphSource {
	return &GraphSource{graph: g}
}

// Load returns a copy of the current graph.
func (s *GraphSource) Load(ctx context.Context) (*domain.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil, domain.ErrGraphNotFound
	}
	return s.graph.Clone(), nil
}

// Publish replaces the stored graph.
func (s *GraphSource) Publish(ctx context.Context, g *domain.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = g.Clone()
	return nil
}
