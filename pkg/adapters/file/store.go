package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/riverbedai/riverbed/pkg/domain"
)

// Store implements ports.RunStore over one JSON file per run.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a run store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) runPath(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// Save persists the state as pretty-printed JSON.
func (s *Store) Save(ctx context.Context, runID string, state *domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	return writeAtomic(s.runPath(runID), raw)
}

// Load reads a run's state.
func (s *Store) Load(ctx context.Context, runID string) (*domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.runPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}
	var state domain.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decoding state for %s: %w", runID, err)
	}
	return &state, nil
}

// Delete removes a run's state file.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.runPath(runID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// List returns run IDs found on disk, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// FactLog implements ports.FactLog as an append-only JSONL file.
type FactLog struct {
	path string
	mu   sync.Mutex
}

// NewFactLog creates a fact log at path, creating parent directories.
func NewFactLog(path string) (*FactLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &FactLog{path: path}, nil
}

// Append writes facts as JSON lines. Entries are never rewritten.
func (l *FactLog) Append(ctx context.Context, facts []domain.Fact) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, fact := range facts {
		if err := enc.Encode(fact); err != nil {
			return fmt.Errorf("encoding fact %s: %w", fact.ID, err)
		}
	}
	return w.Flush()
}

// All reads every fact in append order.
func (l *FactLog) All(ctx context.Context) ([]domain.Fact, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var facts []domain.Fact
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var fact domain.Fact
		if err := json.Unmarshal([]byte(line), &fact); err != nil {
			return nil, fmt.Errorf("corrupt fact log line: %w", err)
		}
		facts = append(facts, fact)
	}
	return facts, scanner.Err()
}

// Archive implements ports.RunArchive: one result JSON per run plus an
// append-only JSONL audit trail.
type Archive struct {
	dir string
	mu  sync.Mutex
}

// NewArchive creates an archive rooted at dir.
func NewArchive(dir string) (*Archive, error) {
	for _, sub := range []string{"results", "audit"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, err
		}
	}
	return &Archive{dir: dir}, nil
}

// SaveResult writes the run's final result.
func (a *Archive) SaveResult(ctx context.Context, result domain.RunResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(a.dir, "results", result.RunID+".json"), raw)
}

// AppendAudit appends events to the run's audit file.
func (a *Archive) AppendAudit(ctx context.Context, runID string, events []domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(a.dir, "audit", runID+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return w.Flush()
}

// LoadAudit reads the run's audit trail in sequence order.
func (a *Archive) LoadAudit(ctx context.Context, runID string) ([]domain.AuditEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(filepath.Join(a.dir, "audit", runID+".jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []domain.AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev domain.AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("corrupt audit line for %s: %w", runID, err)
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Sequence < events[j].Sequence })
	return events, scanner.Err()
}

// LoadResult reads the run's final result.
func (a *Archive) LoadResult(ctx context.Context, runID string) (domain.RunResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(a.dir, "results", runID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.RunResult{}, domain.ErrRunNotFound
		}
		return domain.RunResult{}, err
	}
	var result domain.RunResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.RunResult{}, err
	}
	return result, nil
}

// ProposalStore implements ports.ProposalStore as one JSON document.
// Proposals are few; rewriting the whole file on update keeps it simple.
type ProposalStore struct {
	path string
	mu   sync.Mutex
}

// NewProposalStore creates a proposal store at path.
func NewProposalStore(path string) (*ProposalStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &ProposalStore{path: path}, nil
}

func (p *ProposalStore) load() ([]domain.Proposal, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var list []domain.Proposal
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decoding proposals: %w", err)
	}
	return list, nil
}

func (p *ProposalStore) save(list []domain.Proposal) error {
	raw, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(p.path, raw)
}

// Append stores a new proposal.
func (p *ProposalStore) Append(ctx context.Context, proposal domain.Proposal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	list, err := p.load()
	if err != nil {
		return err
	}
	return p.save(append(list, proposal))
}

// List returns all proposals in creation order.
func (p *ProposalStore) List(ctx context.Context) ([]domain.Proposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

// Update replaces a stored proposal by ID.
func (p *ProposalStore) Update(ctx context.Context, proposal domain.Proposal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	list, err := p.load()
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == proposal.ID {
			list[i] = proposal
			return p.save(list)
		}
	}
	return domain.ErrProposalNotFound
}
