/*
Package sediment implements the sediment store: the append-only accumulation
of facts across runs. Facts are never rewritten in place; corrections
create new superseding facts, and contradictory triplets are flagged for
review while both records remain queryable.
*/
package sediment

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riverbedai/riverbed/pkg/domain"
	"github.com/riverbedai/riverbed/pkg/ports"
)

// Conflict policies accepted by Write.
const (
	ConflictPolicyFlag      = "flag"
	ConflictPolicySupersede = "supersede"
)

// Stats summarizes the current sediment contents.
type Stats struct {
	Total      int            `json:"total"`
	ByKind     map[string]int `json:"by_kind"`
	Conflicted int            `json:"conflicted"`
	Superseded int            `json:"superseded"`
}

// Store is the in-process view over an append-only fact log. It keeps
// an index for conflict detection and ranked queries; the log remains the
// source of truth.
type Store struct {
	mu         sync.RWMutex
	log        ports.FactLog
	facts      []domain.Fact
	superseded map[string]bool
	logger     *slog.Logger
}

// New builds a sediment store over the given log, replaying its contents.
func New(ctx context.Context, log ports.FactLog, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	existing, err := log.All(ctx)
	if err != nil {
		return nil, err
	}
	s := &Store{
		log:        log,
		facts:      existing,
		superseded: make(map[string]bool),
		logger:     logger,
	}
	for _, f := range existing {
		if f.Supersedes != "" {
			s.superseded[f.Supersedes] = true
		}
	}
	return s, nil
}

// Write appends a fact. When the fact carries a triplet that contradicts a
// live fact (same subject and predicate, different object), the policy
// decides the outcome: "flag" marks the new fact conflicted and keeps both
// queryable; "supersede" records the new fact as a correction of the old.
func (s *Store) Write(ctx context.Context, fact domain.Fact, policy string) (domain.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.Kind == "" {
		fact.Kind = domain.FactKindFact
	}
	if fact.Provenance.Timestamp.IsZero() {
		fact.Provenance.Timestamp = time.Now().UTC()
	}
	if policy == "" {
		policy = ConflictPolicyFlag
	}

	if fact.Triplet != nil {
		if prior := s.findConflict(fact.Triplet); prior != nil {
			switch policy {
			case ConflictPolicySupersede:
				fact.Supersedes = prior.ID
				s.logger.Info("fact superseded",
					"old_id", prior.ID, "new_id", fact.ID,
					"subject", fact.Triplet.Subject, "predicate", fact.Triplet.Predicate)
			default:
				fact.Conflicted = true
				s.logger.Warn("fact conflict flagged",
					"prior_id", prior.ID, "new_id", fact.ID,
					"subject", fact.Triplet.Subject, "predicate", fact.Triplet.Predicate,
					"prior_object", prior.Triplet.Object, "new_object", fact.Triplet.Object)
			}
		}
	}

	if err := s.log.Append(ctx, []domain.Fact{fact}); err != nil {
		return domain.Fact{}, err
	}
	s.facts = append(s.facts, fact)
	if fact.Supersedes != "" {
		s.superseded[fact.Supersedes] = true
	}
	return fact, nil
}

// WriteLesson records a learning-loop lesson as a sediment fact.
func (s *Store) WriteLesson(ctx context.Context, text string, confidence float64, prov domain.Provenance) (domain.Fact, error) {
	return s.Write(ctx, domain.Fact{
		Text:       text,
		Confidence: confidence,
		Kind:       domain.FactKindLesson,
		Provenance: prov,
	}, ConflictPolicyFlag)
}

// Dredge returns live facts matching the filter, ranked by confidence
// (descending) and then recency. Superseded facts are excluded; conflicted
// facts are not.
func (s *Store) Dredge(filter domain.FactFilter) []domain.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Fact
	for _, f := range s.facts {
		if s.superseded[f.ID] {
			continue
		}
		if f.Confidence < filter.MinConfidence {
			continue
		}
		if !matchesFilter(f, filter) {
			continue
		}
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Provenance.Timestamp.After(out[j].Provenance.Timestamp)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// All returns every fact ever written, in append order. Used by audits
// and the learning analyzer.
func (s *Store) All() []domain.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Fact, len(s.facts))
	copy(out, s.facts)
	return out
}

// Conflicted returns the facts currently flagged for review.
func (s *Store) Conflicted() []domain.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Fact
	for _, f := range s.facts {
		if f.Conflicted && !s.superseded[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// Stats reports sediment totals.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{ByKind: make(map[string]int)}
	for _, f := range s.facts {
		st.Total++
		st.ByKind[f.Kind]++
		if f.Conflicted {
			st.Conflicted++
		}
		if s.superseded[f.ID] {
			st.Superseded++
		}
	}
	return st
}

// findConflict looks for a live fact whose triplet shares subject and
// predicate with t but asserts a different object. Callers hold s.mu.
func (s *Store) findConflict(t *domain.Triplet) *domain.Fact {
	for i := len(s.facts) - 1; i >= 0; i-- {
		f := &s.facts[i]
		if f.Triplet == nil || s.superseded[f.ID] {
			continue
		}
		if f.Triplet.Subject == t.Subject && f.Triplet.Predicate == t.Predicate && f.Triplet.Object != t.Object {
			return f
		}
	}
	return nil
}

func matchesFilter(f domain.Fact, filter domain.FactFilter) bool {
	if filter.Text != "" && !strings.Contains(strings.ToLower(f.Text), strings.ToLower(filter.Text)) {
		return false
	}
	if len(filter.Kinds) > 0 && !containsString(filter.Kinds, f.Kind) {
		return false
	}
	if len(filter.Subjects) > 0 {
		if f.Triplet == nil || !containsString(filter.Subjects, f.Triplet.Subject) {
			return false
		}
	}
	if len(filter.Predicates) > 0 {
		if f.Triplet == nil || !containsString(filter.Predicates, f.Triplet.Predicate) {
			return false
		}
	}
	if len(filter.Tags) > 0 {
		found := false
		for _, want := range filter.Tags {
			if containsString(f.Tags, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
