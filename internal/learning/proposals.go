package learning

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/riverbedai/riverbed/pkg/domain"
)

// Tuning thresholds for proposal generation.
const (
	// minEdgeObservations is how often an edge must appear as a candidate
	// before its statistics are trusted.
	minEdgeObservations = 5
	// promoteSuccessRate is the success rate above which an underused edge
	// gets its priority raised.
	promoteSuccessRate = 0.7
	// promoteTakenRatio is the taken ratio below which an edge counts as
	// underused.
	promoteTakenRatio = 0.3
	// demoteSuccessRate is the success rate below which a dominant edge
	// gets its priority lowered.
	demoteSuccessRate = 0.3
	// retryHeavyCount is the retry count per edge above which the bound is
	// worth revisiting.
	retryHeavyCount = 3
	// failureHotspotCount marks a node as a failure point worth a prompt
	// review.
	failureHotspotCount = 3
)

// Propose turns an analysis into a proposal against the given graph
// version. Changes to priorities, weights and retry bounds are flagged
// auto-apply; guard, prompt and structural edits require approval.
// A nil return means the analysis surfaced nothing actionable.
func Propose(g *domain.Graph, a *Analysis, basedOn []string) *domain.Proposal {
	var changes []domain.Change

	for _, edge := range sortedEdges(g) {
		stat, ok := a.EdgeStats[edge.ID]
		if !ok || stat.Considered < minEdgeObservations {
			continue
		}

		// An edge that rarely wins routing but succeeds when it does
		// deserves a better priority.
		if stat.SuccessRate() > promoteSuccessRate && stat.TakenRatio() < promoteTakenRatio && edge.Priority > 1 {
			changes = append(changes, domain.Change{
				ID:       uuid.NewString(),
				Type:     domain.ChangeEdgePriority,
				Target:   edge.ID,
				OldValue: edge.Priority,
				NewValue: edge.Priority - 1,
				Rationale: fmt.Sprintf("edge taken in %.0f%% of %d candidate evaluations with %.0f%% run success; raising priority",
					stat.TakenRatio()*100, stat.Considered, stat.SuccessRate()*100),
				AutoApply: true,
			})
		}

		// A frequently taken edge on failing runs gets demoted.
		if stat.SuccessRate() < demoteSuccessRate && stat.Taken >= minEdgeObservations && stat.TakenRatio() > 0.5 {
			changes = append(changes, domain.Change{
				ID:       uuid.NewString(),
				Type:     domain.ChangeEdgePriority,
				Target:   edge.ID,
				OldValue: edge.Priority,
				NewValue: edge.Priority + 1,
				Rationale: fmt.Sprintf("edge dominates routing (%.0f%% taken) with %.0f%% run success; lowering priority",
					stat.TakenRatio()*100, stat.SuccessRate()*100),
				AutoApply: true,
			})
		}

		// Nudge the learning weight toward the observed success rate.
		if stat.Successes+stat.Failures >= minEdgeObservations {
			newWeight := clampWeight(1 + (stat.SuccessRate()-0.5))
			if differs(edge.Weight, newWeight) {
				changes = append(changes, domain.Change{
					ID:        uuid.NewString(),
					Type:      domain.ChangeEdgeWeight,
					Target:    edge.ID,
					OldValue:  edge.Weight,
					NewValue:  newWeight,
					Rationale: fmt.Sprintf("aligning weight with %.0f%% observed success", stat.SuccessRate()*100),
					AutoApply: true,
				})
			}
		}

		// A retry edge hitting its bound often may need more headroom.
		if edge.Kind == domain.EdgeRetry && stat.Retries >= retryHeavyCount*a.Runs && a.Runs > 0 {
			changes = append(changes, domain.Change{
				ID:        uuid.NewString(),
				Type:      domain.ChangeMaxRetries,
				Target:    edge.ID,
				OldValue:  edge.MaxRetries,
				NewValue:  edge.MaxRetries + 1,
				Rationale: fmt.Sprintf("retry edge exhausted %d times across %d runs", stat.Retries, a.Runs),
				AutoApply: true,
			})
		}
	}

	// Failure hotspots: suggest a prompt review. Semantic, so gated.
	for _, nodeID := range sortedKeys(a.FailurePoints) {
		count := a.FailurePoints[nodeID]
		if count < failureHotspotCount {
			continue
		}
		node := g.NodeByID(nodeID)
		if node == nil || node.Prompt == "" {
			continue
		}
		changes = append(changes, domain.Change{
			ID:       uuid.NewString(),
			Type:     domain.ChangePrompt,
			Target:   nodeID,
			OldValue: node.Prompt,
			Rationale: fmt.Sprintf("node failed %d times across %d runs; prompt likely needs clarification",
				count, a.Runs),
			AutoApply: false,
		})
	}

	// Bottlenecks: flag for structural review.
	for _, nodeID := range a.Bottlenecks {
		changes = append(changes, domain.Change{
			ID:     uuid.NewString(),
			Type:   domain.ChangeAddEdge,
			Target: nodeID,
			Rationale: fmt.Sprintf("node visited %d times, more than twice the average; consider a bypass edge",
				a.NodeVisits[nodeID]),
			AutoApply: false,
		})
	}

	if len(changes) == 0 {
		return nil
	}

	auto := 0
	for _, c := range changes {
		if c.AutoApply {
			auto++
		}
	}
	return &domain.Proposal{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		BasedOn:    basedOn,
		Changes:    changes,
		Summary:    fmt.Sprintf("%d changes from %d runs (%d auto-applicable)", len(changes), a.Runs, auto),
		Confidence: confidence(a),
		Status:     domain.ProposalPending,
	}
}

// confidence grows with batch size and run success consistency.
func confidence(a *Analysis) float64 {
	if a.Runs == 0 {
		return 0
	}
	volume := float64(a.Runs) / 10
	if volume > 1 {
		volume = 1
	}
	rate := a.SuccessRate()
	consistency := rate
	if rate < 0.5 {
		consistency = 1 - rate
	}
	return volume * consistency
}

func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 2 {
		return 2
	}
	return w
}

func differs(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d > 0.05
}

func sortedEdges(g *domain.Graph) []*domain.Edge {
	out := make([]*domain.Edge, len(g.Edges))
	for i := range g.Edges {
		out[i] = &g.Edges[i]
	}
	return out
}

// sortedKeys keeps proposal ordering deterministic across map iterations.
func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
