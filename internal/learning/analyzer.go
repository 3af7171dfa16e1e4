/*
Package learning implements the analyze, propose, apply loop that mutates
the routing graph between runs.

Analysis is pure: it reads only archived run results and audit trails.
Proposal generation classifies each suggested change as auto-applicable
(edge priorities, weights, retry bounds) or approval-gated (guards,
prompts, structure). Application clones the graph, mutates the clone,
revalidates it and atomically swaps the active version.
*/
package learning

import (
	"sort"

	"github.com/riverbedai/riverbed/pkg/domain"
)

// RunRecord pairs one finished run's result with its audit trail.
type RunRecord struct {
	Result domain.RunResult
	Audit  []domain.AuditEvent
}

// EdgeStat accumulates routing observations for one edge.
type EdgeStat struct {
	EdgeID string
	// Taken counts transitions over this edge.
	Taken int
	// Considered counts routing evaluations where this edge was a
	// guard-true candidate, taken or not.
	Considered int
	// Successes and Failures attribute run outcomes to the edges the run
	// traversed.
	Successes int
	Failures  int
	// Retries counts retry traversals of this edge.
	Retries int
}

// TakenRatio is Taken over Considered.
func (s *EdgeStat) TakenRatio() float64 {
	if s.Considered == 0 {
		return 0
	}
	return float64(s.Taken) / float64(s.Considered)
}

// SuccessRate is Successes over attributed outcomes.
func (s *EdgeStat) SuccessRate() float64 {
	total := s.Successes + s.Failures
	if total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(total)
}

// Analysis summarizes behavior across a batch of runs.
type Analysis struct {
	Runs      int
	Successes int
	Failures  int
	Escalated int

	NodeVisits map[string]int
	// FailurePoints counts error and forced-failure events per node.
	FailurePoints map[string]int
	// Bottlenecks lists nodes visited more than twice the per-node average.
	Bottlenecks []string
	EdgeStats   map[string]*EdgeStat
}

// SuccessRate is the fraction of analyzed runs that succeeded.
func (a *Analysis) SuccessRate() float64 {
	if a.Runs == 0 {
		return 0
	}
	return float64(a.Successes) / float64(a.Runs)
}

// Analyze builds an Analysis from recorded runs. It reads nothing but the
// records, so analyzing the same batch twice yields the same result.
func Analyze(records []RunRecord) *Analysis {
	a := &Analysis{
		NodeVisits:    make(map[string]int),
		FailurePoints: make(map[string]int),
		EdgeStats:     make(map[string]*EdgeStat),
	}

	for _, rec := range records {
		a.Runs++
		switch rec.Result.Outcome {
		case domain.OutcomeSuccess:
			a.Successes++
		case domain.OutcomeEscalated:
			a.Escalated++
		default:
			a.Failures++
		}

		succeeded := rec.Result.Outcome == domain.OutcomeSuccess
		traversed := make(map[string]bool)

		for _, ev := range rec.Audit {
			switch ev.Action {
			case domain.AuditExecuted:
				a.NodeVisits[ev.NodeID]++
			case domain.AuditError, domain.AuditForcedFailure:
				a.FailurePoints[ev.NodeID]++
			case domain.AuditTransition, domain.AuditRetry:
				edgeID, _ := ev.Signals["edge_id"].(string)
				if edgeID == "" {
					continue
				}
				stat := a.edgeStat(edgeID)
				stat.Taken++
				traversed[edgeID] = true
				if ev.Action == domain.AuditRetry {
					stat.Retries++
				}
				if candidates, ok := ev.Signals["candidates"].([]any); ok {
					for _, c := range candidates {
						if id, ok := c.(string); ok {
							a.edgeStat(id).Considered++
						}
					}
				} else {
					stat.Considered++
				}
			}
		}

		for edgeID := range traversed {
			if succeeded {
				a.EdgeStats[edgeID].Successes++
			} else {
				a.EdgeStats[edgeID].Failures++
			}
		}
	}

	a.Bottlenecks = bottlenecks(a.NodeVisits)
	return a
}

func (a *Analysis) edgeStat(id string) *EdgeStat {
	if s, ok := a.EdgeStats[id]; ok {
		return s
	}
	s := &EdgeStat{EdgeID: id}
	a.EdgeStats[id] = s
	return s
}

// bottlenecks returns nodes visited more than twice the average visit
// count, sorted descending by visits.
func bottlenecks(visits map[string]int) []string {
	if len(visits) == 0 {
		return nil
	}
	total := 0
	for _, v := range visits {
		total += v
	}
	avg := float64(total) / float64(len(visits))

	var out []string
	for id, v := range visits {
		if float64(v) > 2*avg {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if visits[out[i]] != visits[out[j]] {
			return visits[out[i]] > visits[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
