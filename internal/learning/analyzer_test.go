package learning

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverbedai/riverbed/pkg/domain"
)

// record builds a run that executed the given nodes and took the given
// edges, with every transition offering the same candidate set.
func record(runID string, outcome domain.Outcome, nodes []string, edges []string, candidates []any) RunRecord {
	var audit []domain.AuditEvent
	seq := 0
	next := func() int { seq++; return seq }
	for _, n := range nodes {
		audit = append(audit, domain.AuditEvent{Sequence: next(), NodeID: n, Action: domain.AuditExecuted})
	}
	for _, e := range edges {
		audit = append(audit, domain.AuditEvent{
			Sequence: next(), Action: domain.AuditTransition,
			Signals: map[string]any{"edge_id": e, "candidates": candidates},
		})
	}
	return RunRecord{
		Result: domain.RunResult{RunID: runID, Outcome: outcome},
		Audit:  audit,
	}
}

func TestAnalyzeCountsOutcomes(t *testing.T) {
	records := []RunRecord{
		record("r1", domain.OutcomeSuccess, []string{"a"}, nil, nil),
		record("r2", domain.OutcomeFailure, []string{"a"}, nil, nil),
		record("r3", domain.OutcomeEscalated, []string{"a"}, nil, nil),
	}
	a := Analyze(records)
	assert.Equal(t, 3, a.Runs)
	assert.Equal(t, 1, a.Successes)
	assert.Equal(t, 1, a.Failures)
	assert.Equal(t, 1, a.Escalated)
	assert.Equal(t, 3, a.NodeVisits["a"])
}

func TestAnalyzeEdgeStats(t *testing.T) {
	candidates := []any{"fast", "slow"}
	var records []RunRecord
	// "slow" is taken once out of ten evaluations and that run succeeds.
	for i := 0; i < 9; i++ {
		records = append(records, record(fmt.Sprintf("r%d", i), domain.OutcomeSuccess,
			[]string{"route"}, []string{"fast"}, candidates))
	}
	records = append(records, record("r9", domain.OutcomeSuccess,
		[]string{"route"}, []string{"slow"}, candidates))

	a := Analyze(records)
	slow := a.EdgeStats["slow"]
	require.NotNil(t, slow)
	assert.Equal(t, 1, slow.Taken)
	assert.Equal(t, 10, slow.Considered)
	assert.InDelta(t, 0.1, slow.TakenRatio(), 0.001)
	assert.InDelta(t, 1.0, slow.SuccessRate(), 0.001)

	fast := a.EdgeStats["fast"]
	assert.Equal(t, 9, fast.Taken)
	assert.Equal(t, 10, fast.Considered)
}

func TestAnalyzeFailurePoints(t *testing.T) {
	rec := RunRecord{
		Result: domain.RunResult{RunID: "r1", Outcome: domain.OutcomeFailure},
		Audit: []domain.AuditEvent{
			{Sequence: 1, NodeID: "fetch", Action: domain.AuditError},
			{Sequence: 2, NodeID: "fetch", Action: domain.AuditForcedFailure},
		},
	}
	a := Analyze([]RunRecord{rec})
	assert.Equal(t, 2, a.FailurePoints["fetch"])
}

func TestAnalyzeBottlenecks(t *testing.T) {
	rec := RunRecord{Result: domain.RunResult{RunID: "r1", Outcome: domain.OutcomeSuccess}}
	// "hot" visited 12 times, three others once each: avg 3.75, 2x = 7.5.
	for i := 0; i < 12; i++ {
		rec.Audit = append(rec.Audit, domain.AuditEvent{NodeID: "hot", Action: domain.AuditExecuted})
	}
	for _, n := range []string{"a", "b", "c"} {
		rec.Audit = append(rec.Audit, domain.AuditEvent{NodeID: n, Action: domain.AuditExecuted})
	}
	a := Analyze([]RunRecord{rec})
	assert.Equal(t, []string{"hot"}, a.Bottlenecks)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	records := []RunRecord{
		record("r1", domain.OutcomeSuccess, []string{"a", "b"}, []string{"e1"}, []any{"e1", "e2"}),
		record("r2", domain.OutcomeFailure, []string{"a"}, []string{"e2"}, []any{"e1", "e2"}),
	}
	first := Analyze(records)
	second := Analyze(records)
	assert.Equal(t, first.NodeVisits, second.NodeVisits)
	assert.Equal(t, first.Bottlenecks, second.Bottlenecks)
	require.Equal(t, len(first.EdgeStats), len(second.EdgeStats))
	for id, s := range first.EdgeStats {
		assert.Equal(t, *s, *second.EdgeStats[id])
	}
}
