package runtime

import (
	"errors"

	"github.com/riverbedai/riverbed/pkg/domain"
)

// errNoRoute means no outgoing edge's guard held. The controller converts
// it into a forced transition to the failure terminal.
var errNoRoute = errors.New("no viable edge")

// routingKinds are the edge kinds the router considers for movement.
// Memory-pull and cross-run edges are data dependencies, not transitions.
var routingKinds = map[string]bool{
	domain.EdgeForward:   true,
	domain.EdgeRetry:     true,
	domain.EdgeDecompose: true,
	domain.EdgeDepends:   true,
}

// nextEdge resolves the single next transition from nodeID. It also
// returns the ids of every guard-true candidate considered; the learning
// loop reads them back out of the audit trail to compute taken ratios.
//
// Resolution order: ascending priority, declaration order on ties. Retry
// edges whose budget is exhausted are skipped; when only exhausted retry
// edges remain viable, ErrRetryBudgetExceeded forces the failure terminal.
func (e *Engine) nextEdge(g *domain.Graph, state *domain.State, nodeID string) (*domain.Edge, []string, error) {
	snapshot := state.Snapshot()

	var viable []*domain.Edge
	var candidates []string
	for _, edge := range g.Outgoing(nodeID) {
		if !routingKinds[edge.Kind] {
			continue
		}
		if !e.guards.Evaluate(edge.Guard, snapshot) {
			continue
		}
		if edge.Kind == domain.EdgeDepends && !dependsSatisfied(edge.Depends, state) {
			continue
		}
		if edge.Kind == domain.EdgeDecompose && !decomposeReady(edge.Decompose, state) {
			continue
		}
		viable = append(viable, edge)
		candidates = append(candidates, edge.ID)
	}

	if len(viable) == 0 {
		return nil, nil, errNoRoute
	}

	// A decision node has already chosen its target; honor it when an edge
	// to that target is among the candidates.
	if target, ok := state.Get("decision." + nodeID); ok {
		if targetID, ok := target.(string); ok {
			for _, edge := range viable {
				if edge.To == targetID {
					return edge, candidates, nil
				}
			}
		}
	}

	exhausted := false
	for _, edge := range viable {
		if edge.Kind == domain.EdgeRetry {
			if state.Counters.Retries(edge.ID) >= edge.MaxRetries {
				exhausted = true
				continue
			}
			if e.retryBudget > 0 && state.Counters.TotalRetries >= e.retryBudget {
				exhausted = true
				continue
			}
		}
		return edge, candidates, nil
	}

	if exhausted {
		return nil, candidates, domain.ErrRetryBudgetExceeded
	}
	return nil, candidates, errNoRoute
}

// dependsSatisfied checks a depends edge's completion and state requirements.
func dependsSatisfied(cfg *domain.DependsConfig, state *domain.State) bool {
	if cfg == nil {
		return true
	}
	if len(cfg.RequiredNodes) > 0 {
		met := 0
		for _, id := range cfg.RequiredNodes {
			if state.Counters.NodeVisits[id] > 0 {
				met++
			}
		}
		if cfg.RequireAll && met < len(cfg.RequiredNodes) {
			return false
		}
		if !cfg.RequireAll && met == 0 {
			return false
		}
	}
	for path, want := range cfg.RequiredState {
		got, ok := state.Get(path)
		if !ok {
			return false
		}
		if want != nil && got != want {
			return false
		}
	}
	return true
}

// decomposeReady gates a decompose edge on its parent task's status and
// the child fan-out bound. A parent already past the decomposing phase, or
// one that has reached max_children, blocks the edge.
func decomposeReady(cfg *domain.DecomposeConfig, state *domain.State) bool {
	if cfg == nil {
		return true
	}
	if v, ok := state.Get("task_status." + cfg.ParentID); ok {
		switch v {
		case "pending", "ready", "decomposing":
		default:
			return false
		}
	}
	if cfg.MaxChildren > 0 {
		if v, ok := state.Get("task_children." + cfg.ParentID); ok {
			if childCount(v) >= cfg.MaxChildren {
				return false
			}
		}
	}
	return true
}

func childCount(v any) int {
	switch children := v.(type) {
	case []any:
		return len(children)
	case []string:
		return len(children)
	default:
		return 0
	}
}
