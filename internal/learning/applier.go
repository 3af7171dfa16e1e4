package learning

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/riverbedai/riverbed/internal/validator"
	"github.com/riverbedai/riverbed/pkg/domain"
)

// Apply produces a new graph version with the given changes applied. The
// input graph is never mutated: the clone is mutated, revalidated and
// returned with its version bumped. Any invalid result rejects the whole
// change set.
func Apply(g *domain.Graph, changes []domain.Change) (*domain.Graph, error) {
	next := g.Clone()
	next.Version = g.Version + 1

	for i := range changes {
		if err := applyChange(next, &changes[i]); err != nil {
			return nil, fmt.Errorf("change %s (%s): %w", changes[i].ID, changes[i].Type, err)
		}
	}

	if err := validator.Validate(next); err != nil {
		return nil, fmt.Errorf("mutated graph is invalid: %w", err)
	}

	now := time.Now().UTC()
	for i := range changes {
		changes[i].Applied = true
		changes[i].AppliedAt = &now
	}
	return next, nil
}

func applyChange(g *domain.Graph, c *domain.Change) error {
	switch c.Type {
	case domain.ChangeEdgePriority:
		edge := g.EdgeByID(c.Target)
		if edge == nil {
			return fmt.Errorf("unknown edge %q", c.Target)
		}
		v, err := toInt(c.NewValue)
		if err != nil {
			return err
		}
		edge.Priority = v

	case domain.ChangeEdgeWeight:
		edge := g.EdgeByID(c.Target)
		if edge == nil {
			return fmt.Errorf("unknown edge %q", c.Target)
		}
		v, err := toFloat(c.NewValue)
		if err != nil {
			return err
		}
		edge.Weight = clampWeight(v)

	case domain.ChangeMaxRetries:
		edge := g.EdgeByID(c.Target)
		if edge == nil {
			return fmt.Errorf("unknown edge %q", c.Target)
		}
		v, err := toInt(c.NewValue)
		if err != nil {
			return err
		}
		if v < 1 {
			return fmt.Errorf("max_retries must be >= 1, got %d", v)
		}
		edge.MaxRetries = v

	case domain.ChangeGuard:
		edge := g.EdgeByID(c.Target)
		if edge == nil {
			return fmt.Errorf("unknown edge %q", c.Target)
		}
		guard, ok := c.NewValue.(string)
		if !ok {
			return fmt.Errorf("guard value must be a string")
		}
		edge.Guard = guard

	case domain.ChangePrompt:
		node := g.NodeByID(c.Target)
		if node == nil {
			return fmt.Errorf("unknown node %q", c.Target)
		}
		prompt, ok := c.NewValue.(string)
		if !ok || prompt == "" {
			return fmt.Errorf("prompt value must be a non-empty string")
		}
		node.Prompt = prompt

	case domain.ChangeAddEdge:
		var edge domain.Edge
		if err := mapstructure.Decode(c.NewValue, &edge); err != nil {
			return fmt.Errorf("decoding edge: %w", err)
		}
		if g.EdgeByID(edge.ID) != nil {
			return fmt.Errorf("edge %q already exists", edge.ID)
		}
		g.Edges = append(g.Edges, edge)

	case domain.ChangeRemoveEdge:
		for i := range g.Edges {
			if g.Edges[i].ID == c.Target {
				g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("unknown edge %q", c.Target)

	case domain.ChangeAddNode:
		var node domain.Node
		if err := mapstructure.Decode(c.NewValue, &node); err != nil {
			return fmt.Errorf("decoding node: %w", err)
		}
		if g.NodeByID(node.ID) != nil {
			return fmt.Errorf("node %q already exists", node.ID)
		}
		g.Nodes = append(g.Nodes, node)

	case domain.ChangeAddRelationship:
		var rel domain.Relationship
		if err := mapstructure.Decode(c.NewValue, &rel); err != nil {
			return fmt.Errorf("decoding relationship: %w", err)
		}
		g.Relationships = append(g.Relationships, rel)

	case domain.ChangeRelationshipWeight:
		for i := range g.Relationships {
			if g.Relationships[i].ID == c.Target {
				v, err := toFloat(c.NewValue)
				if err != nil {
					return err
				}
				g.Relationships[i].Weight = clampWeight(v)
				return nil
			}
		}
		return fmt.Errorf("unknown relationship %q", c.Target)

	default:
		return fmt.Errorf("unknown change type %q", c.Type)
	}
	return nil
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
