// Package graph renders execution graphs as Mermaid flowcharts for
// inspection and docs.
package graph

import (
	"fmt"
	"strings"

	"github.com/riverbedai/riverbed/pkg/domain"
)

// Overlay contains dynamic run data to visualize on the graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// GenerateMermaid produces Mermaid flowchart syntax from a graph.
// Semantic styling:
//   - init: ((circle))
//   - tool: [[subroutine]]
//   - gate/decision: {rhombus}
//   - terminal: ([stadium])
//   - other: [rectangle]
//
// Retry edges are dotted and labeled with their bound; guards become edge
// labels. Overlay styles mark visited and current nodes.
func GenerateMermaid(g *domain.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range g.Nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch node.Type {
		case domain.NodeInit:
			opener, closer = "((", "))"
		case domain.NodeTool:
			opener, closer = "[[", "]]"
		case domain.NodeGate, domain.NodeDecision:
			opener, closer = "{", "}"
		case domain.NodeTerminal:
			opener, closer = "([", "])"
		}

		label := node.ID
		if node.Stage != "" {
			label = fmt.Sprintf("%s <br/> %s", node.ID, node.Stage)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))
	}

	for _, e := range g.Edges {
		safeFrom := sanitizeMermaidID(e.From)
		safeTo := sanitizeMermaidID(e.To)

		label := e.Guard
		if e.Kind == domain.EdgeRetry {
			label = fmt.Sprintf("retry ≤ %d", e.MaxRetries)
			if e.Guard != "" {
				label = fmt.Sprintf("%s: %s", label, e.Guard)
			}
		}

		arrow := "-->"
		dotted := e.Kind == domain.EdgeRetry || e.Kind == domain.EdgeDepends
		if dotted {
			arrow = "-.->"
		}
		if label != "" {
			// Escape double quotes for the Mermaid edge label.
			safeLabel := strings.ReplaceAll(label, "\"", "'")
			if dotted {
				arrow = fmt.Sprintf("-. \"%s\" .->", safeLabel)
			} else {
				arrow = fmt.Sprintf("-- \"%s\" -->", safeLabel)
			}
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeFrom, arrow, safeTo))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for contrast regardless of theme.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.CurrentNode != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
