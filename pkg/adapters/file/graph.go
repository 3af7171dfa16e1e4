// Package file provides filesystem adapters: a YAML graph source with
// version history, JSON run state, and append-only JSONL logs for facts,
// audits and proposals.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/riverbedai/riverbed/pkg/domain"
)

// GraphSource reads and publishes graph definitions as YAML documents.
// Published versions are archived next to the main file so earlier
// versions stay inspectable.
type GraphSource struct {
	path string
}

// NewGraphSource creates a graph source over a YAML file path.
func NewGraphSource(path string) *GraphSource {
	return &GraphSource{path: path}
}

// Load parses the graph document. A missing version defaults to 1.
func (s *GraphSource) Load(ctx context.Context) (*domain.Graph, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrGraphNotFound
		}
		return nil, fmt.Errorf("reading graph file: %w", err)
	}

	var g domain.Graph
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parsing graph file %s: %w", s.path, err)
	}
	if g.Version == 0 {
		g.Version = 1
	}
	return &g, nil
}

// Publish writes the graph atomically and archives a versioned copy.
func (s *GraphSource) Publish(ctx context.Context, g *domain.Graph) error {
	raw, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}

	if err := writeAtomic(s.path, raw); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	base := filepath.Base(s.path)
	ext := filepath.Ext(base)
	versioned := filepath.Join(dir, "versions",
		fmt.Sprintf("%s.v%d%s", base[:len(base)-len(ext)], g.Version, ext))
	if err := os.MkdirAll(filepath.Dir(versioned), 0o755); err != nil {
		return err
	}
	return os.WriteFile(versioned, raw, 0o644)
}

// writeAtomic writes via a temp file and rename so readers never observe a
// partial document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
