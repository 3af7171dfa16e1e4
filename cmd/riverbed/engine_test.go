package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const testGraphYAML = `
name: triage
version: 1
start_node: start
terminal_nodes: [done, failed]
failure_node: failed
nodes:
  - id: start
    type: init
    prompt: "Classify: {{request}}"
  - id: done
    type: terminal
  - id: failed
    type: terminal
edges:
  - id: e1
    from: start
    to: done
    kind: forward
    priority: 1
`

func newBuildCmd(t *testing.T, graphPath string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("graph", graphPath, "")
	cmd.Flags().String("data-dir", "", "")
	cmd.Flags().String("redis", "", "")
	cmd.Flags().String("skills", "", "")
	cmd.Flags().Bool("verbose", false, "")
	return cmd
}

func writeGraph(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testGraphYAML), 0o644))
	return path
}

func TestBuildEngineWiresSkillRunner(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	graphPath := writeGraph(t)

	skillsPath := filepath.Join(filepath.Dir(graphPath), "skills.yaml")
	skillsYAML := "skills:\n  - name: lookup\n    command: echo\n    args: [\"found\"]\n"
	require.NoError(t, os.WriteFile(skillsPath, []byte(skillsYAML), 0o644))

	cmd := newBuildCmd(t, graphPath)
	require.NoError(t, cmd.Flags().Set("skills", skillsPath))

	eng, reg, err := buildEngine(cmd)
	require.NoError(t, err)
	require.NotNil(t, eng)
	require.NotNil(t, reg)
}

func TestBuildEngineRejectsMalformedSkillsFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	graphPath := writeGraph(t)

	skillsPath := filepath.Join(filepath.Dir(graphPath), "skills.yaml")
	require.NoError(t, os.WriteFile(skillsPath, []byte("skills:\n\t- broken"), 0o644))

	cmd := newBuildCmd(t, graphPath)
	require.NoError(t, cmd.Flags().Set("skills", skillsPath))

	_, _, err := buildEngine(cmd)
	require.Error(t, err)
}

func TestBuildEngineRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cmd := newBuildCmd(t, writeGraph(t))
	_, _, err := buildEngine(cmd)
	require.Error(t, err)
}
