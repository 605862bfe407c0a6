package flow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleFlowYAML = `
name: greet-flow
version: 1
state:
  initial:
    greeted: false
nodes:
  - id: greet
    type: echo
    input:
      message: "hello {{ flow.input.name }}"
  - id: thank
    type: echo
    input:
      message: "thanks"
    when: "{{ greet }}"
    policy:
      retry:
        maxAttempts: 2
        backoffMs: 10
      timeoutMs: 1000
edges:
  - from: greet
    to: thank
    gate: any
`

func TestParseSampleFlow(t *testing.T) {
	def, err := Parse([]byte(sampleFlowYAML))
	require.NoError(t, err)
	require.Equal(t, "greet-flow", def.Name)
	require.Equal(t, 1, def.Version)
	require.Equal(t, false, def.State.Initial["greeted"])
	require.Len(t, def.Nodes, 2)
	require.Equal(t, "greet", def.Nodes[0].ID)
	require.Equal(t, "echo", def.Nodes[0].Type)
	require.Equal(t, 2, def.Nodes[1].Policy.Retry.MaxAttempts)
	require.Equal(t, 1000, def.Nodes[1].Policy.TimeoutMs)
	require.Len(t, def.Edges, 1)
	require.Equal(t, GateAny, def.Edges[0].Gate)
}

func TestParseRejectsMissingName(t *testing.T) {
	_, err := Parse([]byte("nodes: []"))
	require.Error(t, err)
}

func TestLoadReadsFlowFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFlowYAML), 0o644))

	def, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "greet-flow", def.Name)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
