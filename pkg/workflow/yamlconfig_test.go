package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: greet
start_node: a
nodes:
  - name: a
    type: custom
  - name: b
    type: custom
edges:
  - from: a
    to: b
    guard: always
`

func TestDecodeYAMLParsesNodesAndEdges(t *testing.T) {
	y, err := DecodeYAML([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "greet", y.Name)
	assert.Equal(t, "a", y.StartNode)
	require.Len(t, y.Nodes, 2)
	require.Len(t, y.Edges, 1)
	assert.Equal(t, "always", y.Edges[0].Guard)
}

func TestResolveBuildsExecutableConfig(t *testing.T) {
	y, err := DecodeYAML([]byte(sampleYAML))
	require.NoError(t, err)

	cfg, err := y.Resolve(
		map[string]Executor{"a": echoExecutor, "b": echoExecutor},
		map[string]Guard{"always": func(*Context) bool { return true }},
	)
	require.NoError(t, err)
	assert.Equal(t, "a", cfg.StartNode)

	node, ok := cfg.Node("b")
	require.True(t, ok)
	assert.Equal(t, NodeCustom, node.Type)
}

func TestResolveFailsOnMissingExecutor(t *testing.T) {
	y, err := DecodeYAML([]byte(sampleYAML))
	require.NoError(t, err)

	_, err = y.Resolve(map[string]Executor{"a": echoExecutor}, nil)
	assert.Error(t, err)
}

func TestResolveFailsOnMissingGuard(t *testing.T) {
	y, err := DecodeYAML([]byte(sampleYAML))
	require.NoError(t, err)

	_, err = y.Resolve(map[string]Executor{"a": echoExecutor, "b": echoExecutor}, nil)
	assert.Error(t, err)
}
