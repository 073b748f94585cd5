package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoExecutor(_ context.Context, _ Snapshot, input any) (any, error) {
	return input, nil
}

func TestNewInfersSingleRoot(t *testing.T) {
	cfg, err := New("greet", []WorkflowNode{
		{Name: "a", Type: NodeCustom, Execute: echoExecutor},
		{Name: "b", Type: NodeCustom, Execute: echoExecutor},
	}, []Edge{{From: "a", To: "b"}}, "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", cfg.StartNode)
}

func TestNewRejectsAmbiguousStart(t *testing.T) {
	_, err := New("branchy", []WorkflowNode{
		{Name: "a", Type: NodeCustom, Execute: echoExecutor},
		{Name: "b", Type: NodeCustom, Execute: echoExecutor},
	}, nil, "", 0, nil)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewRejectsNoRoot(t *testing.T) {
	_, err := New("cyclic", []WorkflowNode{
		{Name: "a", Type: NodeCustom, Execute: echoExecutor},
		{Name: "b", Type: NodeCustom, Execute: echoExecutor},
	}, []Edge{{From: "a", To: "b"}, {From: "b", To: "a"}}, "", 0, nil)
	require.Error(t, err)
}

func TestNewRejectsDuplicateNodeName(t *testing.T) {
	_, err := New("dup", []WorkflowNode{
		{Name: "a", Type: NodeCustom, Execute: echoExecutor},
		{Name: "a", Type: NodeCustom, Execute: echoExecutor},
	}, nil, "a", 0, nil)
	require.Error(t, err)
}

func TestNewRejectsEdgeToUnknownNode(t *testing.T) {
	_, err := New("dangling", []WorkflowNode{
		{Name: "a", Type: NodeCustom, Execute: echoExecutor},
	}, []Edge{{From: "a", To: "ghost"}}, "a", 0, nil)
	require.Error(t, err)
}

func TestNewRejectsExplicitUnknownStart(t *testing.T) {
	_, err := New("missing-start", []WorkflowNode{
		{Name: "a", Type: NodeCustom, Execute: echoExecutor},
	}, nil, "ghost", 0, nil)
	require.Error(t, err)
}

func TestSuccessorsRespectsGuard(t *testing.T) {
	cfg, err := New("guarded", []WorkflowNode{
		{Name: "a", Type: NodeCondition, Execute: echoExecutor},
		{Name: "yes", Type: NodeCustom, Execute: echoExecutor},
		{Name: "no", Type: NodeCustom, Execute: echoExecutor},
	}, []Edge{
		{From: "a", To: "yes", Condition: func(ctx *Context) bool {
			v, _ := ctx.GetVariable("branch")
			return v == "yes"
		}},
		{From: "a", To: "no", Condition: func(ctx *Context) bool {
			v, _ := ctx.GetVariable("branch")
			return v == "no"
		}},
	}, "a", 0, nil)
	require.NoError(t, err)

	ctx := NewContext()
	ctx.SetVariable("branch", "yes")
	fired := cfg.Successors("a", ctx)
	require.Len(t, fired, 1)
	assert.Equal(t, "yes", fired[0].To)
}
