package exec

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conduit/pkg/workflow"
	"github.com/kadirpekel/conduit/pkg/workflow/parallelnode"
)

func upper(_ context.Context, _ workflow.Snapshot, input any) (any, error) {
	return input.(string) + "!", nil
}

func TestRunLinearWorkflow(t *testing.T) {
	cfg, err := workflow.New("linear", []workflow.WorkflowNode{
		{Name: "a", Type: workflow.NodeCustom, Execute: upper},
		{Name: "b", Type: workflow.NodeCustom, Execute: upper},
	}, []workflow.Edge{{From: "a", To: "b"}}, "", 0, nil)
	require.NoError(t, err)

	result, err := Run(context.Background(), cfg, Options{Input: "hi"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hi!!", result.FinalOutput)
	assert.Equal(t, []string{"a", "b"}, result.ExecutionPath)
}

func TestRunConditionalBranch(t *testing.T) {
	cfg, err := workflow.New("branchy", []workflow.WorkflowNode{
		{Name: "classify", Type: workflow.NodeCondition, Execute: func(_ context.Context, _ workflow.Snapshot, input any) (any, error) {
			return input, nil
		}},
		{Name: "long", Type: workflow.NodeCustom, Execute: func(_ context.Context, _ workflow.Snapshot, input any) (any, error) {
			return "long:" + input.(string), nil
		}},
		{Name: "short", Type: workflow.NodeCustom, Execute: func(_ context.Context, _ workflow.Snapshot, input any) (any, error) {
			return "short:" + input.(string), nil
		}},
	}, []workflow.Edge{
		{From: "classify", To: "long", Condition: func(ctx *workflow.Context) bool {
			out, _ := ctx.GetNodeOutput("classify")
			return len(out.(string)) > 3
		}},
		{From: "classify", To: "short", Condition: func(ctx *workflow.Context) bool {
			out, _ := ctx.GetNodeOutput("classify")
			return len(out.(string)) <= 3
		}},
	}, "classify", 0, nil)
	require.NoError(t, err)

	result, err := Run(context.Background(), cfg, Options{Input: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "long:hello", result.FinalOutput)
}

func TestRunParallelFanOutJoin(t *testing.T) {
	var calls int32
	branch := func(_ context.Context, _ workflow.Snapshot, input any) (any, error) {
		atomic.AddInt32(&calls, 1)
		return input, nil
	}
	join := func(_ context.Context, snap workflow.Snapshot, _ any) (any, error) {
		return snap.NodeOutputs["left"].(string) + "+" + snap.NodeOutputs["right"].(string), nil
	}

	cfg, err := workflow.New("fanout", []workflow.WorkflowNode{
		{Name: "start", Type: workflow.NodeParallel, Execute: branch},
		{Name: "left", Type: workflow.NodeCustom, Execute: branch},
		{Name: "right", Type: workflow.NodeCustom, Execute: branch},
		{Name: "join", Type: workflow.NodeCustom, Execute: join},
	}, []workflow.Edge{
		{From: "start", To: "left"},
		{From: "start", To: "right"},
		{From: "left", To: "join", Condition: func(ctx *workflow.Context) bool {
			return ctx.HasNodeOutputs("left", "right")
		}},
		{From: "right", To: "join", Condition: func(ctx *workflow.Context) bool {
			return ctx.HasNodeOutputs("left", "right")
		}},
	}, "start", 0, nil)
	require.NoError(t, err)

	result, err := Run(context.Background(), cfg, Options{Input: "x"})
	require.NoError(t, err)
	assert.Equal(t, "x+x", result.FinalOutput)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRunNodeFailureEmitsErrorEvents(t *testing.T) {
	cfg, err := workflow.New("failing", []workflow.WorkflowNode{
		{Name: "boom", Type: workflow.NodeCustom, Execute: func(_ context.Context, _ workflow.Snapshot, _ any) (any, error) {
			return nil, errors.New("kaboom")
		}},
	}, nil, "boom", 0, nil)
	require.NoError(t, err)

	var types []EventType
	for ev := range Stream(context.Background(), cfg, Options{Input: "x"}) {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, EventNodeError)
	assert.Contains(t, types, EventWorkflowError)

	_, err = Run(context.Background(), cfg, Options{Input: "x"})
	require.Error(t, err)
}

func TestRunBoundsCyclesByMaxIterations(t *testing.T) {
	loop := func(_ context.Context, _ workflow.Snapshot, input any) (any, error) {
		return input, nil
	}
	cfg, err := workflow.New("cyclic", []workflow.WorkflowNode{
		{Name: "a", Type: workflow.NodeCustom, Execute: loop},
	}, []workflow.Edge{{From: "a", To: "a"}}, "a", 0, nil)
	require.NoError(t, err)

	_, err = Run(context.Background(), cfg, Options{Input: "x", MaxIterations: 5})
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "maxIterations")
}

func TestRunRespectsContextCancellation(t *testing.T) {
	cfg, err := workflow.New("slow", []workflow.WorkflowNode{
		{Name: "a", Type: workflow.NodeCustom, Execute: upper},
	}, nil, "a", 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Run(ctx, cfg, Options{Input: "x"})
	require.Error(t, err)
}

// TestRunComputesArithmeticAcrossStructuredNodeOutputs mirrors the graph
// model's canonical structured-output example: node A produces a map, node
// B reads a field off A's output and does arithmetic on it, node C does
// arithmetic on B's plain numeric output. None of this is expressible when
// node I/O is string-only.
func TestRunComputesArithmeticAcrossStructuredNodeOutputs(t *testing.T) {
	cfg, err := workflow.New("arithmetic", []workflow.WorkflowNode{
		{Name: "a", Type: workflow.NodeCustom, Execute: func(_ context.Context, _ workflow.Snapshot, _ any) (any, error) {
			return map[string]any{"x": 1}, nil
		}},
		{Name: "b", Type: workflow.NodeCustom, Execute: func(_ context.Context, snap workflow.Snapshot, _ any) (any, error) {
			a := snap.NodeOutputs["a"].(map[string]any)
			return a["x"].(int) + 1, nil
		}},
		{Name: "c", Type: workflow.NodeCustom, Execute: func(_ context.Context, snap workflow.Snapshot, _ any) (any, error) {
			b := snap.NodeOutputs["b"].(int)
			return b * 10, nil
		}},
	}, []workflow.Edge{{From: "a", To: "b"}, {From: "b", To: "c"}}, "", 0, nil)
	require.NoError(t, err)

	result, err := Run(context.Background(), cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, 20, result.FinalOutput)
	assert.Equal(t, 2, result.NodeOutputs["b"])
}

// TestRunNodeParallelFansOutOverASingleNodesInput wires a NodeParallel node
// via parallelnode.New, distinct from the edge-based fan-out exercised by
// TestRunParallelFanOutJoin: here one node's forEach input is a []any, not
// a split across the graph's edges.
func TestRunNodeParallelFansOutOverASingleNodesInput(t *testing.T) {
	triple := func(_ context.Context, _ workflow.Snapshot, input any) (any, error) {
		return input.(int) * 3, nil
	}
	cfg, err := workflow.New("batch", []workflow.WorkflowNode{
		{Name: "batch", Type: workflow.NodeParallel, Execute: parallelnode.New(triple, parallelnode.Spec{MaxConcurrency: 2})},
	}, nil, "batch", 0, nil)
	require.NoError(t, err)

	result, err := Run(context.Background(), cfg, Options{Input: []any{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, []any{3, 6, 9}, result.FinalOutput)
}
