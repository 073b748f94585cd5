package toolnode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conduit/pkg/tool"
	"github.com/kadirpekel/conduit/pkg/workflow"
)

type stubTool struct {
	name          string
	needsApproval bool
	result        tool.Result
	err           error
}

func (s stubTool) Name() string                { return s.name }
func (s stubTool) Description() string         { return "stub" }
func (s stubTool) InputSchema() map[string]any { return map[string]any{} }
func (s stubTool) NeedsApproval() bool         { return s.needsApproval }
func (s stubTool) Execute(_ context.Context, args map[string]any) (tool.Result, error) {
	return s.result, s.err
}

func TestNewReturnsDataOnSuccess(t *testing.T) {
	node := New(stubTool{name: "echo", result: tool.Result{Success: true, Data: "ok", Duration: time.Millisecond}})

	out, err := node(context.Background(), workflow.Snapshot{}, map[string]any{"x": 1})
	require.NoError(t, err)
	res, ok := out.(Result)
	require.True(t, ok)
	assert.Equal(t, "ok", res.Data)
}

func TestNewFailsOnUnsuccessfulResult(t *testing.T) {
	node := New(stubTool{name: "echo", result: tool.Result{Success: false, Error: "bad args"}})

	_, err := node(context.Background(), workflow.Snapshot{}, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad args")
}

func TestNewRejectsToolNeedingApproval(t *testing.T) {
	node := New(stubTool{name: "danger", needsApproval: true})

	_, err := node(context.Background(), workflow.Snapshot{}, map[string]any{})
	require.Error(t, err)
}

func TestNewRejectsNonMapInput(t *testing.T) {
	node := New(stubTool{name: "echo", result: tool.Result{Success: true}})

	_, err := node(context.Background(), workflow.Snapshot{}, "not-a-map")
	require.Error(t, err)
}
