// Package toolnode implements the NodeTool contract: run a tool.Tool
// against the node's input and surface its result (or error) as the node's
// output, the same success/error shape the ReAct loop uses for tool calls.
package toolnode

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/conduit/pkg/tool"
	"github.com/kadirpekel/conduit/pkg/workflow"
)

// Result is a tool node's output on success.
type Result struct {
	Data     any           `json:"data"`
	Duration time.Duration `json:"duration"`
}

// New wraps t as a NodeTool executor. Input must be a map[string]any of
// already-parsed arguments, t's own InputSchema contract. A tool that
// reports !Success is treated as a node failure, wrapping tool.Result's
// Error string.
func New(t tool.Tool) workflow.Executor {
	return func(ctx context.Context, _ workflow.Snapshot, input any) (any, error) {
		args, ok := input.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("toolnode: input must be map[string]any, got %T", input)
		}

		if t.NeedsApproval() {
			return nil, fmt.Errorf("toolnode: tool %q requires human approval, which toolnode does not grant", t.Name())
		}

		result, err := t.Execute(ctx, args)
		if err != nil {
			return nil, fmt.Errorf("toolnode: tool %q: %w", t.Name(), err)
		}
		if !result.Success {
			return nil, fmt.Errorf("toolnode: tool %q failed: %s", t.Name(), result.Error)
		}

		return Result{Data: result.Data, Duration: result.Duration}, nil
	}
}
