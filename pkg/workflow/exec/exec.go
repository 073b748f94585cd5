package exec

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/conduit/pkg/workflow"
)

// DefaultMaxIterations bounds total waves to prevent runaway cycles, per
// the graph model's cyclic-graph allowance.
const DefaultMaxIterations = 1000

// Options tunes a single run.
type Options struct {
	MaxIterations int // 0 means DefaultMaxIterations
	Input         any // seed input for the start node
	Now           func() time.Time
}

func (o Options) maxIterations() int {
	if o.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return o.MaxIterations
}

// wave is one breadth-wise set of active nodes plus the per-node input
// override each carries (spec's `<name>_input` key).
type wave struct {
	nodes  []string
	inputs map[string]any
}

// Run executes cfg to completion and returns the terminal Result. It is the
// non-streaming counterpart of Stream.
func Run(ctx context.Context, cfg *workflow.Config, opts Options) (*Result, error) {
	var last *Result
	for ev := range Stream(ctx, cfg, opts) {
		if ev.Type == EventWorkflowComplete || ev.Type == EventWorkflowError {
			last = ev.Result
		}
	}
	if last == nil {
		return nil, fmt.Errorf("workflow %q: produced no terminal event", cfg.Name)
	}
	if !last.Success {
		return last, &workflow.ExecutionError{NodeName: "", Cause: combineErrors(last.Errors)}
	}
	return last, nil
}

// Stream runs cfg and returns a channel of lifecycle Events, the second
// entry point per the streaming-execution contract. The channel is always
// closed, with a workflow_complete or workflow_error event sent last. Once
// ctx is cancelled, events that cannot be delivered are dropped, so the
// terminal event may be missing.
//
// Event production is decoupled from consumption by the channel's own
// buffering: a slow consumer naturally applies backpressure onto wave
// execution because node waves block sending node_start/node_complete
// events into a channel nobody is draining.
func Stream(ctx context.Context, cfg *workflow.Config, opts Options) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		runWavefront(ctx, cfg, opts, out)
	}()
	return out
}

func runWavefront(ctx context.Context, cfg *workflow.Config, opts Options, out chan<- Event) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	startTime := now()
	wfCtx := workflow.NewContext()
	wfCtx.SetStatus(workflow.StatusRunning)

	send(ctx, out, Event{Type: EventWorkflowStart})

	var timeoutAt time.Time
	if cfg.Timeout > 0 {
		timeoutAt = startTime.Add(time.Duration(cfg.Timeout) * time.Millisecond)
	}

	current := wave{nodes: []string{cfg.StartNode}, inputs: map[string]any{cfg.StartNode: opts.Input}}
	executionPath := make([]string, 0, 8)
	var currentOutput any = opts.Input
	maxIter := opts.maxIterations()

	for iter := 0; len(current.nodes) > 0; iter++ {
		if iter >= maxIter {
			fail(ctx, wfCtx, out, &workflow.ExecutionError{Cause: fmt.Errorf("exceeded maxIterations (%d)", maxIter)}, startTime, executionPath)
			return
		}
		if err := ctx.Err(); err != nil {
			fail(ctx, wfCtx, out, &workflow.AbortError{Snapshot: wfCtx.Snapshot("")}, startTime, executionPath)
			return
		}
		if !timeoutAt.IsZero() && now().After(timeoutAt) {
			fail(ctx, wfCtx, out, &workflow.TimeoutError{}, startTime, executionPath)
			return
		}

		completions, err := runWave(ctx, cfg, wfCtx, current, out)
		if err != nil {
			fail(ctx, wfCtx, out, err, startTime, executionPath)
			return
		}

		next := wave{inputs: map[string]any{}}
		seen := make(map[string]bool)
		for _, c := range completions {
			executionPath = append(executionPath, c.node)
			currentOutput = c.output
			for _, edge := range cfg.Successors(c.node, wfCtx) {
				if !seen[edge.To] {
					seen[edge.To] = true
					next.nodes = append(next.nodes, edge.To)
				}
				next.inputs[edge.To] = currentOutput
			}
		}
		current = next
	}

	wfCtx.SetStatus(workflow.StatusCompleted)
	result := &Result{
		WorkflowName:  cfg.Name,
		Success:       true,
		FinalOutput:   currentOutput,
		NodeOutputs:   wfCtx.Snapshot("").NodeOutputs,
		ExecutionPath: executionPath,
	}
	send(ctx, out, Event{Type: EventWorkflowComplete, Result: result})
}

type completion struct {
	node   string
	output any
}

// runWave executes every node in w concurrently (Promise.all-style) and
// returns their completions in actual finish order. Any single node
// failure aborts the wave: node_error then workflow_error, per the
// traversal contract.
func runWave(ctx context.Context, cfg *workflow.Config, wfCtx *workflow.Context, w wave, out chan<- Event) ([]completion, error) {
	type result struct {
		completion completion
		err        error
	}
	resultsCh := make(chan result, len(w.nodes))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range w.nodes {
		name := name
		node, ok := cfg.Node(name)
		if !ok {
			return nil, &workflow.ExecutionError{NodeName: name, Cause: fmt.Errorf("unknown node")}
		}
		input := w.inputs[name]

		send(ctx, out, Event{Type: EventNodeStart, NodeName: name})

		g.Go(func() error {
			wfCtx.SetCurrentNode(name)
			snap := wfCtx.Snapshot(name)
			nodeCtx := WithTokenSink(gctx, func(nodeName, delta string, tokenIndex int) {
				send(ctx, out, Event{Type: EventLLMToken, NodeName: nodeName, Delta: delta, TokenIndex: tokenIndex})
			})
			output, err := node.Execute(nodeCtx, snap, input)
			if err != nil {
				resultsCh <- result{err: &workflow.NodeExecutionError{NodeName: name, Cause: err}}
				return nil
			}
			wfCtx.SetNodeOutput(name, output)
			resultsCh <- result{completion: completion{node: name, output: output}}
			return nil
		})
	}

	_ = g.Wait()
	close(resultsCh)

	completions := make([]completion, 0, len(w.nodes))
	for r := range resultsCh {
		if r.err != nil {
			wfCtx.AddError(r.err)
			send(ctx, out, Event{Type: EventNodeError, NodeName: nodeNameOf(r.err), Err: r.err})
			return nil, r.err
		}
		completions = append(completions, r.completion)
		send(ctx, out, Event{Type: EventNodeComplete, NodeName: r.completion.node, Output: r.completion.output})
	}
	return completions, nil
}

// tokenSinkKeyType is an unexported context-key type so WithTokenSink's
// value can't collide with keys set elsewhere.
type tokenSinkKeyType struct{}

var tokenSinkKey tokenSinkKeyType

// WithTokenSink attaches sink to ctx so an LLM-type node's Executor can
// forward streamed deltas as EventLLMToken events without runWave knowing
// anything about LLM streaming itself.
func WithTokenSink(ctx context.Context, sink TokenSink) context.Context {
	return context.WithValue(ctx, tokenSinkKey, sink)
}

// TokenSinkFromContext retrieves a sink set by WithTokenSink, if any. A
// node not interested in streaming can ignore the second return value.
func TokenSinkFromContext(ctx context.Context) (TokenSink, bool) {
	sink, ok := ctx.Value(tokenSinkKey).(TokenSink)
	return sink, ok
}

func nodeNameOf(err error) string {
	if ne, ok := err.(*workflow.NodeExecutionError); ok {
		return ne.NodeName
	}
	return ""
}

func fail(ctx context.Context, wfCtx *workflow.Context, out chan<- Event, err error, startTime time.Time, path []string) {
	wfCtx.SetStatus(workflow.StatusFailed)
	result := &Result{
		Success:       false,
		NodeOutputs:   wfCtx.Snapshot("").NodeOutputs,
		ExecutionPath: path,
		Errors:        append(wfCtx.Errors(), err),
	}
	send(ctx, out, Event{Type: EventWorkflowError, Err: err, Result: result})
}

func send(ctx context.Context, out chan<- Event, ev Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}
