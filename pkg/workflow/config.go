// Package workflow is the graph model for the workflow execution engine
// (C4): node/edge configuration, validation, and the mutable execution
// context nodes read and write during a run.
package workflow

import (
	"context"
	"fmt"
)

// NodeType discriminates what kind of work a WorkflowNode performs. The
// traversal engine runs every node's Execute identically regardless of
// Type — Type instead documents which constructor built that Execute (New
// only checks that Type is one of the values below, not which constructor
// was used): pkg/workflow/llmnode.New for NodeLLM, pkg/workflow/toolnode.New
// for NodeTool, pkg/workflow/parallelnode.New for NodeParallel. NodeCondition
// and NodeCustom carry caller-authored Execute funcs directly.
type NodeType string

const (
	NodeLLM       NodeType = "llm"
	NodeTool      NodeType = "tool"
	NodeCondition NodeType = "condition"
	NodeParallel  NodeType = "parallel"
	NodeCustom    NodeType = "custom"
)

func (t NodeType) valid() bool {
	switch t {
	case NodeLLM, NodeTool, NodeCondition, NodeParallel, NodeCustom:
		return true
	default:
		return false
	}
}

// Executor is what a node runs: given the current output and a frozen
// context snapshot, produce the next output. Input and output are any — a
// string, a number, or a structured value such as map[string]any — so a
// node can return structured data and a downstream node can read a field
// off it and compute over it, not just concatenate text. Nodes cannot
// mutate shared state directly — only the executor records a node's
// output, via Context.SetNodeOutput, after Execute returns.
type Executor func(ctx context.Context, snap Snapshot, input any) (any, error)

// WorkflowNode is one vertex in the graph.
type WorkflowNode struct {
	Name         string
	Type         NodeType
	Execute      Executor
	InputSchema  map[string]any
	OutputSchema map[string]any
}

// Guard evaluates whether an edge should fire, given the post-node context.
type Guard func(ctx *Context) bool

// Edge is a directed, optionally guarded transition between two nodes. A
// nil Guard always fires.
type Edge struct {
	From      string
	To        string
	Condition Guard
}

// fires reports whether this edge's guard allows traversal.
func (e Edge) fires(ctx *Context) bool {
	if e.Condition == nil {
		return true
	}
	return e.Condition(ctx)
}

// Config is a complete, validated workflow definition.
type Config struct {
	Name      string
	Nodes     []WorkflowNode
	Edges     []Edge
	StartNode string
	Timeout   int64 // milliseconds, 0 means no workflow-global timeout
	Metadata  map[string]string

	byName map[string]*WorkflowNode
	out    map[string][]Edge
}

// ConfigError reports a structural problem found at validation time —
// spec.md's WorkflowConfigError.
type ConfigError struct {
	Workflow string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("workflow %q: invalid config: %s", e.Workflow, e.Reason)
}

// New validates nodes/edges and infers StartNode when not given, returning
// a ready-to-execute Config.
func New(name string, nodes []WorkflowNode, edges []Edge, startNode string, timeoutMS int64, metadata map[string]string) (*Config, error) {
	cfg := &Config{
		Name: name, Nodes: nodes, Edges: edges, StartNode: startNode,
		Timeout: timeoutMS, Metadata: metadata,
		byName: make(map[string]*WorkflowNode, len(nodes)),
		out:    make(map[string][]Edge),
	}

	for i := range nodes {
		n := &nodes[i]
		if n.Name == "" {
			return nil, &ConfigError{Workflow: name, Reason: "node name cannot be empty"}
		}
		if !n.Type.valid() {
			return nil, &ConfigError{Workflow: name, Reason: fmt.Sprintf("node %q: unknown node type %q", n.Name, n.Type)}
		}
		if n.Execute == nil {
			return nil, &ConfigError{Workflow: name, Reason: fmt.Sprintf("node %q: Execute cannot be nil", n.Name)}
		}
		if _, dup := cfg.byName[n.Name]; dup {
			return nil, &ConfigError{Workflow: name, Reason: fmt.Sprintf("duplicate node name %q", n.Name)}
		}
		cfg.byName[n.Name] = n
	}

	incoming := make(map[string]int, len(nodes))
	for _, e := range edges {
		if _, ok := cfg.byName[e.From]; !ok {
			return nil, &ConfigError{Workflow: name, Reason: fmt.Sprintf("edge references unknown node %q", e.From)}
		}
		if _, ok := cfg.byName[e.To]; !ok {
			return nil, &ConfigError{Workflow: name, Reason: fmt.Sprintf("edge references unknown node %q", e.To)}
		}
		cfg.out[e.From] = append(cfg.out[e.From], e)
		incoming[e.To]++
	}

	if cfg.StartNode == "" {
		var roots []string
		for _, n := range nodes {
			if incoming[n.Name] == 0 {
				roots = append(roots, n.Name)
			}
		}
		switch len(roots) {
		case 1:
			cfg.StartNode = roots[0]
		case 0:
			return nil, &ConfigError{Workflow: name, Reason: "could not determine start node: every node has an incoming edge"}
		default:
			return nil, &ConfigError{Workflow: name, Reason: fmt.Sprintf("could not determine start node: %d candidates with no incoming edge (%v)", len(roots), roots)}
		}
	} else if _, ok := cfg.byName[cfg.StartNode]; !ok {
		return nil, &ConfigError{Workflow: name, Reason: fmt.Sprintf("start node %q does not exist", cfg.StartNode)}
	}

	return cfg, nil
}

// Node looks up a node by name.
func (c *Config) Node(name string) (*WorkflowNode, bool) {
	n, ok := c.byName[name]
	return n, ok
}

// Successors returns the edges firing out of `from` after `ctx` reflects
// that node's completed execution.
func (c *Config) Successors(from string, ctx *Context) []Edge {
	var fired []Edge
	for _, e := range c.out[from] {
		if e.fires(ctx) {
			fired = append(fired, e)
		}
	}
	return fired
}
