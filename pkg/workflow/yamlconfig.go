package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLNode is one node's serializable shape. Execute itself cannot be
// expressed in YAML — callers supply the actual Executor/Guard funcs via
// the executors/guards maps passed to Resolve: executors keyed by node name,
// guards by the name an edge's Guard field gives.
type YAMLNode struct {
	Name         string         `yaml:"name"`
	Type         NodeType       `yaml:"type"`
	InputSchema  map[string]any `yaml:"input_schema,omitempty"`
	OutputSchema map[string]any `yaml:"output_schema,omitempty"`
}

// YAMLEdge is one edge's serializable shape. Guard is an optional name
// looked up in the guards map passed to Resolve; omitted means unconditional.
type YAMLEdge struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Guard string `yaml:"guard,omitempty"`
}

// YAMLConfig is the on-disk shape of a workflow definition, parsed
// independently of the app-level koanf-driven Config (it has no place in
// that tree: a workflow is a named graph, not a flat settings document).
type YAMLConfig struct {
	Name      string            `yaml:"name"`
	StartNode string            `yaml:"start_node,omitempty"`
	TimeoutMS int64             `yaml:"timeout_ms,omitempty"`
	Metadata  map[string]string `yaml:"metadata,omitempty"`
	Nodes     []YAMLNode        `yaml:"nodes"`
	Edges     []YAMLEdge        `yaml:"edges,omitempty"`
}

// DecodeYAML parses data into a YAMLConfig. Callers still need Resolve to
// turn it into an executable Config.
func DecodeYAML(data []byte) (*YAMLConfig, error) {
	var y YAMLConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("workflow: parse yaml config: %w", err)
	}
	return &y, nil
}

// Resolve binds y's nodes and edges to concrete Executor/Guard
// implementations and validates the result via New.
func (y *YAMLConfig) Resolve(executors map[string]Executor, guards map[string]Guard) (*Config, error) {
	nodes := make([]WorkflowNode, 0, len(y.Nodes))
	for _, n := range y.Nodes {
		exec, ok := executors[n.Name]
		if !ok {
			return nil, fmt.Errorf("workflow: no executor registered for node %q", n.Name)
		}
		nodes = append(nodes, WorkflowNode{
			Name:         n.Name,
			Type:         n.Type,
			Execute:      exec,
			InputSchema:  n.InputSchema,
			OutputSchema: n.OutputSchema,
		})
	}

	edges := make([]Edge, 0, len(y.Edges))
	for _, e := range y.Edges {
		var guard Guard
		if e.Guard != "" {
			g, ok := guards[e.Guard]
			if !ok {
				return nil, fmt.Errorf("workflow: no guard registered for %q", e.Guard)
			}
			guard = g
		}
		edges = append(edges, Edge{From: e.From, To: e.To, Condition: guard})
	}

	return New(y.Name, nodes, edges, y.StartNode, y.TimeoutMS, y.Metadata)
}
