// Package mcptoolset adapts an external MCP (Model Context Protocol)
// server's tools into the agent's tool.Tool contract, connecting lazily
// over stdio on first use.
package mcptoolset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/conduit/pkg/tool"
)

// Config configures the MCP subprocess connection.
type Config struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	// Filter limits which server-advertised tools are exposed; empty
	// means all.
	Filter []string
}

// Toolset is an MCP-backed tool source with lazy connection.
type Toolset struct {
	cfg       Config
	filterSet map[string]bool

	mu        sync.Mutex
	client    *client.Client
	tools     []tool.Tool
	connected bool
}

// New creates a Toolset; no connection is made until Tools is called.
func New(cfg Config) (*Toolset, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcptoolset: command is required")
	}
	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}
	return &Toolset{cfg: cfg, filterSet: filterSet}, nil
}

// Tools returns the server's tools, connecting on first call.
func (t *Toolset) Tools(ctx context.Context) ([]tool.Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		if err := t.connect(ctx); err != nil {
			return nil, fmt.Errorf("mcptoolset: connecting to %q: %w", t.cfg.Name, err)
		}
	}
	return t.tools, nil
}

func (t *Toolset) connect(ctx context.Context) error {
	env := make([]string, 0, len(t.cfg.Env))
	for k, v := range t.cfg.Env {
		env = append(env, k+"="+v)
	}

	mcpClient, err := client.NewStdioMCPClient(t.cfg.Command, env, t.cfg.Args...)
	if err != nil {
		return fmt.Errorf("creating MCP client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("starting MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "conduit", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initializing MCP session: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("listing MCP tools: %w", err)
	}

	tools := make([]tool.Tool, 0, len(listResp.Tools))
	for _, mt := range listResp.Tools {
		if t.filterSet != nil && !t.filterSet[mt.Name] {
			continue
		}
		tools = append(tools, &mcpTool{
			toolset: t,
			name:    mt.Name,
			desc:    mt.Description,
			schema:  convertSchema(mt.InputSchema),
		})
	}

	t.client = mcpClient
	t.tools = tools
	t.connected = true
	slog.Info("mcptoolset: connected", "name", t.cfg.Name, "command", t.cfg.Command, "tools", len(tools))
	return nil
}

// Close shuts down the underlying MCP subprocess, if connected.
func (t *Toolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	return t.client.Close()
}

type mcpTool struct {
	toolset *Toolset
	name    string
	desc    string
	schema  map[string]any
}

func (w *mcpTool) Name() string               { return w.name }
func (w *mcpTool) Description() string         { return w.desc }
func (w *mcpTool) InputSchema() map[string]any { return w.schema }
func (w *mcpTool) NeedsApproval() bool         { return false }

func (w *mcpTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	start := time.Now()

	w.toolset.mu.Lock()
	mcpClient := w.toolset.client
	w.toolset.mu.Unlock()
	if mcpClient == nil {
		err := fmt.Errorf("mcptoolset: %q not connected", w.name)
		return tool.Result{Success: false, Error: err.Error(), Duration: time.Since(start)}, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = w.name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	duration := time.Since(start)
	if err != nil {
		return tool.Result{Success: false, Error: err.Error(), Duration: duration}, err
	}

	data, callErr := parseResult(resp)
	if callErr != "" {
		return tool.Result{Success: false, Error: callErr, Duration: duration}, fmt.Errorf("%s", callErr)
	}
	return tool.Result{Success: true, Data: data, Duration: duration}, nil
}

// parseResult collapses an MCP CallToolResult's text content blocks into
// either a single string or a slice, matching how LLM tool-result messages
// expect plain serializable content.
func parseResult(resp *mcp.CallToolResult) (any, string) {
	if resp.IsError {
		for _, c := range resp.Content {
			if tc, ok := c.(mcp.TextContent); ok {
				return nil, tc.Text
			}
		}
		return nil, "unknown MCP tool error"
	}

	var texts []string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	switch len(texts) {
	case 0:
		return nil, ""
	case 1:
		return texts[0], ""
	default:
		return texts, ""
	}
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
