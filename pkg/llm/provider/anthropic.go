// Package provider holds the per-vendor adapters implementing llm.Provider.
package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kadirpekel/conduit/internal/httpx"
	"github.com/kadirpekel/conduit/pkg/llm"
)

// Anthropic implements llm.Provider against the Messages API.
type Anthropic struct {
	http *httpx.Client
}

// NewAnthropic builds an Anthropic adapter with the shared retrying client.
func NewAnthropic() *Anthropic {
	return &Anthropic{
		http: httpx.New(
			httpx.WithHeaderParser(httpx.ParseAnthropicRateLimitHeaders),
		),
	}
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type anthropicStreamEvent struct {
	Type         string            `json:"type"`
	Index        int               `json:"index"`
	Delta        *anthropicDelta   `json:"delta,omitempty"`
	ContentBlock *anthropicContent `json:"content_block,omitempty"`
	Usage        *anthropicUsage   `json:"usage,omitempty"`
}

type anthropicDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

func (p *Anthropic) buildRequest(adapter llm.Adapter, messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions, stream bool) anthropicRequest {
	var systemParts []string
	var out []anthropicMessage

	for _, m := range messages {
		text := ""
		if m.Content != nil {
			text = *m.Content
		}
		switch m.Role {
		case llm.RoleSystem:
			if text != "" {
				systemParts = append(systemParts, text)
			}
		case llm.RoleUser:
			out = append(out, anthropicMessage{Role: "user", Content: []anthropicContent{{Type: "text", Text: text}}})
		case llm.RoleTool:
			out = append(out, anthropicMessage{Role: "user", Content: []anthropicContent{{
				Type: "tool_result", ToolUseID: m.ToolCallID, Content: text,
			}}})
		case llm.RoleAssistant:
			var content []anthropicContent
			if text != "" {
				content = append(content, anthropicContent{Type: "text", Text: text})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Function.Arguments
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				content = append(content, anthropicContent{Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input})
			}
			out = append(out, anthropicMessage{Role: "assistant", Content: content})
		}
	}

	maxTokens := 4096
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	temp := 1.0
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}

	req := anthropicRequest{
		Model:       adapter.Model,
		Messages:    out,
		MaxTokens:   maxTokens,
		Temperature: temp,
		Stream:      stream,
		System:      strings.Join(systemParts, "\n\n"),
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return req
}

func (p *Anthropic) baseURL(adapter llm.Adapter) string {
	if adapter.BaseURL != "" {
		return adapter.BaseURL
	}
	return "https://api.anthropic.com"
}

func (p *Anthropic) headers(adapter llm.Adapter) map[string]string {
	return map[string]string{
		"x-api-key":         adapter.APIKey,
		"anthropic-version": "2023-06-01",
	}
}

// Generate issues a single, non-streaming Messages API call.
func (p *Anthropic) Generate(ctx context.Context, adapter llm.Adapter, messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions) (llm.Message, llm.Usage, error) {
	req := p.buildRequest(adapter, messages, tools, opts, false)
	var resp anthropicResponse
	_, err := p.http.DoJSON(ctx, http.MethodPost, p.baseURL(adapter)+"/v1/messages", p.headers(adapter), req, &resp)
	if err != nil {
		return llm.Message{}, llm.Usage{}, llm.NewError(llm.CodeNetwork, "anthropic request failed", err)
	}
	if resp.Error != nil {
		return llm.Message{}, llm.Usage{}, llm.NewError(llm.CodeInternal, resp.Error.Message, nil)
	}

	var text strings.Builder
	var toolCalls []llm.ToolCall
	for _, c := range resp.Content {
		switch c.Type {
		case "text":
			text.WriteString(c.Text)
		case "tool_use":
			tc := llm.ToolCall{ID: c.ID, Type: "function"}
			tc.Function.Name = c.Name
			tc.Function.Arguments = c.Input
			toolCalls = append(toolCalls, tc)
		}
	}

	content := text.String()
	usage := llm.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	return llm.Message{Role: llm.RoleAssistant, Content: &content, ToolCalls: toolCalls}, usage, nil
}

// GenerateStreaming issues a streaming Messages API call and translates SSE
// events into llm.StreamChunk values on a background goroutine.
func (p *Anthropic) GenerateStreaming(ctx context.Context, adapter llm.Adapter, messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions) (llm.ChatStream, error) {
	req := p.buildRequest(adapter, messages, tools, opts, true)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, llm.NewError(llm.CodeInvalidInput, "marshaling request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL(adapter)+"/v1/messages", strings.NewReader(string(body)))
	if err != nil {
		return nil, llm.NewError(llm.CodeInternal, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers(adapter) {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, llm.NewError(llm.CodeNetwork, "anthropic streaming request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, llm.NewError(llm.CodeServiceUnavailable, fmt.Sprintf("anthropic returned HTTP %d", resp.StatusCode), nil)
	}

	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		toolArgs := make(map[int]*strings.Builder)
		toolMeta := make(map[int]llm.ToolCall)
		var usage llm.Usage

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				out <- llm.StreamChunk{Type: llm.ChunkError, Error: ctx.Err()}
				return
			default:
			}

			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			var ev anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				out <- llm.StreamChunk{Type: llm.ChunkError, Error: fmt.Errorf("decoding stream event: %w", err)}
				return
			}

			switch ev.Type {
			case "content_block_start":
				if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
					toolArgs[ev.Index] = &strings.Builder{}
					tc := llm.ToolCall{ID: ev.ContentBlock.ID, Type: "function"}
					tc.Function.Name = ev.ContentBlock.Name
					toolMeta[ev.Index] = tc
				}
			case "content_block_delta":
				if ev.Delta == nil {
					continue
				}
				if ev.Delta.Text != "" {
					out <- llm.StreamChunk{Type: llm.ChunkContent, Delta: ev.Delta.Text}
				}
				if ev.Delta.Type == "input_json_delta" && ev.Delta.PartialJSON != "" {
					if b, ok := toolArgs[ev.Index]; ok {
						b.WriteString(ev.Delta.PartialJSON)
					}
				}
			case "content_block_stop":
				if meta, ok := toolMeta[ev.Index]; ok {
					args := toolArgs[ev.Index].String()
					if args == "" {
						args = "{}"
					}
					meta.Function.Arguments = json.RawMessage(args)
					out <- llm.StreamChunk{Type: llm.ChunkToolCall, ToolCall: &meta}
				}
			case "message_delta":
				if ev.Usage != nil {
					usage.CompletionTokens = ev.Usage.OutputTokens
					usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
				}
			case "message_stop":
				out <- llm.StreamChunk{Type: llm.ChunkDone, Usage: &usage}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- llm.StreamChunk{Type: llm.ChunkError, Error: err}
		}
	}()

	return llm.ChatStream(out), nil
}
