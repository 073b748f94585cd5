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

// Ollama implements llm.Provider and llm.EmbeddingProvider against a local
// Ollama daemon's native /api/chat and /api/embed endpoints.
type Ollama struct {
	http *httpx.Client
}

func NewOllama() *Ollama {
	return &Ollama{http: httpx.New(httpx.WithMaxRetries(2))}
}

type ollamaMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  *ollamaOptions   `json:"options,omitempty"`
	Tools    []ollamaTool     `json:"tools,omitempty"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

func (p *Ollama) baseURL(a llm.Adapter) string {
	if a.BaseURL != "" {
		return strings.TrimSuffix(a.BaseURL, "/")
	}
	return "http://localhost:11434"
}

func (p *Ollama) buildRequest(adapter llm.Adapter, messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions, stream bool) ollamaRequest {
	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		text := ""
		if m.Content != nil {
			text = *m.Content
		}
		om := ollamaMessage{Role: string(m.Role), Content: text, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var otc ollamaToolCall
			otc.Function.Name = tc.Function.Name
			_ = json.Unmarshal(tc.Function.Arguments, &otc.Function.Arguments)
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out = append(out, om)
	}

	options := &ollamaOptions{}
	if opts.Temperature != nil {
		options.Temperature = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		options.NumPredict = *opts.MaxTokens
	}

	req := ollamaRequest{Model: adapter.Model, Messages: out, Stream: stream, Options: options}
	for _, t := range tools {
		var ot ollamaTool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.InputSchema
		req.Tools = append(req.Tools, ot)
	}
	return req
}

func (p *Ollama) Generate(ctx context.Context, adapter llm.Adapter, messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions) (llm.Message, llm.Usage, error) {
	req := p.buildRequest(adapter, messages, tools, opts, false)
	var resp ollamaResponse
	_, err := p.http.DoJSON(ctx, http.MethodPost, p.baseURL(adapter)+"/api/chat", nil, req, &resp)
	if err != nil {
		return llm.Message{}, llm.Usage{}, llm.NewError(llm.CodeNetwork, "ollama request failed", err)
	}
	if resp.Error != "" {
		return llm.Message{}, llm.Usage{}, llm.NewError(llm.CodeInternal, resp.Error, nil)
	}

	var toolCalls []llm.ToolCall
	for _, tc := range resp.Message.ToolCalls {
		args, _ := json.Marshal(tc.Function.Arguments)
		out := llm.ToolCall{Type: "function"}
		out.Function.Name = tc.Function.Name
		out.Function.Arguments = args
		toolCalls = append(toolCalls, out)
	}

	content := resp.Message.Content
	usage := llm.Usage{PromptTokens: resp.PromptEvalCount, CompletionTokens: resp.EvalCount, TotalTokens: resp.PromptEvalCount + resp.EvalCount}
	return llm.Message{Role: llm.RoleAssistant, Content: &content, ToolCalls: toolCalls}, usage, nil
}

// GenerateStreaming parses Ollama's newline-delimited JSON stream (not SSE).
func (p *Ollama) GenerateStreaming(ctx context.Context, adapter llm.Adapter, messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions) (llm.ChatStream, error) {
	req := p.buildRequest(adapter, messages, tools, opts, true)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, llm.NewError(llm.CodeInvalidInput, "marshaling request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL(adapter)+"/api/chat", strings.NewReader(string(body)))
	if err != nil {
		return nil, llm.NewError(llm.CodeInternal, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, llm.NewError(llm.CodeNetwork, "ollama streaming request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, llm.NewError(llm.CodeServiceUnavailable, fmt.Sprintf("ollama returned HTTP %d", resp.StatusCode), nil)
	}

	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

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
			if line == "" {
				continue
			}
			var chunk ollamaResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				out <- llm.StreamChunk{Type: llm.ChunkError, Error: fmt.Errorf("decoding stream chunk: %w", err)}
				return
			}
			if chunk.Error != "" {
				out <- llm.StreamChunk{Type: llm.ChunkError, Error: fmt.Errorf("ollama: %s", chunk.Error)}
				return
			}
			if chunk.Message.Content != "" {
				out <- llm.StreamChunk{Type: llm.ChunkContent, Delta: chunk.Message.Content}
			}
			for _, tc := range chunk.Message.ToolCalls {
				args, _ := json.Marshal(tc.Function.Arguments)
				tcOut := llm.ToolCall{Type: "function"}
				tcOut.Function.Name = tc.Function.Name
				tcOut.Function.Arguments = args
				out <- llm.StreamChunk{Type: llm.ChunkToolCall, ToolCall: &tcOut}
			}
			if chunk.Done {
				usage := llm.Usage{PromptTokens: chunk.PromptEvalCount, CompletionTokens: chunk.EvalCount, TotalTokens: chunk.PromptEvalCount + chunk.EvalCount}
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

// Embed calls Ollama's /api/embed batch endpoint.
func (p *Ollama) Embed(ctx context.Context, adapter llm.Adapter, texts []string) ([][]float32, llm.Usage, error) {
	reqBody := map[string]any{"model": adapter.Model, "input": texts}
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if _, err := p.http.DoJSON(ctx, http.MethodPost, p.baseURL(adapter)+"/api/embed", nil, reqBody, &resp); err != nil {
		return nil, llm.Usage{}, llm.NewError(llm.CodeNetwork, "ollama embed request failed", err)
	}
	return resp.Embeddings, llm.Usage{}, nil
}
