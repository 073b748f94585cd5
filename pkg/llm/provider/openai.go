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

// OpenAI implements llm.Provider against the Chat Completions API.
type OpenAI struct {
	http *httpx.Client
}

func NewOpenAI() *OpenAI {
	return &OpenAI{http: httpx.New(httpx.WithHeaderParser(httpx.ParseOpenAIRateLimitHeaders))}
}

type openaiMessage struct {
	Role       string             `json:"role"`
	Content    *string            `json:"content"`
	ToolCalls  []openaiToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	Name       string             `json:"name,omitempty"`
}

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type openaiTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type openaiRequest struct {
	Model            string          `json:"model"`
	Messages         []openaiMessage `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Stream           bool            `json:"stream"`
	Stop             []string        `json:"stop,omitempty"`
	Tools            []openaiTool    `json:"tools,omitempty"`
}

type openaiChoice struct {
	Message      openaiMessage `json:"message"`
	Delta        openaiMessage `json:"delta"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *OpenAI) baseURL(a llm.Adapter) string {
	if a.BaseURL != "" {
		return a.BaseURL
	}
	return "https://api.openai.com"
}

func (p *OpenAI) buildRequest(adapter llm.Adapter, messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions, stream bool) openaiRequest {
	out := make([]openaiMessage, 0, len(messages))
	for _, m := range messages {
		om := openaiMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			otc := openaiToolCall{ID: tc.ID, Type: "function"}
			otc.Function.Name = tc.Function.Name
			otc.Function.Arguments = tc.Function.Arguments
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out = append(out, om)
	}

	req := openaiRequest{
		Model:            adapter.Model,
		Messages:         out,
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		PresencePenalty:  opts.PresencePenalty,
		FrequencyPenalty: opts.FrequencyPenalty,
		MaxTokens:        opts.MaxTokens,
		Stream:           stream,
		Stop:             opts.Stop,
	}
	for _, t := range tools {
		var ot openaiTool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.InputSchema
		req.Tools = append(req.Tools, ot)
	}
	return req
}

func (p *OpenAI) Generate(ctx context.Context, adapter llm.Adapter, messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions) (llm.Message, llm.Usage, error) {
	req := p.buildRequest(adapter, messages, tools, opts, false)
	headers := map[string]string{"Authorization": "Bearer " + adapter.APIKey}

	var resp openaiResponse
	_, err := p.http.DoJSON(ctx, http.MethodPost, p.baseURL(adapter)+"/v1/chat/completions", headers, req, &resp)
	if err != nil {
		return llm.Message{}, llm.Usage{}, llm.NewError(llm.CodeNetwork, "openai request failed", err)
	}
	if resp.Error != nil {
		return llm.Message{}, llm.Usage{}, llm.NewError(llm.CodeInternal, resp.Error.Message, nil)
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, llm.Usage{}, llm.NewError(llm.CodeInternal, "openai returned no choices", nil)
	}

	msg := resp.Choices[0].Message
	var toolCalls []llm.ToolCall
	for _, tc := range msg.ToolCalls {
		out := llm.ToolCall{ID: tc.ID, Type: tc.Type}
		out.Function.Name = tc.Function.Name
		out.Function.Arguments = tc.Function.Arguments
		toolCalls = append(toolCalls, out)
	}

	usage := llm.Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens, TotalTokens: resp.Usage.TotalTokens}
	return llm.Message{Role: llm.RoleAssistant, Content: msg.Content, ToolCalls: toolCalls}, usage, nil
}

func (p *OpenAI) GenerateStreaming(ctx context.Context, adapter llm.Adapter, messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions) (llm.ChatStream, error) {
	req := p.buildRequest(adapter, messages, tools, opts, true)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, llm.NewError(llm.CodeInvalidInput, "marshaling request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL(adapter)+"/v1/chat/completions", strings.NewReader(string(body)))
	if err != nil {
		return nil, llm.NewError(llm.CodeInternal, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+adapter.APIKey)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, llm.NewError(llm.CodeNetwork, "openai streaming request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, llm.NewError(llm.CodeServiceUnavailable, fmt.Sprintf("openai returned HTTP %d", resp.StatusCode), nil)
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
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				out <- llm.StreamChunk{Type: llm.ChunkDone, Usage: &usage}
				return
			}

			var chunk openaiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				out <- llm.StreamChunk{Type: llm.ChunkError, Error: fmt.Errorf("decoding stream chunk: %w", err)}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content != nil && *delta.Content != "" {
				out <- llm.StreamChunk{Type: llm.ChunkContent, Delta: *delta.Content}
			}
			for i, tc := range delta.ToolCalls {
				idx := i
				b, ok := toolArgs[idx]
				if !ok {
					b = &strings.Builder{}
					toolArgs[idx] = b
					toolMeta[idx] = llm.ToolCall{ID: tc.ID, Type: "function"}
				}
				meta := toolMeta[idx]
				if tc.Function.Name != "" {
					meta.Function.Name = tc.Function.Name
				}
				toolMeta[idx] = meta
				b.Write(tc.Function.Arguments)
			}
			if chunk.Choices[0].FinishReason != "" {
				for idx, meta := range toolMeta {
					args := toolArgs[idx].String()
					if args == "" {
						args = "{}"
					}
					meta.Function.Arguments = json.RawMessage(args)
					out <- llm.StreamChunk{Type: llm.ChunkToolCall, ToolCall: &meta}
				}
				usage.TotalTokens = chunk.Usage.TotalTokens
				out <- llm.StreamChunk{Type: llm.ChunkDone, FinishReason: chunk.Choices[0].FinishReason, Usage: &usage}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- llm.StreamChunk{Type: llm.ChunkError, Error: err}
		}
	}()

	return llm.ChatStream(out), nil
}
