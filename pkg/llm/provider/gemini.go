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

// Gemini implements llm.Provider and llm.EmbeddingProvider against the
// Generative Language API.
type Gemini struct {
	http *httpx.Client
}

func NewGemini() *Gemini {
	return &Gemini{http: httpx.New(httpx.WithHeaderParser(httpx.ParseGenericRetryAfter))}
}

type geminiPart struct {
	Text             string          `json:"text,omitempty"`
	FunctionCall     *geminiFuncCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResp `json:"functionResponse,omitempty"`
}

type geminiFuncCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFuncResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiToolSet struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiToolSet         `json:"tools,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *Gemini) baseURL(a llm.Adapter) string {
	if a.BaseURL != "" {
		return a.BaseURL
	}
	return "https://generativelanguage.googleapis.com"
}

func (p *Gemini) buildRequest(messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions) geminiRequest {
	var system *geminiContent
	var contents []geminiContent

	for _, m := range messages {
		text := ""
		if m.Content != nil {
			text = *m.Content
		}
		switch m.Role {
		case llm.RoleSystem:
			if text != "" {
				system = &geminiContent{Parts: []geminiPart{{Text: text}}}
			}
		case llm.RoleUser:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: text}}})
		case llm.RoleTool:
			var args map[string]any
			_ = json.Unmarshal([]byte(text), &args)
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{
				FunctionResponse: &geminiFuncResp{Name: m.Name, Response: map[string]any{"result": text}},
			}}})
			_ = args
		case llm.RoleAssistant:
			var parts []geminiPart
			if text != "" {
				parts = append(parts, geminiPart{Text: text})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Function.Arguments, &args)
				parts = append(parts, geminiPart{FunctionCall: &geminiFuncCall{Name: tc.Function.Name, Args: args}})
			}
			contents = append(contents, geminiContent{Role: "model", Parts: parts})
		}
	}

	cfg := &geminiGenerationConfig{Temperature: opts.Temperature, TopP: opts.TopP, StopSequences: opts.Stop}
	if opts.MaxTokens != nil {
		cfg.MaxOutputTokens = *opts.MaxTokens
	}

	req := geminiRequest{Contents: contents, SystemInstruction: system, GenerationConfig: cfg}
	if len(tools) > 0 {
		var decls []geminiFunctionDecl
		for _, t := range tools {
			decls = append(decls, geminiFunctionDecl{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
		}
		req.Tools = []geminiToolSet{{FunctionDeclarations: decls}}
	}
	return req
}

func extractGemini(resp geminiResponse) (llm.Message, llm.Usage) {
	var text strings.Builder
	var toolCalls []llm.ToolCall
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				tc := llm.ToolCall{ID: part.FunctionCall.Name, Type: "function"}
				tc.Function.Name = part.FunctionCall.Name
				tc.Function.Arguments = args
				toolCalls = append(toolCalls, tc)
			}
		}
	}
	var usage llm.Usage
	if resp.UsageMetadata != nil {
		usage = llm.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	content := text.String()
	return llm.Message{Role: llm.RoleAssistant, Content: &content, ToolCalls: toolCalls}, usage
}

func (p *Gemini) Generate(ctx context.Context, adapter llm.Adapter, messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions) (llm.Message, llm.Usage, error) {
	req := p.buildRequest(messages, tools, opts)
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL(adapter), adapter.Model, adapter.APIKey)

	var resp geminiResponse
	_, err := p.http.DoJSON(ctx, http.MethodPost, url, nil, req, &resp)
	if err != nil {
		return llm.Message{}, llm.Usage{}, llm.NewError(llm.CodeNetwork, "gemini request failed", err)
	}
	if resp.Error != nil {
		return llm.Message{}, llm.Usage{}, llm.NewError(llm.CodeInternal, resp.Error.Message, nil)
	}
	msg, usage := extractGemini(resp)
	return msg, usage, nil
}

// GenerateStreaming uses Gemini's streamGenerateContent SSE endpoint.
func (p *Gemini) GenerateStreaming(ctx context.Context, adapter llm.Adapter, messages []llm.Message, tools []llm.ToolDefinition, opts llm.BaseChatOptions) (llm.ChatStream, error) {
	req := p.buildRequest(messages, tools, opts)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, llm.NewError(llm.CodeInvalidInput, "marshaling request", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s", p.baseURL(adapter), adapter.Model, adapter.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, llm.NewError(llm.CodeInternal, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, llm.NewError(llm.CodeNetwork, "gemini streaming request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, llm.NewError(llm.CodeServiceUnavailable, fmt.Sprintf("gemini returned HTTP %d", resp.StatusCode), nil)
	}

	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

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
			var chunk geminiResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
				out <- llm.StreamChunk{Type: llm.ChunkError, Error: fmt.Errorf("decoding stream chunk: %w", err)}
				return
			}
			msg, chunkUsage := extractGemini(chunk)
			if msg.Content != nil && *msg.Content != "" {
				out <- llm.StreamChunk{Type: llm.ChunkContent, Delta: *msg.Content}
			}
			for _, tc := range msg.ToolCalls {
				tc := tc
				out <- llm.StreamChunk{Type: llm.ChunkToolCall, ToolCall: &tc}
			}
			if chunkUsage.TotalTokens > 0 {
				usage = chunkUsage
			}
		}
		if err := scanner.Err(); err != nil {
			out <- llm.StreamChunk{Type: llm.ChunkError, Error: err}
			return
		}
		out <- llm.StreamChunk{Type: llm.ChunkDone, Usage: &usage}
	}()

	return llm.ChatStream(out), nil
}

// Embed calls Gemini's embedContent endpoint per text (no native batch
// endpoint for the free tier), used by pkg/memory's long-term vector tier.
func (p *Gemini) Embed(ctx context.Context, adapter llm.Adapter, texts []string) ([][]float32, llm.Usage, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		url := fmt.Sprintf("%s/v1beta/models/%s:embedContent?key=%s", p.baseURL(adapter), adapter.Model, adapter.APIKey)
		reqBody := map[string]any{
			"content": geminiContent{Parts: []geminiPart{{Text: text}}},
		}
		var resp struct {
			Embedding struct {
				Values []float32 `json:"values"`
			} `json:"embedding"`
		}
		if _, err := p.http.DoJSON(ctx, http.MethodPost, url, nil, reqBody, &resp); err != nil {
			return nil, llm.Usage{}, llm.NewError(llm.CodeNetwork, "gemini embed request failed", err)
		}
		out[i] = resp.Embedding.Values
	}
	return out, llm.Usage{}, nil
}
