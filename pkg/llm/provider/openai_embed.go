package provider

import (
	"context"
	"net/http"

	"github.com/kadirpekel/conduit/pkg/llm"
)

// Embed calls OpenAI's /v1/embeddings batch endpoint.
func (p *OpenAI) Embed(ctx context.Context, adapter llm.Adapter, texts []string) ([][]float32, llm.Usage, error) {
	reqBody := map[string]any{"model": adapter.Model, "input": texts}
	headers := map[string]string{"Authorization": "Bearer " + adapter.APIKey}

	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Usage struct {
			PromptTokens int `json:"prompt_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage"`
	}
	if _, err := p.http.DoJSON(ctx, http.MethodPost, p.baseURL(adapter)+"/v1/embeddings", headers, reqBody, &resp); err != nil {
		return nil, llm.Usage{}, llm.NewError(llm.CodeNetwork, "openai embed request failed", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	usage := llm.Usage{PromptTokens: resp.Usage.PromptTokens, TotalTokens: resp.Usage.TotalTokens}
	return out, usage, nil
}
