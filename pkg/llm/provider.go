package llm

import (
	"context"
	"fmt"

	"github.com/kadirpekel/conduit/pkg/registry"
)

// Provider is what an adapter-specific implementation (anthropic, openai,
// gemini, ollama) must satisfy. Generate is the single-shot call;
// GenerateStreaming is the lazy chunk stream every chat request ultimately
// drives.
type Provider interface {
	Generate(ctx context.Context, adapter Adapter, messages []Message, tools []ToolDefinition, opts BaseChatOptions) (Message, Usage, error)
	GenerateStreaming(ctx context.Context, adapter Adapter, messages []Message, tools []ToolDefinition, opts BaseChatOptions) (ChatStream, error)
}

// EmbeddingProvider is implemented by adapters that can embed text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, adapter Adapter, texts []string) ([][]float32, Usage, error)
}

// Registry dispatches to a Provider by Adapter.Provider, mirroring the
// teacher's generic BaseRegistry-backed LLMRegistry.
type Registry struct {
	*registry.BaseRegistry[Provider]
	embedders *registry.BaseRegistry[EmbeddingProvider]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
		embedders:    registry.NewBaseRegistry[EmbeddingProvider](),
	}
}

// RegisterEmbedder registers an embedding-capable provider under name.
func (r *Registry) RegisterEmbedder(name string, p EmbeddingProvider) error {
	return r.embedders.Register(name, p)
}

// Dispatch resolves the Provider implementation for adapter.Provider,
// failing with CodeUnsupportedProvider for anything not registered.
func (r *Registry) Dispatch(adapter Adapter) (Provider, error) {
	p, ok := r.Get(adapter.Provider)
	if !ok {
		return nil, NewError(CodeUnsupportedProvider, fmt.Sprintf("unsupported provider: %s", adapter.Provider), nil)
	}
	return p, nil
}

// DispatchEmbedder resolves the embedding-capable Provider for adapter.Provider.
func (r *Registry) DispatchEmbedder(adapter Adapter) (EmbeddingProvider, error) {
	p, ok := r.embedders.Get(adapter.Provider)
	if !ok {
		return nil, NewError(CodeUnsupportedProvider, fmt.Sprintf("provider %s does not support embeddings", adapter.Provider), nil)
	}
	return p, nil
}

// Chat is the top-level C1 entry point: resolve credentials, dispatch to
// the adapter's provider, and return its lazy chunk stream.
func (r *Registry) Chat(ctx context.Context, adapter Adapter, messages []Message, tools []ToolDefinition, opts BaseChatOptions) (ChatStream, error) {
	resolved, err := adapter.ResolveCredential()
	if err != nil {
		return nil, err
	}
	provider, err := r.Dispatch(resolved)
	if err != nil {
		return nil, err
	}
	return provider.GenerateStreaming(ctx, resolved, messages, tools, opts)
}

// GenerateEmbedding computes a single embedding vector.
func (r *Registry) GenerateEmbedding(ctx context.Context, adapter Adapter, text string) ([]float32, Usage, error) {
	vecs, usage, err := r.GenerateBatchEmbeddings(ctx, adapter, []string{text})
	if err != nil {
		return nil, Usage{}, err
	}
	return vecs[0], usage, nil
}

// GenerateBatchEmbeddings computes embeddings for multiple texts, preserving
// input order.
func (r *Registry) GenerateBatchEmbeddings(ctx context.Context, adapter Adapter, texts []string) ([][]float32, Usage, error) {
	resolved, err := adapter.ResolveCredential()
	if err != nil {
		return nil, Usage{}, err
	}
	embedder, err := r.DispatchEmbedder(resolved)
	if err != nil {
		return nil, Usage{}, err
	}
	return embedder.Embed(ctx, resolved, texts)
}
