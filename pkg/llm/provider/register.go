package provider

import "github.com/kadirpekel/conduit/pkg/llm"

// NewDefaultRegistry builds an llm.Registry with all four built-in vendor
// adapters registered, chat and embedding alike (Anthropic has no public
// embeddings endpoint and is chat-only).
func NewDefaultRegistry() *llm.Registry {
	reg := llm.NewRegistry()

	anthropic := NewAnthropic()
	openai := NewOpenAI()
	gemini := NewGemini()
	ollama := NewOllama()

	_ = reg.Register(llm.ProviderAnthropic, anthropic)
	_ = reg.Register(llm.ProviderOpenAI, openai)
	_ = reg.Register(llm.ProviderGemini, gemini)
	_ = reg.Register(llm.ProviderOllama, ollama)

	_ = reg.RegisterEmbedder(llm.ProviderOpenAI, openai)
	_ = reg.RegisterEmbedder(llm.ProviderGemini, gemini)
	_ = reg.RegisterEmbedder(llm.ProviderOllama, ollama)

	return reg
}
