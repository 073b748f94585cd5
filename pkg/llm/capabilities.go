package llm

import "strings"

// Capabilities describes what a (provider, model) pair supports, per
// spec.md §4.1's "Model capabilities table". Consumers (workflow LLM
// nodes, the ReAct agent) query this before composing a request that might
// not be honoured, e.g. tool calling on a model that doesn't support it.
type Capabilities struct {
	SupportsVision     bool
	SupportsTools      bool
	SupportsStreaming  bool
	SupportsJSONMode   bool
	MaxContext         int
	MaxOutput          int
}

type capabilityRule struct {
	provider    string
	modelPrefix string
	caps        Capabilities
}

// capabilityTable is ordered most-specific-first; GetCapabilities returns
// the first matching rule's caps, falling back to a provider-wide default.
var capabilityTable = []capabilityRule{
	{ProviderAnthropic, "claude-opus", Capabilities{true, true, true, true, 200_000, 8192}},
	{ProviderAnthropic, "claude-sonnet", Capabilities{true, true, true, true, 200_000, 8192}},
	{ProviderAnthropic, "claude-haiku", Capabilities{true, true, true, true, 200_000, 4096}},
	{ProviderOpenAI, "gpt-4o", Capabilities{true, true, true, true, 128_000, 16384}},
	{ProviderOpenAI, "gpt-4", Capabilities{false, true, true, true, 128_000, 4096}},
	{ProviderOpenAI, "gpt-3.5", Capabilities{false, true, true, false, 16_385, 4096}},
	{ProviderOpenAI, "o1", Capabilities{false, false, false, true, 200_000, 100_000}},
	{ProviderGemini, "gemini-1.5-pro", Capabilities{true, true, true, true, 1_000_000, 8192}},
	{ProviderGemini, "gemini-1.5-flash", Capabilities{true, true, true, true, 1_000_000, 8192}},
	{ProviderGemini, "gemini", Capabilities{true, true, true, true, 1_000_000, 8192}},
	{ProviderOllama, "", Capabilities{false, true, true, false, 8_192, 2048}},
}

var providerDefaults = map[string]Capabilities{
	ProviderAnthropic: {true, true, true, true, 200_000, 8192},
	ProviderOpenAI:    {false, true, true, true, 128_000, 4096},
	ProviderGemini:    {true, true, true, true, 1_000_000, 8192},
	ProviderOllama:    {false, false, true, false, 8_192, 2048},
}

// GetCapabilities returns the (provider, model) capability row.
func GetCapabilities(provider, model string) Capabilities {
	for _, rule := range capabilityTable {
		if rule.provider != provider {
			continue
		}
		if rule.modelPrefix == "" || strings.HasPrefix(model, rule.modelPrefix) {
			return rule.caps
		}
	}
	if caps, ok := providerDefaults[provider]; ok {
		return caps
	}
	return Capabilities{}
}
