package llm

import "fmt"

// BaseChatOptions is the common option shape every provider projects its
// own request from, per spec.md §4.1 "Option normalization".
type BaseChatOptions struct {
	Temperature      *float64 // [0, 2]
	TopP             *float64 // [0, 1]
	PresencePenalty  *float64 // [-2, 2], OpenAI only
	FrequencyPenalty *float64 // [-2, 2], OpenAI only
	MaxTokens        *int
	Stream           bool
	Stop             []string
}

// ValidateOptions reports every violation rather than stopping at the
// first, so callers can decide whether to fail or proceed with warnings.
func ValidateOptions(provider string, opts BaseChatOptions) []string {
	var problems []string

	if opts.Temperature != nil && (*opts.Temperature < 0 || *opts.Temperature > 2) {
		problems = append(problems, fmt.Sprintf("temperature %.3f out of range [0,2]", *opts.Temperature))
	}
	if opts.TopP != nil && (*opts.TopP < 0 || *opts.TopP > 1) {
		problems = append(problems, fmt.Sprintf("top_p %.3f out of range [0,1]", *opts.TopP))
	}
	if provider != ProviderOpenAI {
		if opts.PresencePenalty != nil {
			problems = append(problems, "presence_penalty is only supported by the openai provider")
		}
		if opts.FrequencyPenalty != nil {
			problems = append(problems, "frequency_penalty is only supported by the openai provider")
		}
	} else {
		if opts.PresencePenalty != nil && (*opts.PresencePenalty < -2 || *opts.PresencePenalty > 2) {
			problems = append(problems, fmt.Sprintf("presence_penalty %.3f out of range [-2,2]", *opts.PresencePenalty))
		}
		if opts.FrequencyPenalty != nil && (*opts.FrequencyPenalty < -2 || *opts.FrequencyPenalty > 2) {
			problems = append(problems, fmt.Sprintf("frequency_penalty %.3f out of range [-2,2]", *opts.FrequencyPenalty))
		}
	}

	if opts.MaxTokens != nil {
		if cap, ok := maxOutputCap[provider]; ok && *opts.MaxTokens > cap {
			problems = append(problems, fmt.Sprintf("max_tokens %d exceeds %s's cap of %d", *opts.MaxTokens, provider, cap))
		}
	}

	return problems
}

// maxOutputCap bounds maxTokens per provider per spec.md §4.1
// ("128k / 200k / 1,000k"). These are coarse, provider-wide ceilings; the
// per-model table in capabilities.go is more precise when a specific model
// is known.
var maxOutputCap = map[string]int{
	ProviderOpenAI:    128_000,
	ProviderAnthropic: 200_000,
	ProviderGemini:    1_000_000,
	ProviderOllama:    128_000,
}
