package memory

import (
	"context"
	"regexp"
	"strings"
)

// Evaluator scores content in [0,1] for routing and eviction purposes.
type Evaluator func(ctx context.Context, content string) (float64, error)

var (
	personalInfoPattern = regexp.MustCompile(`(?i)\bmy (name|email|phone|address|birthday|age) is\b|\bi (live|work) (at|in)\b`)
	instructionPattern  = regexp.MustCompile(`(?i)\b(always|never|remember to|don't forget|please)\b`)
	factPattern         = regexp.MustCompile(`(?i)\b(is|are|was|were)\b.{0,40}\b(true|false|fact|because)\b`)
	namePattern         = regexp.MustCompile(`\b[A-Z][a-z]{2,}\s[A-Z][a-z]{2,}\b`)
	emotionPattern      = regexp.MustCompile(`(?i)\b(love|hate|happy|sad|angry|excited|worried|afraid)\b`)
	questionPattern     = regexp.MustCompile(`\?`)
	numberPattern       = regexp.MustCompile(`\d`)
)

// RuleBasedEvaluator scores content via regex signal detection: a base of
// 0.5, nudged up or down by detected signals, clamped to [0,1].
func RuleBasedEvaluator(_ context.Context, content string) (float64, error) {
	score := 0.5

	if personalInfoPattern.MatchString(content) {
		score += 0.25
	}
	if instructionPattern.MatchString(content) {
		score += 0.20
	}
	if factPattern.MatchString(content) {
		score += 0.10
	}
	if namePattern.MatchString(content) {
		score += 0.10
	}
	if emotionPattern.MatchString(content) {
		score += 0.05
	}
	if questionPattern.MatchString(content) {
		score += 0.05
	}
	if numberPattern.MatchString(content) {
		score += 0.05
	}

	trimmed := strings.TrimSpace(content)
	switch {
	case len(trimmed) < 20:
		score -= 0.10
	case len(trimmed) > 200:
		score += 0.05
	}

	return clamp01(score), nil
}

// HybridEvaluator blends an LLM-based evaluator with the rule-based one,
// falling back to the rule-based score alone if the LLM evaluator fails.
func HybridEvaluator(llmEvaluator Evaluator, llmWeight float64) Evaluator {
	if llmWeight < 0 {
		llmWeight = 0
	}
	if llmWeight > 1 {
		llmWeight = 1
	}

	return func(ctx context.Context, content string) (float64, error) {
		ruleScore, err := RuleBasedEvaluator(ctx, content)
		if err != nil {
			return 0, err
		}
		if llmEvaluator == nil {
			return ruleScore, nil
		}

		llmScore, err := llmEvaluator(ctx, content)
		if err != nil {
			return ruleScore, nil
		}

		blended := llmWeight*llmScore + (1-llmWeight)*ruleScore
		return clamp01(blended), nil
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
