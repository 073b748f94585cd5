package agent

import (
	"context"

	"github.com/kadirpekel/conduit/pkg/llm"
)

// Guardrail hooks the request/response boundary of one loop iteration. Each
// hook either returns the (possibly transformed) subject or an error, which
// the loop converts into a GuardrailBlockedError. Either hook may be nil.
type Guardrail struct {
	Name          string
	BeforeRequest func(ctx context.Context, messages []llm.Message) ([]llm.Message, error)
	AfterResponse func(ctx context.Context, content string) (string, error)
}

// runBeforeRequest applies every guardrail's BeforeRequest hook in
// declared order, threading the (possibly mutated) message list through.
func runBeforeRequest(ctx context.Context, guardrails []Guardrail, messages []llm.Message) ([]llm.Message, error) {
	for _, g := range guardrails {
		if g.BeforeRequest == nil {
			continue
		}
		next, err := g.BeforeRequest(ctx, messages)
		if err != nil {
			return nil, &GuardrailBlockedError{Name: g.Name, Phase: PhaseBeforeRequest, Reason: err.Error()}
		}
		messages = next
	}
	return messages, nil
}

// runAfterResponse applies every guardrail's AfterResponse hook in
// declared order, threading the (possibly mutated) content through.
func runAfterResponse(ctx context.Context, guardrails []Guardrail, content string) (string, error) {
	for _, g := range guardrails {
		if g.AfterResponse == nil {
			continue
		}
		next, err := g.AfterResponse(ctx, content)
		if err != nil {
			return "", &GuardrailBlockedError{Name: g.Name, Phase: PhaseAfterResponse, Reason: err.Error()}
		}
		content = next
	}
	return content, nil
}
