// Package llmnode implements the NodeLLM contract: turn a node's input into
// a chat request, drive it through an llm.Registry, and surface the
// response (optionally schema-validated) as the node's output while
// forwarding streamed deltas through the executor's TokenSink.
//
// Grounded on the ReAct loop's own request/consume shape in pkg/agent.
package llmnode

import (
	"context"
	"fmt"

	"github.com/kadirpekel/conduit/pkg/llm"
	"github.com/kadirpekel/conduit/pkg/schema"
	"github.com/kadirpekel/conduit/pkg/workflow"
	"github.com/kadirpekel/conduit/pkg/workflow/exec"
)

// Spec configures an LLM node.
type Spec struct {
	Registry *llm.Registry
	Adapter  llm.Adapter
	Tools    []llm.ToolDefinition

	// SystemPrompt, if set, is sent as the leading system message ahead of
	// the node's input.
	SystemPrompt string
	ChatOptions  llm.BaseChatOptions

	// OutputSchema, when set, is validated against the response content via
	// pkg/schema and the parsed value becomes the node's output instead of
	// the raw string.
	OutputSchema []byte
	Strict       bool
}

// New wraps spec as a NodeLLM executor. Input is either a plain string
// (used as the user message content) or a map[string]any with a "prompt"
// key, so upstream nodes that produce structured output can still drive an
// LLM node without a separate reshaping node.
func New(spec Spec) workflow.Executor {
	return func(ctx context.Context, snap workflow.Snapshot, input any) (any, error) {
		prompt, err := promptFrom(input)
		if err != nil {
			return nil, err
		}

		messages := buildMessages(spec.SystemPrompt, prompt)

		stream, err := spec.Registry.Chat(ctx, spec.Adapter, messages, spec.Tools, spec.ChatOptions)
		if err != nil {
			return nil, err
		}

		content, toolCalls, err := consume(ctx, snap.CurrentNode, stream)
		if err != nil {
			return nil, err
		}

		if len(toolCalls) > 0 {
			return map[string]any{"content": content, "tool_calls": toolCalls}, nil
		}

		if len(spec.OutputSchema) > 0 {
			parsed, err := schema.Parse(content, spec.OutputSchema, schema.Options{Strict: spec.Strict})
			if err != nil {
				return nil, err
			}
			return parsed.Value, nil
		}

		return content, nil
	}
}

func promptFrom(input any) (string, error) {
	switch v := input.(type) {
	case string:
		return v, nil
	case map[string]any:
		if p, ok := v["prompt"].(string); ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("llmnode: input must be a string or a map with a \"prompt\" string field, got %T", input)
}

func buildMessages(systemPrompt, prompt string) []llm.Message {
	var messages []llm.Message
	if systemPrompt != "" {
		sp := systemPrompt
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: &sp})
	}
	p := prompt
	return append(messages, llm.Message{Role: llm.RoleUser, Content: &p})
}

// consume drains stream, concatenating content deltas (forwarding each one
// through the node's TokenSink as it arrives) and collecting tool calls,
// mirroring pkg/agent's own stream-draining loop.
func consume(ctx context.Context, nodeName string, stream llm.ChatStream) (string, []llm.ToolCall, error) {
	sink, hasSink := exec.TokenSinkFromContext(ctx)

	var content string
	var toolCalls []llm.ToolCall
	index := 0

	for chunk := range stream {
		switch chunk.Type {
		case llm.ChunkContent:
			content += chunk.Delta
			if hasSink && chunk.Delta != "" {
				sink(nodeName, chunk.Delta, index)
				index++
			}
		case llm.ChunkToolCall:
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
		case llm.ChunkError:
			return "", nil, chunk.Error
		}
	}
	return content, toolCalls, nil
}
