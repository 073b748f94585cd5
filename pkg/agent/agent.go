// Package agent implements the bounded ReAct loop: call the model, dispatch
// any requested tool calls, feed results back, repeat until a stop finish
// reason or the iteration cap.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kadirpekel/conduit/pkg/llm"
	"github.com/kadirpekel/conduit/pkg/schema"
	"github.com/kadirpekel/conduit/pkg/tool"
)

// DefaultMaxIterations bounds the loop when Config.MaxIterations is unset.
const DefaultMaxIterations = 25

// Config wires one agent's dependencies and policy.
type Config struct {
	Registry      *llm.Registry
	Adapter       llm.Adapter
	Tools         *tool.Registry
	Guardrails    []Guardrail
	MaxIterations int

	// OutputSchema, when set, is validated against the terminal content via
	// pkg/schema once the loop reaches a stop finish reason.
	OutputSchema []byte
	Strict       bool
}

func (c Config) maxIterations() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

// Result is what Run returns.
type Result struct {
	Content         string
	ToolCalls       []llm.ToolCall
	Messages        []llm.Message
	StructuredValue any
	Usage           llm.Usage
}

// Agent runs the ReAct loop described by a Config.
type Agent struct {
	cfg Config
}

// New builds an Agent from cfg.
func New(cfg Config) *Agent {
	return &Agent{cfg: cfg}
}

// RunOptions overrides Config for a single call.
type RunOptions struct {
	MaxIterations int // 0 inherits Config.MaxIterations
	ChatOptions   llm.BaseChatOptions
}

// Run executes the loop to completion and returns the terminal Result.
func (a *Agent) Run(ctx context.Context, messages []llm.Message, opts RunOptions) (*Result, error) {
	maxIter := a.cfg.maxIterations()
	if opts.MaxIterations > 0 {
		maxIter = opts.MaxIterations
	}

	toolDefs := a.toolDefinitions()

	for i := 0; i < maxIter; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &AbortedError{Cause: err}
		}

		prepared, err := runBeforeRequest(ctx, a.cfg.Guardrails, messages)
		if err != nil {
			return nil, err
		}
		messages = prepared

		stream, err := a.cfg.Registry.Chat(ctx, a.cfg.Adapter, messages, toolDefs, opts.ChatOptions)
		if err != nil {
			return nil, err
		}

		content, toolCalls, usage, err := consume(stream)
		if err != nil {
			return nil, err
		}

		if len(toolCalls) == 0 {
			finalContent, err := runAfterResponse(ctx, a.cfg.Guardrails, content)
			if err != nil {
				return nil, err
			}

			result := &Result{
				Content:   finalContent,
				ToolCalls: nil,
				Messages:  append(messages, assistantMessage(finalContent, nil)),
				Usage:     usage,
			}
			if len(a.cfg.OutputSchema) > 0 {
				parsed, err := schema.Parse(finalContent, a.cfg.OutputSchema, schema.Options{Strict: a.cfg.Strict})
				if err != nil {
					return nil, err
				}
				result.StructuredValue = parsed.Value
			}
			return result, nil
		}

		messages = append(messages, assistantMessage(content, toolCalls))

		for _, tc := range toolCalls {
			if err := ctx.Err(); err != nil {
				return nil, &AbortedError{Cause: err}
			}

			toolMsg, err := a.callTool(ctx, tc)
			if err != nil {
				var notFound *ToolNotFoundError
				var badArgs *InvalidToolArgumentsError
				if asErrorType(err, &notFound) || asErrorType(err, &badArgs) {
					return nil, err
				}
			}
			messages = append(messages, toolMsg)
		}
	}

	return nil, &MaxIterationsExceededError{Messages: messages}
}

func (a *Agent) callTool(ctx context.Context, tc llm.ToolCall) (llm.Message, error) {
	t, ok := a.cfg.Tools.Get(tc.Function.Name)
	if !ok {
		err := &ToolNotFoundError{Name: tc.Function.Name}
		return errorToolMessage(tc, err), err
	}
	if t.NeedsApproval() {
		return toolMessage(tc, fmt.Sprintf("Error: tool %q requires human approval, which the agent loop does not grant", tc.Function.Name)), nil
	}

	var args map[string]any
	if len(tc.Function.Arguments) > 0 {
		if jsonErr := json.Unmarshal(tc.Function.Arguments, &args); jsonErr != nil {
			err := &InvalidToolArgumentsError{ToolName: tc.Function.Name, Cause: jsonErr}
			return errorToolMessage(tc, err), err
		}
	}

	result, execErr := t.Execute(ctx, args)
	if execErr != nil || !result.Success {
		msg := result.Error
		if msg == "" && execErr != nil {
			msg = execErr.Error()
		}
		return toolMessage(tc, fmt.Sprintf("Error: %s", msg)), nil
	}

	data, marshalErr := json.Marshal(result.Data)
	if marshalErr != nil {
		return toolMessage(tc, fmt.Sprintf("Error: %v", marshalErr)), nil
	}
	return toolMessage(tc, string(data)), nil
}

func (a *Agent) toolDefinitions() []llm.ToolDefinition {
	if a.cfg.Tools == nil {
		return nil
	}
	tools := a.cfg.Tools.List()
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// consume drains a ChatStream, concatenating content deltas and collecting
// complete tool calls, returning an error immediately on a ChunkError chunk.
func consume(stream llm.ChatStream) (string, []llm.ToolCall, llm.Usage, error) {
	var content string
	var toolCalls []llm.ToolCall
	var usage llm.Usage

	for chunk := range stream {
		switch chunk.Type {
		case llm.ChunkContent:
			content += chunk.Delta
		case llm.ChunkToolCall:
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
		case llm.ChunkDone:
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
		case llm.ChunkError:
			return "", nil, llm.Usage{}, chunk.Error
		}
	}
	return content, toolCalls, usage, nil
}

func assistantMessage(content string, toolCalls []llm.ToolCall) llm.Message {
	c := content
	return llm.Message{Role: llm.RoleAssistant, Content: &c, ToolCalls: toolCalls}
}

func toolMessage(tc llm.ToolCall, content string) llm.Message {
	return llm.Message{Role: llm.RoleTool, Content: &content, ToolCallID: toolCallID(tc), Name: tc.Function.Name}
}

func errorToolMessage(tc llm.ToolCall, err error) llm.Message {
	return toolMessage(tc, fmt.Sprintf("Error: %s", err.Error()))
}

func toolCallID(tc llm.ToolCall) string {
	if tc.ID != "" {
		return tc.ID
	}
	return uuid.NewString()
}

// asErrorType reports whether err (or something it wraps) matches target's
// type, setting *target on success — a small errors.As wrapper kept local
// to avoid importing the stdlib errors package just for this one call site
// repeated twice above.
func asErrorType[T error](err error, target *T) bool {
	for err != nil {
		if t, ok := err.(T); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
