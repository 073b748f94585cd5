package agent

import (
	"fmt"

	"github.com/kadirpekel/conduit/pkg/llm"
)

// MaxIterationsExceededError is raised when the loop reaches its iteration
// cap without the model reaching a stop finish reason. Messages carries
// the partial conversation so callers can inspect or resume it.
type MaxIterationsExceededError struct {
	Messages []llm.Message
}

func (e *MaxIterationsExceededError) Error() string {
	return fmt.Sprintf("agent: exceeded max iterations with %d messages accumulated", len(e.Messages))
}

// ToolNotFoundError is raised when the model requests a tool the agent has
// no registration for.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("agent: tool %q not found", e.Name)
}

// InvalidToolArgumentsError is raised when a tool call's arguments fail to
// parse as JSON.
type InvalidToolArgumentsError struct {
	ToolName string
	Cause    error
}

func (e *InvalidToolArgumentsError) Error() string {
	return fmt.Sprintf("agent: invalid arguments for tool %q: %v", e.ToolName, e.Cause)
}

func (e *InvalidToolArgumentsError) Unwrap() error { return e.Cause }

// GuardrailPhase discriminates which hook a GuardrailBlockedError came from.
type GuardrailPhase string

const (
	PhaseBeforeRequest GuardrailPhase = "before_request"
	PhaseAfterResponse GuardrailPhase = "after_response"
)

// GuardrailBlockedError is raised when a guardrail hook refuses to let a
// request or response through.
type GuardrailBlockedError struct {
	Name   string
	Phase  GuardrailPhase
	Reason string
}

func (e *GuardrailBlockedError) Error() string {
	return fmt.Sprintf("agent: guardrail %q blocked %s: %s", e.Name, e.Phase, e.Reason)
}

// AbortedError is raised when ctx is cancelled mid-loop.
type AbortedError struct{ Cause error }

func (e *AbortedError) Error() string  { return fmt.Sprintf("agent: aborted: %v", e.Cause) }
func (e *AbortedError) Unwrap() error { return e.Cause }
