package obs

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments conduit's call sites record against,
// grounded on the teacher's per-domain counter/histogram split (agent,
// LLM, tool, workflow) but expressed as OTel instruments instead of raw
// Prometheus vectors.
type Metrics struct {
	llmCalls    metric.Int64Counter
	llmDuration metric.Float64Histogram
	llmTokens   metric.Int64Counter

	agentIterations metric.Int64Counter

	nodeRuns     metric.Int64Counter
	nodeDuration metric.Float64Histogram
}

// NewMetrics builds every instrument from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	llmCalls, err := meter.Int64Counter("conduit.llm.calls", metric.WithDescription("LLM provider calls"))
	if err != nil {
		return nil, fmt.Errorf("obs: llm.calls instrument: %w", err)
	}
	llmDuration, err := meter.Float64Histogram("conduit.llm.duration", metric.WithDescription("LLM call latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("obs: llm.duration instrument: %w", err)
	}
	llmTokens, err := meter.Int64Counter("conduit.llm.tokens", metric.WithDescription("Tokens consumed by LLM calls"))
	if err != nil {
		return nil, fmt.Errorf("obs: llm.tokens instrument: %w", err)
	}
	agentIterations, err := meter.Int64Counter("conduit.agent.iterations", metric.WithDescription("ReAct loop iterations"))
	if err != nil {
		return nil, fmt.Errorf("obs: agent.iterations instrument: %w", err)
	}
	nodeRuns, err := meter.Int64Counter("conduit.workflow.node_runs", metric.WithDescription("Workflow node executions"))
	if err != nil {
		return nil, fmt.Errorf("obs: workflow.node_runs instrument: %w", err)
	}
	nodeDuration, err := meter.Float64Histogram("conduit.workflow.node_duration", metric.WithDescription("Workflow node latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("obs: workflow.node_duration instrument: %w", err)
	}

	return &Metrics{
		llmCalls:        llmCalls,
		llmDuration:     llmDuration,
		llmTokens:       llmTokens,
		agentIterations: agentIterations,
		nodeRuns:        nodeRuns,
		nodeDuration:    nodeDuration,
	}, nil
}

// RecordLLMCall records one provider call's outcome and token usage.
func (m *Metrics) RecordLLMCall(ctx context.Context, provider string, dur time.Duration, promptTokens, completionTokens int, err error) {
	status := statusOf(err)
	attrs := metric.WithAttributes(attribute.String("provider", provider), attribute.String("status", status))
	m.llmCalls.Add(ctx, 1, attrs)
	m.llmDuration.Record(ctx, dur.Seconds(), attrs)
	if err == nil {
		m.llmTokens.Add(ctx, int64(promptTokens+completionTokens), metric.WithAttributes(attribute.String("provider", provider)))
	}
}

// RecordAgentIteration records one ReAct loop pass for agentName.
func (m *Metrics) RecordAgentIteration(ctx context.Context, agentName string) {
	m.agentIterations.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agentName)))
}

// RecordWorkflowNode records one node execution's outcome and latency.
func (m *Metrics) RecordWorkflowNode(ctx context.Context, node string, dur time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node", node), attribute.String("status", statusOf(err)))
	m.nodeRuns.Add(ctx, 1, attrs)
	m.nodeDuration.Record(ctx, dur.Seconds(), attrs)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
