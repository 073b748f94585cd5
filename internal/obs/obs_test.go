package obs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabledUsesNoopInstruments(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Meter)
	require.NotNil(t, p.Tracer)

	metrics, err := NewMetrics(p.Meter)
	require.NoError(t, err)
	// Recording against a no-op meter must not panic or error.
	metrics.RecordLLMCall(context.Background(), "openai", time.Millisecond, 10, 20, nil)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewEnabledExposesPrometheusCounters(t *testing.T) {
	p, err := New(Config{Enabled: true, ServiceName: "conduit-test"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	metrics, err := NewMetrics(p.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordLLMCall(ctx, "anthropic", 50*time.Millisecond, 5, 7, nil)
	metrics.RecordLLMCall(ctx, "anthropic", 10*time.Millisecond, 0, 0, errors.New("boom"))
	metrics.RecordAgentIteration(ctx, "assistant")
	metrics.RecordWorkflowNode(ctx, "plan", 5*time.Millisecond, nil)

	families, err := p.Registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["conduit_llm_calls_total"] || names["conduit_llm_calls"], "expected an llm calls metric family, got %v", mapKeys(names))
}

func mapKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
