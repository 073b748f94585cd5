package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleBasedEvaluatorPersonalInfoScoresHigh(t *testing.T) {
	score, err := RuleBasedEvaluator(context.Background(), "My name is Alice and I always want you to remember this.")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, DefaultLongThreshold)
}

func TestRuleBasedEvaluatorShortContentScoresLower(t *testing.T) {
	base, err := RuleBasedEvaluator(context.Background(), "ok")
	require.NoError(t, err)
	assert.Less(t, base, 0.5)
}

func TestRuleBasedEvaluatorClampsToUnitRange(t *testing.T) {
	score, err := RuleBasedEvaluator(context.Background(), "My name is Bob Smith, always remember to call me, I love this, right? 123")
	require.NoError(t, err)
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestHybridEvaluatorBlendsScores(t *testing.T) {
	llm := func(ctx context.Context, content string) (float64, error) { return 1.0, nil }
	hybrid := HybridEvaluator(llm, 0.5)

	rule, err := RuleBasedEvaluator(context.Background(), "hello there")
	require.NoError(t, err)

	blended, err := hybrid(context.Background(), "hello there")
	require.NoError(t, err)
	assert.InDelta(t, 0.5*1.0+0.5*rule, blended, 1e-9)
}

func TestHybridEvaluatorFallsBackOnLLMFailure(t *testing.T) {
	llm := func(ctx context.Context, content string) (float64, error) { return 0, errors.New("llm unavailable") }
	hybrid := HybridEvaluator(llm, 0.7)

	rule, err := RuleBasedEvaluator(context.Background(), "hello there")
	require.NoError(t, err)

	score, err := hybrid(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, rule, score)
}

func TestHybridEvaluatorNilLLMUsesRuleOnly(t *testing.T) {
	hybrid := HybridEvaluator(nil, 0.7)
	rule, err := RuleBasedEvaluator(context.Background(), "hello there")
	require.NoError(t, err)

	score, err := hybrid(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, rule, score)
}
