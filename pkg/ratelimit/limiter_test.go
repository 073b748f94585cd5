package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int64) *DefaultLimiter {
	t.Helper()
	cfg := &Config{
		Enabled: true,
		Limits:  []LimitRule{{Type: LimitTypeRequests, Window: WindowMinute, Limit: limit}},
	}
	l, err := New(cfg, NewMemoryStore())
	require.NoError(t, err)
	return l
}

func TestCheckAndRecordAllowsUnderLimit(t *testing.T) {
	l := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := l.CheckAndRecord(ctx, ScopeAgent, "agent-1", 0, 1)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestCheckAndRecordBlocksOverLimit(t *testing.T) {
	l := newTestLimiter(t, 2)
	ctx := context.Background()

	_, err := l.CheckAndRecord(ctx, ScopeAgent, "agent-1", 0, 1)
	require.NoError(t, err)
	_, err = l.CheckAndRecord(ctx, ScopeAgent, "agent-1", 0, 1)
	require.NoError(t, err)

	result, err := l.CheckAndRecord(ctx, ScopeAgent, "agent-1", 0, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.NotEmpty(t, result.Reason)
}

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	cfg := &Config{Enabled: false, Limits: []LimitRule{{Type: LimitTypeRequests, Window: WindowMinute, Limit: 1}}}
	l, err := New(cfg, NewMemoryStore())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		result, err := l.CheckAndRecord(context.Background(), ScopeAgent, "x", 0, 1)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestResetClearsUsage(t *testing.T) {
	l := newTestLimiter(t, 1)
	ctx := context.Background()

	_, err := l.CheckAndRecord(ctx, ScopeAgent, "agent-1", 0, 1)
	require.NoError(t, err)
	blocked, err := l.CheckAndRecord(ctx, ScopeAgent, "agent-1", 0, 1)
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	require.NoError(t, l.Reset(ctx, ScopeAgent, "agent-1"))

	allowed, err := l.CheckAndRecord(ctx, ScopeAgent, "agent-1", 0, 1)
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
}

func TestScopesAreIndependent(t *testing.T) {
	l := newTestLimiter(t, 1)
	ctx := context.Background()

	_, err := l.CheckAndRecord(ctx, ScopeAgent, "agent-1", 0, 1)
	require.NoError(t, err)

	result, err := l.CheckAndRecord(ctx, ScopeAgent, "agent-2", 0, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&Config{Enabled: true, Limits: []LimitRule{{Type: "", Window: WindowMinute, Limit: 1}}}, NewMemoryStore())
	require.Error(t, err)

	_, err = New(&Config{Enabled: true, Limits: []LimitRule{{Type: LimitTypeRequests, Window: WindowMinute, Limit: 0}}}, NewMemoryStore())
	require.Error(t, err)

	_, err = New(nil, NewMemoryStore())
	require.Error(t, err)

	_, err = New(&Config{}, nil)
	require.Error(t, err)
}
