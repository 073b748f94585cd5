package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct{ name string }

func (s *stubTool) Name() string                 { return s.name }
func (s *stubTool) Description() string          { return "stub" }
func (s *stubTool) InputSchema() map[string]any  { return nil }
func (s *stubTool) NeedsApproval() bool          { return false }
func (s *stubTool) Execute(context.Context, map[string]any) (Result, error) {
	return Result{Success: true}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})

	tl, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", tl.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "first"})
	r.Register(&stubTool{name: "second"})

	names := make([]string, 0, 2)
	for _, tl := range r.List() {
		names = append(names, tl.Name())
	}
	assert.Equal(t, []string{"first", "second"}, names)
}

func TestRegistryReplaceKeepsOriginalPosition(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})
	r.Register(&stubTool{name: "a"})

	assert.Len(t, r.List(), 2)
	assert.Equal(t, "a", r.List()[0].Name())
}
