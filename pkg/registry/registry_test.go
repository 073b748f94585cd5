package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseRegistryRegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))

	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestBaseRegistryRejectsEmptyName(t *testing.T) {
	r := NewBaseRegistry[int]()
	err := r.Register("", 1)
	require.Error(t, err)
}

func TestBaseRegistryRejectsDuplicate(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	err := r.Register("a", 2)
	require.Error(t, err)
}

func TestBaseRegistryRemoveAndCount(t *testing.T) {
	r := NewBaseRegistry[string]()
	require.NoError(t, r.Register("x", "one"))
	require.NoError(t, r.Register("y", "two"))
	assert.Equal(t, 2, r.Count())

	require.NoError(t, r.Remove("x"))
	assert.Equal(t, 1, r.Count())

	err := r.Remove("x")
	require.Error(t, err)
}

func TestBaseRegistryListAndClear(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))
	assert.Len(t, r.List(), 2)

	r.Clear()
	assert.Equal(t, 0, r.Count())
}
