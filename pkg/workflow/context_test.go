package workflow

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextVariablesRoundTrip(t *testing.T) {
	ctx := NewContext()
	ctx.SetVariable("k", "v")
	v, ok := ctx.GetVariable("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = ctx.GetVariable("missing")
	assert.False(t, ok)
}

func TestContextHasNodeOutputsBarrier(t *testing.T) {
	ctx := NewContext()
	assert.False(t, ctx.HasNodeOutputs("a", "b"))

	ctx.SetNodeOutput("a", "out-a")
	assert.False(t, ctx.HasNodeOutputs("a", "b"))

	ctx.SetNodeOutput("b", "out-b")
	assert.True(t, ctx.HasNodeOutputs("a", "b"))
}

func TestContextSnapshotIsFrozenCopy(t *testing.T) {
	ctx := NewContext()
	ctx.SetVariable("k", "v1")
	ctx.SetNodeOutput("a", "out-a")

	snap := ctx.Snapshot("a")
	assert.Equal(t, "v1", snap.Variables["k"])
	assert.Equal(t, "out-a", snap.NodeOutputs["a"])
	assert.Equal(t, "a", snap.CurrentNode)

	ctx.SetVariable("k", "v2")
	assert.Equal(t, "v1", snap.Variables["k"], "snapshot must not observe later mutations")
}

func TestContextLoopCounter(t *testing.T) {
	ctx := NewContext()
	assert.Equal(t, 0, ctx.LoopCount("loop1"))
	assert.Equal(t, 1, ctx.IncrementLoop("loop1"))
	assert.Equal(t, 2, ctx.IncrementLoop("loop1"))
	assert.Equal(t, 2, ctx.LoopCount("loop1"))
}

func TestContextConcurrentAccess(t *testing.T) {
	ctx := NewContext()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			ctx.SetNodeOutput("node", "x")
		}(i)
		go func(i int) {
			defer wg.Done()
			ctx.GetNodeOutput("node")
		}(i)
	}
	wg.Wait()
}

func TestContextErrorsAccumulate(t *testing.T) {
	ctx := NewContext()
	ctx.AddError(assert.AnError)
	ctx.AddError(assert.AnError)
	assert.Len(t, ctx.Errors(), 2)
}
