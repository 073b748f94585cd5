package stream

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conduit/pkg/llm"
)

func chunksOf(texts ...string) llm.ChatStream {
	ch := make(chan llm.StreamChunk, len(texts)+1)
	for _, t := range texts {
		ch <- llm.StreamChunk{Type: llm.ChunkContent, Delta: t}
	}
	ch <- llm.StreamChunk{Type: llm.ChunkDone, Usage: &llm.Usage{TotalTokens: 7}}
	close(ch)
	return llm.ChatStream(ch)
}

func TestCollectContentConcatenates(t *testing.T) {
	text, usage, err := CollectContent(context.Background(), chunksOf("Hel", "lo"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, 7, usage.TotalTokens)
}

func TestFilterDropsNonMatching(t *testing.T) {
	in := chunksOf("a", "b", "c")
	out := Filter(context.Background(), in, func(c llm.StreamChunk) bool {
		return c.Type == llm.ChunkContent
	})

	var n int
	for range out {
		n++
	}
	assert.Equal(t, 3, n)
}

func TestTapObservesWithoutMutating(t *testing.T) {
	var seen []string
	in := chunksOf("x", "y")
	out := Tap(context.Background(), in, func(c llm.StreamChunk) {
		if c.Type == llm.ChunkContent {
			seen = append(seen, c.Delta)
		}
	})

	text, _, err := CollectContent(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, "xy", text)
	assert.Equal(t, []string{"x", "y"}, seen)
}

func TestBufferBatchesBySize(t *testing.T) {
	in := chunksOf("a", "b", "c", "d")
	out := Buffer(context.Background(), in, 2, time.Second)

	var deltas []string
	for chunk := range out {
		if chunk.Type == llm.ChunkContent {
			deltas = append(deltas, chunk.Delta)
		}
	}
	assert.Equal(t, []string{"ab", "cd"}, deltas)
}

func TestTeeDuplicatesToAllConsumers(t *testing.T) {
	in := chunksOf("a", "b")
	outs := Tee(context.Background(), in, 2)

	text0, _, err := CollectContent(context.Background(), outs[0])
	require.NoError(t, err)
	text1, _, err := CollectContent(context.Background(), outs[1])
	require.NoError(t, err)

	assert.Equal(t, "ab", text0)
	assert.Equal(t, "ab", text1)
}

func TestMergeDrainsAllSources(t *testing.T) {
	merged := Merge(context.Background(), chunksOf("a"), chunksOf("b"))

	var contentChunks int
	for chunk := range merged {
		if chunk.Type == llm.ChunkContent {
			contentChunks++
		}
	}
	assert.Equal(t, 2, contentChunks)
}

func TestSSERoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := chunksOf("hi")

	err := ToSSEStream(context.Background(), &buf, in)
	require.NoError(t, err)

	parsed := ParseSSE(context.Background(), strings.NewReader(buf.String()))
	var text string
	for chunk := range parsed {
		if chunk.Type == llm.ChunkContent {
			text += chunk.Delta
		}
	}
	assert.Equal(t, "hi", text)
}
