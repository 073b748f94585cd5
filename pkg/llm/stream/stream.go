// Package stream provides combinators over llm.ChatStream: transform,
// filter, tap, buffer, tee, and merge, plus SSE encode/decode so a
// ChatStream can cross an HTTP boundary.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/kadirpekel/conduit/pkg/llm"
)

// CollectContent drains a stream, concatenating every content delta, and
// returns the final usage reported alongside the done chunk (if any).
func CollectContent(ctx context.Context, in llm.ChatStream) (string, llm.Usage, error) {
	var text string
	var usage llm.Usage
	for {
		select {
		case <-ctx.Done():
			return text, usage, ctx.Err()
		case chunk, ok := <-in:
			if !ok {
				return text, usage, nil
			}
			switch chunk.Type {
			case llm.ChunkContent:
				text += chunk.Delta
			case llm.ChunkDone:
				if chunk.Usage != nil {
					usage = *chunk.Usage
				}
			case llm.ChunkError:
				return text, usage, chunk.Error
			}
		}
	}
}

// Transform applies fn to every chunk, forwarding what it returns. A chunk
// mapped to the zero value with ok=false is dropped.
func Transform(ctx context.Context, in llm.ChatStream, fn func(llm.StreamChunk) (llm.StreamChunk, bool)) llm.ChatStream {
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-in:
				if !ok {
					return
				}
				mapped, keep := fn(chunk)
				if !keep {
					continue
				}
				select {
				case out <- mapped:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return llm.ChatStream(out)
}

// Filter keeps only chunks for which pred returns true.
func Filter(ctx context.Context, in llm.ChatStream, pred func(llm.StreamChunk) bool) llm.ChatStream {
	return Transform(ctx, in, func(c llm.StreamChunk) (llm.StreamChunk, bool) { return c, pred(c) })
}

// Tap calls fn for every chunk's side effect (e.g. logging, metrics) without
// altering the stream.
func Tap(ctx context.Context, in llm.ChatStream, fn func(llm.StreamChunk)) llm.ChatStream {
	return Transform(ctx, in, func(c llm.StreamChunk) (llm.StreamChunk, bool) {
		fn(c)
		return c, true
	})
}

// Buffer batches chunks until maxSize is reached or maxWait elapses since
// the last flush, emitting each batch as a synthetic content chunk whose
// Delta is the concatenation of the batch's content deltas. Non-content
// chunks flush the current batch immediately and pass through unchanged.
func Buffer(ctx context.Context, in llm.ChatStream, maxSize int, maxWait time.Duration) llm.ChatStream {
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)

		var batch []string
		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			merged := ""
			for _, s := range batch {
				merged += s
			}
			batch = batch[:0]
			select {
			case out <- llm.StreamChunk{Type: llm.ChunkContent, Delta: merged}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		timer := time.NewTimer(maxWait)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if !flush() {
					return
				}
				timer.Reset(maxWait)
			case chunk, ok := <-in:
				if !ok {
					flush()
					return
				}
				if chunk.Type != llm.ChunkContent {
					if !flush() {
						return
					}
					select {
					case out <- chunk:
					case <-ctx.Done():
						return
					}
					continue
				}
				batch = append(batch, chunk.Delta)
				if len(batch) >= maxSize {
					if !flush() {
						return
					}
					if !timer.Stop() {
						<-timer.C
					}
					timer.Reset(maxWait)
				}
			}
		}
	}()
	return llm.ChatStream(out)
}

// Tee duplicates a stream into n independent consumers. Each consumer must
// be drained or the others will stall, since the source is read once and
// fanned out synchronously.
func Tee(ctx context.Context, in llm.ChatStream, n int) []llm.ChatStream {
	outs := make([]chan llm.StreamChunk, n)
	result := make([]llm.ChatStream, n)
	for i := range outs {
		outs[i] = make(chan llm.StreamChunk)
		result[i] = llm.ChatStream(outs[i])
	}

	go func() {
		defer func() {
			for _, o := range outs {
				close(o)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-in:
				if !ok {
					return
				}
				var wg sync.WaitGroup
				for _, o := range outs {
					wg.Add(1)
					go func(o chan llm.StreamChunk) {
						defer wg.Done()
						select {
						case o <- chunk:
						case <-ctx.Done():
						}
					}(o)
				}
				wg.Wait()
			}
		}
	}()
	return result
}

// Merge fans multiple streams into one, best-effort fair: each source is
// forwarded by its own goroutine and whichever chunk is ready first is sent,
// so per-source order is kept but there is no round-robin or fixed
// interleaving across streams. The merged stream closes once every source
// has closed.
func Merge(ctx context.Context, ins ...llm.ChatStream) llm.ChatStream {
	out := make(chan llm.StreamChunk)
	var wg sync.WaitGroup
	wg.Add(len(ins))

	for _, in := range ins {
		go func(in llm.ChatStream) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case chunk, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- chunk:
					case <-ctx.Done():
						return
					}
				}
			}
		}(in)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return llm.ChatStream(out)
}
