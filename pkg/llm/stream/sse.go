package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kadirpekel/conduit/pkg/llm"
)

// FormatSSE renders one StreamChunk as an SSE "data: ...\n\n" frame.
func FormatSSE(chunk llm.StreamChunk) (string, error) {
	payload := struct {
		Type         llm.ChunkType `json:"type"`
		Delta        string        `json:"delta,omitempty"`
		ToolCall     *llm.ToolCall `json:"tool_call,omitempty"`
		FinishReason string        `json:"finish_reason,omitempty"`
		Usage        *llm.Usage    `json:"usage,omitempty"`
		Error        string        `json:"error,omitempty"`
	}{
		Type: chunk.Type, Delta: chunk.Delta, ToolCall: chunk.ToolCall,
		FinishReason: chunk.FinishReason, Usage: chunk.Usage,
	}
	if chunk.Error != nil {
		payload.Error = chunk.Error.Error()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("stream: marshaling SSE chunk: %w", err)
	}
	return "data: " + string(data) + "\n\n", nil
}

// ToSSEStream writes every chunk of in to w as an SSE event, per §3's
// streaming response contract, flushing after each frame when w supports
// it. Returns once in is drained or ctx is cancelled.
func ToSSEStream(ctx context.Context, w io.Writer, in llm.ChatStream) error {
	flusher, _ := w.(http.Flusher)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-in:
			if !ok {
				return nil
			}
			frame, err := FormatSSE(chunk)
			if err != nil {
				return err
			}
			if _, err := io.WriteString(w, frame); err != nil {
				return fmt.Errorf("stream: writing SSE frame: %w", err)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// ParseSSE reads SSE frames from r and decodes each into a StreamChunk,
// the client-side counterpart of ToSSEStream/FormatSSE.
func ParseSSE(ctx context.Context, r io.Reader) llm.ChatStream {
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			var raw struct {
				Type         llm.ChunkType `json:"type"`
				Delta        string        `json:"delta,omitempty"`
				ToolCall     *llm.ToolCall `json:"tool_call,omitempty"`
				FinishReason string        `json:"finish_reason,omitempty"`
				Usage        *llm.Usage    `json:"usage,omitempty"`
				Error        string        `json:"error,omitempty"`
			}
			if err := json.Unmarshal([]byte(data), &raw); err != nil {
				out <- llm.StreamChunk{Type: llm.ChunkError, Error: fmt.Errorf("stream: decoding SSE frame: %w", err)}
				return
			}

			chunk := llm.StreamChunk{
				Type: raw.Type, Delta: raw.Delta, ToolCall: raw.ToolCall,
				FinishReason: raw.FinishReason, Usage: raw.Usage,
			}
			if raw.Error != "" {
				chunk.Error = fmt.Errorf("%s", raw.Error)
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Type == llm.ChunkDone || chunk.Type == llm.ChunkError {
				return
			}
		}
	}()
	return llm.ChatStream(out)
}
