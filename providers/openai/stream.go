package openai

import (
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

// drainStream walks every chunk on stream, emitting a "provider:delta"
// signal per non-empty choice delta and a "provider:usage" signal once
// a chunk carries usage totals, and returns the accumulated response
// text. Mirrors providers/anthropic's drainStream: both SDKs are
// generated clients exposing the same ssestream.Stream[T] shape, so the
// two adapters share the same drain idiom over different event types.
func drainStream(stream *ssestream.Stream[openai.ChatCompletionChunk], emit func(name string, payload any)) (any, error) {
	defer stream.Close()

	var text strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				text.WriteString(delta)
				if emit != nil {
					emit("provider:delta", map[string]any{"text": delta})
				}
			}
		}
		if chunk.Usage.TotalTokens > 0 && emit != nil {
			emit("provider:usage", map[string]any{
				"inputTokens":  int(chunk.Usage.PromptTokens),
				"outputTokens": int(chunk.Usage.CompletionTokens),
			})
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: stream: %w", err)
	}
	return text.String(), nil
}
