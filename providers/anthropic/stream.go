package anthropic

import (
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// drainStream walks every event on stream, emitting a "provider:delta"
// signal per text fragment and a "provider:usage" signal once the
// message-delta usage totals arrive, and returns the accumulated
// response text. Grounded on the teacher's anthropicChunkProcessor.Handle
// switch over event.AsAny(), collapsed from model.Chunk translation down
// to the two event kinds a thin provider adapter needs.
func drainStream(stream *ssestream.Stream[sdk.MessageStreamEventUnion], emit func(name string, payload any)) (any, error) {
	defer stream.Close()

	var text strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				text.WriteString(delta.Text)
				if emit != nil {
					emit("provider:delta", map[string]any{"text": delta.Text})
				}
			}
		case sdk.MessageDeltaEvent:
			if emit != nil {
				emit("provider:usage", map[string]any{
					"inputTokens":  int(ev.Usage.InputTokens),
					"outputTokens": int(ev.Usage.OutputTokens),
				})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: stream: %w", err)
	}
	return text.String(), nil
}
