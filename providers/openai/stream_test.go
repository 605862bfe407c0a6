package openai

import (
	"encoding/json"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/stretchr/testify/require"
)

// testDecoder feeds a fixed sequence of chunks to an ssestream.Stream.
type testDecoder struct {
	events []ssestream.Event
	i      int
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return nil }

func mustChunkEvent(t *testing.T, raw string) ssestream.Event {
	t.Helper()
	var chunk openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(raw), &chunk))
	data, err := json.Marshal(chunk)
	require.NoError(t, err)
	return ssestream.Event{Type: "chat.completion.chunk", Data: data}
}

func TestDrainStreamAccumulatesTextAndEmitsSignals(t *testing.T) {
	events := []ssestream.Event{
		mustChunkEvent(t, `{"choices":[{"delta":{"content":"hel"}}]}`),
		mustChunkEvent(t, `{"choices":[{"delta":{"content":"lo"}}]}`),
		mustChunkEvent(t, `{"choices":[{"delta":{}}],"usage":{"prompt_tokens":8,"completion_tokens":2,"total_tokens":10}}`),
	}
	stream := ssestream.NewStream[openai.ChatCompletionChunk](&testDecoder{events: events}, nil)

	var deltas []string
	var usage map[string]any
	out, err := drainStream(stream, func(name string, payload any) {
		switch name {
		case "provider:delta":
			deltas = append(deltas, payload.(map[string]any)["text"].(string))
		case "provider:usage":
			usage = payload.(map[string]any)
		}
	})
	require.NoError(t, err)
	require.Equal(t, "hello", out)
	require.Equal(t, []string{"hel", "lo"}, deltas)
	require.Equal(t, 8, usage["inputTokens"])
	require.Equal(t, 2, usage["outputTokens"])
}

func TestDrainStreamIgnoresEmptyChoices(t *testing.T) {
	events := []ssestream.Event{
		mustChunkEvent(t, `{"choices":[]}`),
	}
	stream := ssestream.NewStream[openai.ChatCompletionChunk](&testDecoder{events: events}, nil)

	var calls int
	out, err := drainStream(stream, func(string, any) { calls++ })
	require.NoError(t, err)
	require.Equal(t, "", out)
	require.Zero(t, calls)
}
