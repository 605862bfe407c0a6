package openai

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/stretchr/testify/require"
)

type fakeChatClient struct {
	events   []ssestream.Event
	gotModel openai.ChatModel
	gotBody  []byte
}

func (f *fakeChatClient) NewStreaming(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk] {
	f.gotModel = body.Model
	f.gotBody, _ = json.Marshal(body)
	return ssestream.NewStream[openai.ChatCompletionChunk](&testDecoder{events: f.events}, nil)
}

func TestNewRejectsMissingModel(t *testing.T) {
	_, err := New(&fakeChatClient{}, Options{MaxTokens: 100})
	require.Error(t, err)
}

func TestNewRejectsMissingMaxTokens(t *testing.T) {
	_, err := New(&fakeChatClient{}, Options{Model: "gpt-4o"})
	require.Error(t, err)
}

func TestProviderStreamsAndReturnsText(t *testing.T) {
	fake := &fakeChatClient{events: []ssestream.Event{
		mustChunkEvent(t, `{"choices":[{"delta":{"content":"hi there"}}]}`),
	}}
	c, err := New(fake, Options{Model: "gpt-4o", MaxTokens: 256})
	require.NoError(t, err)

	var deltas []string
	out, err := c.Provider()(context.Background(), "say hi", func(name string, payload any) {
		if name == "provider:delta" {
			deltas = append(deltas, payload.(map[string]any)["text"].(string))
		}
	})
	require.NoError(t, err)
	require.Equal(t, "hi there", out)
	require.Equal(t, []string{"hi there"}, deltas)
	require.Equal(t, openai.ChatModel("gpt-4o"), fake.gotModel)
	require.Contains(t, string(fake.gotBody), "say hi")
}
