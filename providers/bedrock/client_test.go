package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeStreamOutput struct {
	stream *bedrockruntime.ConverseStreamEventStream
}

func (f *fakeStreamOutput) GetStream() *bedrockruntime.ConverseStreamEventStream { return f.stream }

type fakeRuntimeClient struct {
	events   []brtypes.ConverseStreamOutput
	gotInput *bedrockruntime.ConverseStreamInput
}

func (f *fakeRuntimeClient) ConverseStream(_ context.Context, params *bedrockruntime.ConverseStreamInput, _ ...func(*bedrockruntime.Options)) (StreamOutput, error) {
	f.gotInput = params
	return &fakeStreamOutput{stream: newFakeEventStream(f.events)}, nil
}

func TestNewRejectsMissingModel(t *testing.T) {
	_, err := New(&fakeRuntimeClient{}, Options{})
	require.Error(t, err)
}

func TestNewRejectsNilRuntime(t *testing.T) {
	_, err := New(nil, Options{Model: "m"})
	require.Error(t, err)
}

func TestProviderStreamsAndReturnsText(t *testing.T) {
	fake := &fakeRuntimeClient{events: []brtypes.ConverseStreamOutput{
		&brtypes.ConverseStreamOutputMemberContentBlockDelta{Value: brtypes.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(0),
			Delta:             &brtypes.ContentBlockDeltaMemberText{Value: "hi there"},
		}},
	}}
	c, err := New(fake, Options{Model: "anthropic.claude-3-5-sonnet", MaxTokens: 256})
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
	require.Equal(t, "anthropic.claude-3-5-sonnet", aws.ToString(fake.gotInput.ModelId))
	require.Equal(t, int32(256), aws.ToInt32(fake.gotInput.InferenceConfig.MaxTokens))
}

func TestProviderAppliesRateLimiter(t *testing.T) {
	fake := &fakeRuntimeClient{}
	limiter := rate.NewLimiter(rate.Inf, 1)
	c, err := New(fake, Options{Model: "anthropic.claude-3-5-sonnet", RateLimiter: limiter})
	require.NoError(t, err)

	_, err = c.Provider()(context.Background(), "ping", nil)
	require.NoError(t, err)
}
