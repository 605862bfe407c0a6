package bedrock

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"
)

type fakeStreamReader struct {
	events chan brtypes.ConverseStreamOutput
	err    error
}

func (r *fakeStreamReader) Events() <-chan brtypes.ConverseStreamOutput { return r.events }
func (r *fakeStreamReader) Close() error                                { return nil }
func (r *fakeStreamReader) Err() error                                  { return r.err }

func newFakeEventStream(events []brtypes.ConverseStreamOutput) *bedrockruntime.ConverseStreamEventStream {
	ch := make(chan brtypes.ConverseStreamOutput, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	reader := &fakeStreamReader{events: ch}
	return bedrockruntime.NewConverseStreamEventStream(func(es *bedrockruntime.ConverseStreamEventStream) {
		es.Reader = reader
	})
}

func TestDrainStreamAccumulatesTextAndEmitsSignals(t *testing.T) {
	events := []brtypes.ConverseStreamOutput{
		&brtypes.ConverseStreamOutputMemberContentBlockDelta{Value: brtypes.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(0),
			Delta:             &brtypes.ContentBlockDeltaMemberText{Value: "hel"},
		}},
		&brtypes.ConverseStreamOutputMemberContentBlockDelta{Value: brtypes.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(0),
			Delta:             &brtypes.ContentBlockDeltaMemberText{Value: "lo"},
		}},
		&brtypes.ConverseStreamOutputMemberMetadata{Value: brtypes.ConverseStreamMetadataEvent{
			Usage: &brtypes.TokenUsage{
				InputTokens:  aws.Int32(10),
				OutputTokens: aws.Int32(2),
				TotalTokens:  aws.Int32(12),
			},
		}},
	}
	stream := newFakeEventStream(events)

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
	require.Equal(t, 10, usage["inputTokens"])
	require.Equal(t, 2, usage["outputTokens"])
}

func TestDrainStreamIgnoresNonTextDeltas(t *testing.T) {
	events := []brtypes.ConverseStreamOutput{
		&brtypes.ConverseStreamOutputMemberContentBlockDelta{Value: brtypes.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(0),
			Delta: &brtypes.ContentBlockDeltaMemberToolUse{
				Value: brtypes.ToolUseBlockDelta{Input: aws.String(`{"x":1}`)},
			},
		}},
	}
	stream := newFakeEventStream(events)

	var calls int
	out, err := drainStream(stream, func(string, any) { calls++ })
	require.NoError(t, err)
	require.Equal(t, "", out)
	require.Zero(t, calls)
}
