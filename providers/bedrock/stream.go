package bedrock

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// drainStream reads every event off stream.Events(), emitting a
// "provider:delta" signal per text content-block delta and a
// "provider:usage" signal once a metadata event carries usage totals,
// and returns the accumulated response text. Grounded on the teacher's
// bedrockStreamer.run/chunkProcessor.Handle switch over
// brtypes.ConverseStreamOutput, narrowed to the two member types a
// thin provider needs.
func drainStream(stream *bedrockruntime.ConverseStreamEventStream, emit func(name string, payload any)) (any, error) {
	defer stream.Close()

	var text strings.Builder
	for event := range stream.Events() {
		switch ev := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			if textDelta, ok := ev.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok {
				if textDelta.Value == "" {
					continue
				}
				text.WriteString(textDelta.Value)
				if emit != nil {
					emit("provider:delta", map[string]any{"text": textDelta.Value})
				}
			}
		case *brtypes.ConverseStreamOutputMemberMetadata:
			usage := ev.Value.Usage
			if usage != nil && emit != nil {
				emit("provider:usage", map[string]any{
					"inputTokens":  int(aws.ToInt32(usage.InputTokens)),
					"outputTokens": int(aws.ToInt32(usage.OutputTokens)),
				})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("bedrock: stream: %w", err)
	}
	return text.String(), nil
}
