// Package bedrock adapts the AWS Bedrock Converse streaming API to
// reactive.ProviderFunc. Grounded on the teacher's features/model/bedrock
// package: the RuntimeClient/StreamOutput interface split that lets a
// fake substitute for *bedrockruntime.Client in tests, and the
// event-union switch a bedrockStreamer drives off
// ConverseStreamEventStream.Events(). Narrowed the same way
// providers/anthropic narrows the teacher's anthropic adapter: no tool
// schema translation, no system/conversation history, a single user
// turn in and accumulated text plus usage signals out.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"golang.org/x/time/rate"

	"goa.design/harness/reactive"
)

type (
	// StreamOutput is the subset of the Bedrock ConverseStream output
	// required by the adapter. Satisfied by *bedrockruntime.ConverseStreamOutput,
	// and by a fake in tests.
	StreamOutput interface {
		GetStream() *bedrockruntime.ConverseStreamEventStream
	}

	// RuntimeClient captures the subset of the Bedrock runtime client used
	// by the adapter. Satisfied by *bedrockruntime.Client.
	RuntimeClient interface {
		ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (StreamOutput, error)
	}

	// Options configures a Bedrock-backed provider.
	Options struct {
		// Model is the Bedrock model identifier, for example
		// "anthropic.claude-3-5-sonnet-20241022-v2:0".
		Model string
		// MaxTokens caps the completion length. Zero lets Bedrock use its
		// own default.
		MaxTokens int
		// Temperature is passed through when greater than zero.
		Temperature float32
		// RateLimiter throttles outbound requests when set.
		RateLimiter *rate.Limiter
	}

	// Client wraps a Bedrock runtime client and produces a
	// reactive.ProviderFunc bound to Options.
	Client struct {
		runtime RuntimeClient
		model   string
		maxTok  int
		temp    float32
		limiter *rate.Limiter
	}
)

// New builds a Client from a RuntimeClient and Options.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("bedrock: model identifier is required")
	}
	return &Client{
		runtime: runtime,
		model:   opts.Model,
		maxTok:  opts.MaxTokens,
		temp:    opts.Temperature,
		limiter: opts.RateLimiter,
	}, nil
}

// Provider returns the reactive.ProviderFunc backed by this client.
func (c *Client) Provider() reactive.ProviderFunc {
	return c.complete
}

func (c *Client) complete(ctx context.Context, prompt string, emit func(name string, payload any)) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("bedrock: rate limiter: %w", err)
		}
	}
	input := &bedrockruntime.ConverseStreamInput{
		ModelId: aws.String(c.model),
		Messages: []brtypes.Message{
			{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: prompt}},
			},
		},
	}
	cfg := &brtypes.InferenceConfiguration{}
	if c.maxTok > 0 {
		cfg.MaxTokens = aws.Int32(int32(c.maxTok))
	}
	if c.temp > 0 {
		cfg.Temperature = aws.Float32(c.temp)
	}
	if cfg.MaxTokens != nil || cfg.Temperature != nil {
		input.InferenceConfig = cfg
	}

	out, err := c.runtime.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock: converse stream: %w", err)
	}
	return drainStream(out.GetStream(), emit)
}
