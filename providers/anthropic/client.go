// Package anthropic adapts the Anthropic Claude Messages API to
// reactive.ProviderFunc. It is grounded on the teacher's
// features/model/anthropic package but narrowed: the teacher's Client
// implements the full runtime/agent/model.Client surface (tool-call
// translation, message-role history, thinking budgets); an agent
// declared against this module's reactive.Runtime only needs a
// prompt-in, text-and-signals-out turn, so this adapter sends a single
// user-turn request and streams text deltas and usage back through the
// emit callback instead of model.Chunk.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"golang.org/x/time/rate"

	"goa.design/harness/reactive"
)

type (
	// MessagesClient captures the subset of the Anthropic SDK client used
	// by the adapter, satisfied by *sdk.MessageService so tests can supply
	// a fake.
	MessagesClient interface {
		NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
	}

	// Options configures an Anthropic-backed provider.
	Options struct {
		// Model is the Claude model identifier, for example
		// string(sdk.ModelClaudeSonnet4_5_20250929).
		Model string
		// MaxTokens caps the completion length. Required, must be positive.
		MaxTokens int
		// Temperature is passed through when greater than zero.
		Temperature float64
		// RateLimiter throttles outbound requests when set. Nil disables
		// throttling.
		RateLimiter *rate.Limiter
	}

	// Client wraps an Anthropic Messages client and produces a
	// reactive.ProviderFunc bound to Options.
	Client struct {
		msg     MessagesClient
		model   string
		maxTok  int
		temp    float64
		limiter *rate.Limiter
	}
)

// New builds a Client from a MessagesClient and Options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	if opts.MaxTokens <= 0 {
		return nil, errors.New("anthropic: max tokens must be positive")
	}
	return &Client{
		msg:     msg,
		model:   opts.Model,
		maxTok:  opts.MaxTokens,
		temp:    opts.Temperature,
		limiter: opts.RateLimiter,
	}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP
// client, reading ANTHROPIC_API_KEY and related defaults from the
// environment via sdk.NewClient.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, opts)
}

// Provider returns the reactive.ProviderFunc backed by this client.
func (c *Client) Provider() reactive.ProviderFunc {
	return c.complete
}

func (c *Client) complete(ctx context.Context, prompt string, emit func(name string, payload any)) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("anthropic: rate limiter: %w", err)
		}
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxTok),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}
	stream := c.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: messages.new stream: %w", err)
	}
	return drainStream(stream, emit)
}
