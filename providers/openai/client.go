// Package openai adapts the OpenAI Chat Completions API to
// reactive.ProviderFunc. Structurally grounded on the teacher's
// features/model/openai package (ChatClient interface, fail-fast
// New/NewFromAPIKey validation), but built against
// github.com/openai/openai-go rather than the teacher's
// sashabaranov/go-openai, since openai-go is the SDK this module's
// dependency set carries; openai-go mirrors the same generated-client
// idiom as anthropic-sdk-go (option.RequestOption functional options,
// an ssestream.Stream[T] for incremental responses), so the streaming
// shape follows providers/anthropic rather than the teacher file
// directly.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"golang.org/x/time/rate"

	"goa.design/harness/reactive"
)

type (
	// ChatClient captures the subset of the openai-go client used by the
	// adapter, satisfied by the client's Chat.Completions service so
	// tests can supply a fake.
	ChatClient interface {
		NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
	}

	// Options configures an OpenAI-backed provider.
	Options struct {
		// Model is the OpenAI chat model identifier, for example
		// string(openai.ChatModelGPT4o).
		Model string
		// MaxTokens caps the completion length. Required, must be positive.
		MaxTokens int
		// Temperature is passed through when greater than zero.
		Temperature float64
		// RateLimiter throttles outbound requests when set.
		RateLimiter *rate.Limiter
	}

	// Client wraps an OpenAI chat client and produces a
	// reactive.ProviderFunc bound to Options.
	Client struct {
		chat    ChatClient
		model   string
		maxTok  int
		temp    float64
		limiter *rate.Limiter
	}
)

// New builds a Client from a ChatClient and Options.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	if opts.MaxTokens <= 0 {
		return nil, errors.New("openai: max tokens must be positive")
	}
	return &Client{
		chat:    chat,
		model:   opts.Model,
		maxTok:  opts.MaxTokens,
		temp:    opts.Temperature,
		limiter: opts.RateLimiter,
	}, nil
}

// NewFromAPIKey constructs a Client using the default openai-go HTTP
// client, reading OPENAI_API_KEY and related defaults from the
// environment via openai.NewClient.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, opts)
}

// Provider returns the reactive.ProviderFunc backed by this client.
func (c *Client) Provider() reactive.ProviderFunc {
	return c.complete
}

func (c *Client) complete(ctx context.Context, prompt string, emit func(name string, payload any)) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("openai: rate limiter: %w", err)
		}
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens: openai.Int(int64(c.maxTok)),
	}
	if c.temp > 0 {
		params.Temperature = openai.Float(c.temp)
	}
	stream := c.chat.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: chat completions stream: %w", err)
	}
	return drainStream(stream, emit)
}
