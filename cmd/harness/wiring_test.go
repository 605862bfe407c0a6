package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harness/bus"
	"goa.design/harness/signal"
)

func TestRateLimiterForZeroDisablesThrottling(t *testing.T) {
	require.Nil(t, rateLimiterFor(0))
	require.Nil(t, rateLimiterFor(-1))
	require.NotNil(t, rateLimiterFor(5))
}

func TestProviderNodeTypePassesPromptAndForwardsEmits(t *testing.T) {
	hub := bus.New()
	var forwarded []signal.Signal
	hub.SubscribePatterns(func(_ context.Context, s signal.Signal) {
		forwarded = append(forwarded, s)
	}, "**")

	var gotPrompt string
	nt := providerNodeType("agent.test", hub, func(ctx context.Context, prompt string, emit func(string, any)) (any, error) {
		gotPrompt = prompt
		emit("provider:delta", map[string]any{"text": "hi"})
		return "hi", nil
	})

	out, err := nt.Run(context.Background(), map[string]any{"prompt": "hello"})
	require.NoError(t, err)
	require.Equal(t, "hi", out)
	require.Equal(t, "hello", gotPrompt)
	require.Len(t, forwarded, 1)
	require.Equal(t, "provider:delta", forwarded[0].Name)
}

func TestParseInputEmptyReturnsEmptyMap(t *testing.T) {
	m, err := parseInput("")
	require.NoError(t, err)
	require.Empty(t, m)
}

func TestParseInputRejectsInvalidJSON(t *testing.T) {
	_, err := parseInput("{not json")
	require.Error(t, err)
}

func TestExitCodeMapping(t *testing.T) {
	require.Equal(t, 0, exitCode(nil))
	require.Equal(t, 1, exitCode(usageErrorf("bad flag")))
	require.Equal(t, 2, exitCode(errRuntime{}))
	require.Equal(t, 130, exitCode(context.Canceled))
}

type errRuntime struct{}

func (errRuntime) Error() string { return "boom" }
