package reactive_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/harness/bus"
	"goa.design/harness/reactive"
	"goa.design/harness/signal"
)

// Scenario F: guarded reactive agent. analyst activates on harness:start and
// emits analysis:complete with {confidence:40}; trader activates on
// analysis:complete guarded on state.analysis.confidence >= 60. Since 40 <
// 60, trader must be skipped with reason "guard" and emit no trade signal.
func TestGuardedReactiveAgentSkipsBelowThreshold(t *testing.T) {
	h := bus.New()
	var names []string
	var skipPayload map[string]any
	h.SubscribePatterns(func(_ context.Context, s signal.Signal) {
		names = append(names, s.Name)
		if s.Name == "agent:skipped" {
			skipPayload = s.Payload.(map[string]any)
		}
	}, "**")

	analystProvider := func(_ context.Context, _ string, emit func(string, any)) (any, error) {
		return map[string]any{"confidence": 40}, nil
	}
	traderRan := false
	traderProvider := func(_ context.Context, _ string, emit func(string, any)) (any, error) {
		traderRan = true
		return map[string]any{"action": "buy"}, nil
	}

	rt := reactive.New(h, nil, reactive.Config{})
	rt.Register(
		reactive.Agent{
			Name:       "analyst",
			ActivateOn: []string{"harness:start"},
			Emits:      []string{"analysis:complete"},
			Updates:    "analysis",
			Provider:   analystProvider,
		},
		reactive.Agent{
			Name:       "trader",
			ActivateOn: []string{"analysis:complete"},
			When:       "state.analysis.confidence >= 60",
			Emits:      []string{"trade:executed"},
			Provider:   traderProvider,
		},
	)

	h.Emit(context.Background(), signal.New("harness:start", nil))

	require.False(t, traderRan)
	require.Contains(t, names, "agent:activated")
	require.Contains(t, names, "analysis:complete")
	require.Contains(t, names, "agent:skipped")
	require.NotContains(t, names, "trade:executed")
	require.Equal(t, "trader", skipPayload["agent"])
	require.Equal(t, "guard", skipPayload["reason"])
}

// A confident analyst unlocks the trader: confidence 80 clears the >= 60
// guard and the trader's own emission is observed.
func TestGuardedReactiveAgentFiresAboveThreshold(t *testing.T) {
	h := bus.New()
	var traded bool
	h.SubscribePatterns(func(_ context.Context, s signal.Signal) {
		if s.Name == "trade:executed" {
			traded = true
		}
	}, "**")

	rt := reactive.New(h, nil, reactive.Config{})
	rt.Register(
		reactive.Agent{
			Name:       "analyst",
			ActivateOn: []string{"harness:start"},
			Emits:      []string{"analysis:complete"},
			Updates:    "analysis",
			Provider: func(_ context.Context, _ string, _ func(string, any)) (any, error) {
				return map[string]any{"confidence": 80}, nil
			},
		},
		reactive.Agent{
			Name:       "trader",
			ActivateOn: []string{"analysis:complete"},
			When:       "state.analysis.confidence >= 60",
			Emits:      []string{"trade:executed"},
			Provider: func(_ context.Context, _ string, _ func(string, any)) (any, error) {
				return map[string]any{"action": "buy"}, nil
			},
		},
	)

	h.Emit(context.Background(), signal.New("harness:start", nil))
	require.True(t, traded)
}

// An agent that activates on its own emitted signal recurses until the
// configured MaxRecursionDepth cuts the chain off with agent:skipped
// {reason:"recursion_limit"}.
func TestRecursionDepthCapStopsChain(t *testing.T) {
	h := bus.New()
	var activations, capped int
	h.SubscribePatterns(func(_ context.Context, s signal.Signal) {
		switch s.Name {
		case "agent:activated":
			activations++
		case "agent:skipped":
			m := s.Payload.(map[string]any)
			if m["reason"] == "recursion_limit" {
				capped++
			}
		}
	}, "**")

	rt := reactive.New(h, nil, reactive.Config{MaxRecursionDepth: 3})
	rt.Register(reactive.Agent{
		Name:       "loopy",
		ActivateOn: []string{"loop:tick"},
		Emits:      []string{"loop:tick"},
		Provider: func(_ context.Context, _ string, _ func(string, any)) (any, error) {
			return nil, nil
		},
	})

	h.Emit(context.Background(), signal.New("loop:tick", nil))

	require.Equal(t, 3, activations)
	require.Equal(t, 1, capped)
}

// endWhen terminates the run and closes Done after a reducer invocation
// satisfies the predicate.
func TestEndWhenClosesDone(t *testing.T) {
	h := bus.New()
	rt := reactive.New(h, nil, reactive.Config{
		EndWhen: func(state map[string]any) bool {
			done, _ := state["finished"].(bool)
			return done
		},
	})
	rt.Register(reactive.Agent{
		Name:       "closer",
		ActivateOn: []string{"harness:start"},
		Updates:    "finished",
		Provider: func(_ context.Context, _ string, _ func(string, any)) (any, error) {
			return true, nil
		},
	})

	h.Emit(context.Background(), signal.New("harness:start", nil))

	select {
	case <-rt.Done():
	case <-time.After(time.Second):
		t.Fatal("Done was not closed")
	}
}
