package flow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harness/binding"
	"goa.design/harness/bus"
	"goa.design/harness/flow"
	"goa.design/harness/signal"
)

func echoRegistry() *binding.Registry {
	r := binding.NewRegistry()
	r.Register(binding.NodeType{
		Type: "echo",
		Run: func(_ context.Context, input any) (any, error) {
			return input, nil
		},
	})
	r.Register(binding.NodeType{
		Type: "control.if",
		Run: func(_ context.Context, input any) (any, error) {
			m, _ := input.(map[string]any)
			return map[string]any{"condition": m["condition"]}, nil
		},
	})
	return r
}

func collectSignalNames(h *bus.Hub) *[]string {
	names := &[]string{}
	h.SubscribePatterns(func(_ context.Context, s signal.Signal) {
		*names = append(*names, s.Name)
	}, "**")
	return names
}

// Scenario A: single-node flow.
func TestExecutorSingleNodeFlow(t *testing.T) {
	h := bus.New()
	names := collectSignalNames(h)
	ex := flow.NewExecutor(echoRegistry(), h, flow.ExecutorOptions{})

	def := flow.Definition{
		Name:  "single",
		Nodes: []flow.Node{{ID: "a", Type: "echo", Input: map[string]any{"text": "Hello"}}},
	}

	ctx := h.StartSession(context.Background(), "sess-a", def.Name)
	snap, err := ex.Run(ctx, def, "run-a", nil)
	require.NoError(t, err)
	require.Equal(t, flow.StatusComplete, snap.Status)
	require.Equal(t, map[string]any{"text": "Hello"}, snap.Outputs["a"])

	require.Contains(t, *names, "harness:start")
	require.Contains(t, *names, "node:start")
	require.Contains(t, *names, "node:complete")
	require.Contains(t, *names, "harness:end")

	startIdx, completeIdx, endIdx := -1, -1, -1
	for i, n := range *names {
		switch n {
		case "node:start":
			startIdx = i
		case "node:complete":
			completeIdx = i
		case "harness:end":
			endIdx = i
		}
	}
	require.Less(t, startIdx, completeIdx)
	require.Less(t, completeIdx, endIdx)
}

// Scenario B: conditional branch.
func TestExecutorConditionalBranch(t *testing.T) {
	h := bus.New()
	ex := flow.NewExecutor(echoRegistry(), h, flow.ExecutorOptions{})

	def := flow.Definition{
		Name: "branch",
		Nodes: []flow.Node{
			{ID: "source", Type: "echo", Input: map[string]any{"value": "yes"}},
			{ID: "check", Type: "control.if", Input: map[string]any{"condition": "{{ source.value }}"}},
			{ID: "trueBranch", Type: "echo", Input: map[string]any{"text": "T"}},
			{ID: "falseBranch", Type: "echo", Input: map[string]any{"text": "F"}},
		},
		Edges: []flow.Edge{
			{From: "source", To: "check"},
			{From: "check", To: "trueBranch", When: `check.condition = "yes"`},
			{From: "check", To: "falseBranch", When: `check.condition != "yes"`},
		},
	}

	ctx := h.StartSession(context.Background(), "sess-b", def.Name)
	snap, err := ex.Run(ctx, def, "run-b", nil)
	require.NoError(t, err)
	require.Equal(t, flow.StatusComplete, snap.Status)
	require.Equal(t, map[string]any{"text": "T"}, snap.Outputs["trueBranch"])
	require.Equal(t, flow.NodeSkipped, snap.NodeStatus["falseBranch"])
	require.Equal(t, "yes", snap.Outputs["check"].(map[string]any)["condition"])
}

func TestExecutorNodeGuardSkipsWithoutStart(t *testing.T) {
	h := bus.New()
	var sawStartFor []string
	h.SubscribePatterns(func(_ context.Context, s signal.Signal) {
		if s.Name == "node:start" {
			m := s.Payload.(map[string]any)
			sawStartFor = append(sawStartFor, m["nodeId"].(string))
		}
	}, "**")
	ex := flow.NewExecutor(echoRegistry(), h, flow.ExecutorOptions{})

	def := flow.Definition{
		Name: "guarded",
		Nodes: []flow.Node{
			{ID: "a", Type: "echo", Input: map[string]any{"text": "x"}, When: "state.enabled = true"},
		},
		State: flow.StateDef{Initial: map[string]any{"enabled": false}},
	}

	ctx := h.StartSession(context.Background(), "sess-c", def.Name)
	snap, err := ex.Run(ctx, def, "run-c", nil)
	require.NoError(t, err)
	require.Equal(t, flow.NodeSkipped, snap.NodeStatus["a"])
	require.NotContains(t, sawStartFor, "a")
}

func TestExecutorContinueOnErrorMarksSkipped(t *testing.T) {
	h := bus.New()
	r := binding.NewRegistry()
	r.Register(binding.NodeType{
		Type: "failing",
		Run: func(_ context.Context, _ any) (any, error) {
			return nil, errAlways
		},
	})
	ex := flow.NewExecutor(r, h, flow.ExecutorOptions{})

	def := flow.Definition{
		Name: "continue",
		Nodes: []flow.Node{
			{ID: "a", Type: "failing", Policy: flow.Policy{ContinueOnError: true}},
		},
	}
	ctx := h.StartSession(context.Background(), "sess-d", def.Name)
	snap, err := ex.Run(ctx, def, "run-d", nil)
	require.NoError(t, err)
	require.Equal(t, flow.NodeSkipped, snap.NodeStatus["a"])
}

func TestExecutorFailingNodeFailsFlow(t *testing.T) {
	h := bus.New()
	r := binding.NewRegistry()
	r.Register(binding.NodeType{
		Type: "failing",
		Run: func(_ context.Context, _ any) (any, error) {
			return nil, errAlways
		},
	})
	ex := flow.NewExecutor(r, h, flow.ExecutorOptions{})

	def := flow.Definition{
		Name:  "fails",
		Nodes: []flow.Node{{ID: "a", Type: "failing"}},
	}
	ctx := h.StartSession(context.Background(), "sess-e", def.Name)
	snap, err := ex.Run(ctx, def, "run-e", nil)
	require.Error(t, err)
	require.Equal(t, flow.StatusFailed, snap.Status)
}

var errAlways = &alwaysError{}

type alwaysError struct{}

func (*alwaysError) Error() string { return "always fails" }
