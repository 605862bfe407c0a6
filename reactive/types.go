// Package reactive turns declared agent configs into bus subscriptions:
// each agent activates when a matching signal is delivered, guards on an
// optional condition, invokes a provider, emits its declared signals and
// reduces state, the way the teacher's runtimePlannerEvents bridges a
// planner turn onto the bus but generalized from one fixed planner
// lifecycle into N independently declared agents.
package reactive

import (
	"context"

	"goa.design/harness/binding"
)

type (
	// ProviderFunc runs one agent turn: it renders against prompt and the
	// current binding context, emits zero or more intermediate signals via
	// emit, and returns the turn's final output value. Grounded on the
	// teacher's PlannerEvents callback shape (AssistantChunk/PlannerThought/
	// UsageDelta), collapsed into a single emit callback since this module's
	// bus already carries arbitrary named signals rather than a fixed event
	// set.
	ProviderFunc func(ctx context.Context, prompt string, emit func(name string, payload any)) (any, error)

	// Agent declares one reactive agent: the signals it activates on, what
	// it emits, an optional guard, an optional per-agent provider override,
	// and the state key its output reduces into.
	Agent struct {
		Name           string
		Prompt         string
		ActivateOn     []string
		Emits          []string
		When           any
		Provider       ProviderFunc
		Updates        string
		StructuredUpdate func(current, output any) any
	}

	// Config configures a Runtime.
	Config struct {
		// Provider is invoked for agents that declare no per-agent
		// Provider override. Required unless every agent sets its own.
		Provider ProviderFunc
		// MaxRecursionDepth caps how many nested activations (an agent's
		// own emission re-triggering activation, synchronously, within the
		// same dispatch) are allowed before the chain is cut off. Zero
		// means the default of 8.
		MaxRecursionDepth int
		// EndWhen is tested after every reducer invocation; once it
		// returns true the run terminates.
		EndWhen func(state map[string]any) bool
	}
)

func bindingContextFor(state map[string]any, signalPayload any) (binding.Context, error) {
	return binding.NewContext(map[string]any{
		"state":  state,
		"signal": map[string]any{"payload": signalPayload},
	})
}
