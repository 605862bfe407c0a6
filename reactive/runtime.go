package reactive

import (
	"context"
	"sync"

	"goa.design/harness/binding"
	"goa.design/harness/bus"
	"goa.design/harness/signal"
)

// Runtime registers a set of Agent declarations onto a bus.Hub, turning the
// Hub into the declarative reactive system §4.5 describes. Grounded on the
// teacher's runtimePlannerEvents bridge, generalized from one fixed planner
// lifecycle into N independently declared, independently guarded agents
// sharing one piece of reduced state.
type Runtime struct {
	hub *bus.Hub
	cfg Config

	mu    sync.Mutex
	state map[string]any
	subs  []bus.Subscription

	doneOnce sync.Once
	done     chan struct{}
}

type depthKey struct{}

// New constructs a Runtime bound to hub, with cfg.MaxRecursionDepth
// defaulted to 8 when unset, per the Open Question decision §5 records.
func New(hub *bus.Hub, initialState map[string]any, cfg Config) *Runtime {
	if cfg.MaxRecursionDepth <= 0 {
		cfg.MaxRecursionDepth = 8
	}
	return &Runtime{
		hub:   hub,
		cfg:   cfg,
		state: cloneState(initialState),
		done:  make(chan struct{}),
	}
}

// Register subscribes each agent's handler for every pattern in its
// ActivateOn. Each call subscribes the given agents anew: registering the
// same agent twice subscribes its handler twice.
func (rt *Runtime) Register(agents ...Agent) {
	for _, a := range agents {
		a := a
		if len(a.ActivateOn) == 0 {
			continue
		}
		sub := rt.hub.SubscribePatterns(rt.activationHandler(a), a.ActivateOn...)
		rt.mu.Lock()
		rt.subs = append(rt.subs, sub)
		rt.mu.Unlock()
	}
}

// Stop unsubscribes every agent handler this Runtime registered.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	subs := rt.subs
	rt.subs = nil
	rt.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// State returns a shallow copy of the runtime's current reduced state.
func (rt *Runtime) State() map[string]any {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return cloneState(rt.state)
}

// Done returns a channel closed the first time cfg.EndWhen returns true.
func (rt *Runtime) Done() <-chan struct{} { return rt.done }

func withDepth(ctx context.Context, d int) context.Context {
	return context.WithValue(ctx, depthKey{}, d)
}

func depthOf(ctx context.Context) int {
	if v, ok := ctx.Value(depthKey{}).(int); ok {
		return v
	}
	return 0
}

// activationHandler implements §4.5's per-signal activation sequence:
// guard, agent:activated, prompt rendering, provider invocation, emits,
// state reduction, endWhen check. Nested activations triggered by signals
// this invocation itself emits carry an incremented depth; once depth
// reaches cfg.MaxRecursionDepth the chain is cut with agent:skipped
// {reason:"recursion_limit"} instead of recursing further.
func (rt *Runtime) activationHandler(a Agent) bus.Handler {
	return func(ctx context.Context, s signal.Signal) {
		depth := depthOf(ctx)
		if depth >= rt.cfg.MaxRecursionDepth {
			rt.hub.Emit(ctx, signal.New("agent:skipped", map[string]any{"agent": a.Name, "reason": "recursion_limit"}))
			return
		}
		nested := withDepth(ctx, depth+1)

		bindCtx, err := bindingContextFor(rt.State(), s.Payload)
		if err != nil {
			rt.hub.Emit(ctx, signal.New("agent:error", map[string]any{"agent": a.Name, "error": err.Error()}))
			return
		}

		if a.When != nil {
			ok, err := binding.Evaluate(a.When, bindCtx)
			if err != nil {
				rt.hub.Emit(ctx, signal.New("agent:error", map[string]any{"agent": a.Name, "error": err.Error()}))
				return
			}
			if !ok {
				rt.hub.Emit(ctx, signal.New("agent:skipped", map[string]any{"agent": a.Name, "reason": "guard"}))
				return
			}
		}

		rt.hub.Emit(ctx, signal.New("agent:activated", map[string]any{"agent": a.Name}))

		prompt := a.Prompt
		if prompt != "" {
			rendered := binding.Substitute(prompt, bindCtx, func(path string) {
				rt.hub.Emit(ctx, signal.New("binding:missing", map[string]any{"path": path, "agent": a.Name}))
			})
			if str, ok := rendered.(string); ok {
				prompt = str
			}
		}

		provider := a.Provider
		if provider == nil {
			provider = rt.cfg.Provider
		}
		if provider == nil {
			rt.hub.Emit(ctx, signal.New("agent:error", map[string]any{"agent": a.Name, "error": "reactive: no provider configured"}))
			return
		}

		output, err := provider(nested, prompt, func(name string, payload any) {
			rt.hub.Emit(nested, signal.New(name, payload))
		})
		if err != nil {
			rt.hub.Emit(ctx, signal.New("agent:error", map[string]any{"agent": a.Name, "error": err.Error()}))
			return
		}

		// State is reduced before the agent's declared signals are emitted,
		// not after as a literal reading of step 5/6 ordering would suggest:
		// since the bus dispatches synchronously, an emitted signal can
		// activate a downstream agent before this call returns, and that
		// agent's guard may read the very state key this step updates
		// (e.g. an agent gated on a confidence score a previous agent just
		// wrote). Reducing first makes that state visible to nested
		// activations.
		if a.Updates != "" {
			rt.reduce(a.Updates, output, a.StructuredUpdate)
		}

		for _, name := range a.Emits {
			rt.hub.Emit(nested, signal.New(name, output))
		}

		rt.checkEndWhen(ctx)
	}
}

func (rt *Runtime) reduce(key string, output any, combine func(current, output any) any) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.state == nil {
		rt.state = map[string]any{}
	}
	if combine != nil {
		rt.state[key] = combine(rt.state[key], output)
		return
	}
	rt.state[key] = output
}

func (rt *Runtime) checkEndWhen(ctx context.Context) {
	if rt.cfg.EndWhen == nil {
		return
	}
	if !rt.cfg.EndWhen(rt.State()) {
		return
	}
	rt.doneOnce.Do(func() {
		rt.hub.Emit(ctx, signal.New("harness:end", map[string]any{"reason": "endWhen"}))
		close(rt.done)
	})
}

func cloneState(m map[string]any) map[string]any {
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
