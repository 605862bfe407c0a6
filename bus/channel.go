package bus

import (
	"context"
	"fmt"

	"goa.design/harness/signal"
)

type (
	// Channel is one instance of an attachment's runtime state. The bus
	// builds a fresh Channel (via ChannelDef.New) every time it starts,
	// so a channel never carries state across stop/start cycles.
	Channel interface {
		// Patterns lists the signal name patterns this channel subscribes
		// to once active.
		Patterns() []string
		// Handle processes one matching signal. A returned error is
		// non-fatal: the bus logs it and emits channel:error{name},
		// delivery to other channels and subscribers continues.
		Handle(ctx context.Context, h *Hub, s signal.Signal) error
		// OnStart is invoked once, after subscriptions are registered,
		// when the bus (or this channel, if registered after Start) goes
		// active.
		OnStart(ctx context.Context, h *Hub) error
		// OnComplete is invoked once, before subscriptions are torn down,
		// when the bus stops.
		OnComplete(ctx context.Context, h *Hub) error
	}

	// ChannelFactory builds a fresh Channel instance. Invoked at Start
	// (or at RegisterChannel, if the bus has already started).
	ChannelFactory func() Channel

	// ChannelDef names a channel and how to build it.
	ChannelDef struct {
		Name string
		New  ChannelFactory
	}

	activeChannel struct {
		instance Channel
		sub      Subscription
	}
)

// ErrChannelExists is returned by RegisterChannel when name is already
// registered.
var ErrChannelExists = fmt.Errorf("bus: channel already registered")

// RegisterChannel validates that def.Name is unique and records it. If the
// bus has already been started, the channel is activated immediately:
// a fresh instance is built, its patterns subscribed, and OnStart invoked.
func (h *Hub) RegisterChannel(ctx context.Context, def ChannelDef) error {
	h.mu.Lock()
	if _, exists := h.channels[def.Name]; exists {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChannelExists, def.Name)
	}
	h.channels[def.Name] = def
	started := h.started
	h.mu.Unlock()

	if started {
		h.activate(ctx, def)
	}
	return nil
}

func (h *Hub) activate(ctx context.Context, def ChannelDef) {
	instance := def.New()
	name := def.Name
	sub := h.SubscribePatterns(func(ctx context.Context, s signal.Signal) {
		if err := instance.Handle(ctx, h, s); err != nil {
			h.log.Error(ctx, "bus: channel handler error", "channel", name, "error", err)
			h.Emit(ctx, signal.New("channel:error", map[string]any{"name": name, "error": err.Error()}))
		}
	}, instance.Patterns()...)

	h.mu.Lock()
	h.active[name] = &activeChannel{instance: instance, sub: sub}
	h.mu.Unlock()

	if err := instance.OnStart(ctx, h); err != nil {
		h.log.Error(ctx, "bus: channel OnStart error", "channel", name, "error", err)
		h.Emit(ctx, signal.New("channel:error", map[string]any{"name": name, "error": err.Error()}))
	}
}

// Start is idempotent: the first call builds a fresh instance for every
// registered channel, subscribes its patterns, and calls OnStart; later
// calls are no-ops.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	defs := make([]ChannelDef, 0, len(h.channels))
	for _, def := range h.channels {
		defs = append(defs, def)
	}
	h.mu.Unlock()

	for _, def := range defs {
		h.activate(ctx, def)
	}
}

// Stop is idempotent: the first call invokes OnComplete on every active
// channel, unsubscribes it, and discards its state; later calls are
// no-ops.
func (h *Hub) Stop(ctx context.Context) {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	active := h.active
	h.active = make(map[string]*activeChannel)
	h.mu.Unlock()

	for name, ac := range active {
		if err := ac.instance.OnComplete(ctx, h); err != nil {
			h.log.Error(ctx, "bus: channel OnComplete error", "channel", name, "error", err)
		}
		ac.sub.Unsubscribe()
	}
}
