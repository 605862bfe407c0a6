// Package bus implements the Hub: the in-process signal bus that threads
// scoped context through every emission, keeps a bounded history, manages
// channel (attachment) lifecycle, and owns the run's pause/resume/abort
// state machine. It is grounded on the teacher's synchronous fan-out
// hooks.Bus, generalized from a fixed Subscriber interface to pattern-based
// subscriptions and extended with scope propagation, history and session
// control the teacher's bus does not need.
package bus

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"goa.design/harness/scope"
	"goa.design/harness/signal"
	"goa.design/harness/telemetry"
)

type (
	// Handler receives a delivered signal. ctx carries the scope.Context
	// active at emission time, not the handler's own ambient scope (§4.1
	// invariant).
	Handler func(ctx context.Context, s signal.Signal)

	// Subscription represents an active registration. Unsubscribe is
	// idempotent and safe to call concurrently with Emit.
	Subscription interface {
		Unsubscribe()
	}

	// Enriched pairs a delivered signal with the scope it was emitted
	// under, the unit stored in history and handed to recording stores.
	Enriched struct {
		Signal signal.Signal
		Scope  scope.Context
	}

	subEntry struct {
		matcher signal.Matcher
		handler Handler
	}

	subHandle struct {
		hub *Hub
		id  uint64
	}

	// Hub is the concrete bus implementation. All exported methods are
	// safe for concurrent use.
	Hub struct {
		mu   sync.RWMutex
		subs map[uint64]*subEntry
		seq  atomic.Uint64

		history    []Enriched
		maxHistory int

		channels map[string]ChannelDef
		active   map[string]*activeChannel

		started bool

		session sessionState

		log     telemetry.Logger
		metrics telemetry.Metrics
	}

	// Option configures a Hub at construction time.
	Option func(*Hub)
)

// WithMaxHistory bounds the number of Enriched entries retained; the oldest
// entry is dropped once the bound is exceeded. Zero (the default) means
// unbounded.
func WithMaxHistory(n int) Option {
	return func(h *Hub) { h.maxHistory = n }
}

// WithLogger attaches a telemetry.Logger used to report isolated subscriber
// errors and channel handler errors. Defaults to a no-op logger.
func WithLogger(l telemetry.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithMetrics attaches a telemetry.Metrics sink. Defaults to a no-op sink.
func WithMetrics(m telemetry.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// New constructs a Hub in the idle state, ready to accept subscriptions and
// channel registrations before Start is called.
func New(opts ...Option) *Hub {
	h := &Hub{
		subs:     make(map[uint64]*subEntry),
		channels: make(map[string]ChannelDef),
		active:   make(map[string]*activeChannel),
		log:      telemetry.NewNoopLogger(),
		metrics:  telemetry.NewNoopMetrics(),
	}
	h.session.status = StatusIdle
	h.session.paused = make(map[string]*PausedSession)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Emit stamps an id and timestamp on s if missing, attaches the scope active
// in ctx, appends the result to history (dropping the oldest entry once
// maxHistory is exceeded) and synchronously dispatches to every subscriber
// whose filter matches. A subscriber's error is isolated: it is logged and
// delivery continues to the remaining subscribers (§4.1 departs from a
// fail-fast bus here by design, so one noisy handler cannot blind the rest
// of the system).
func (h *Hub) Emit(ctx context.Context, s signal.Signal) {
	if s.ID == "" || s.Timestamp.IsZero() {
		stamped := signal.New(s.Name, s.Payload)
		if s.ID != "" {
			stamped.ID = s.ID
		}
		if !s.Timestamp.IsZero() {
			stamped.Timestamp = s.Timestamp
		}
		stamped.Source = s.Source
		stamped.Display = s.Display
		s = stamped
	}

	sc := scope.From(ctx)
	enriched := Enriched{Signal: s, Scope: sc}

	h.mu.Lock()
	if h.session.status == StatusAborted && h.session.shuttingDown {
		h.mu.Unlock()
		h.log.Warn(ctx, "bus: emit dropped during shutdown", "signal", s.Name)
		return
	}
	h.history = append(h.history, enriched)
	if h.maxHistory > 0 && len(h.history) > h.maxHistory {
		h.history = h.history[len(h.history)-h.maxHistory:]
	}
	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	subs := make([]*subEntry, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, h.subs[id])
	}
	h.mu.Unlock()

	handlerCtx := scope.Into(ctx, sc)
	for _, e := range subs {
		if !e.matcher.Match(s) {
			continue
		}
		h.dispatch(handlerCtx, e, s)
	}
}

func (h *Hub) dispatch(ctx context.Context, e *subEntry, s signal.Signal) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error(ctx, "bus: subscriber panicked", "signal", s.Name, "recover", r)
			h.metrics.IncCounter("bus.subscriber.panic", 1, "signal", s.Name)
		}
	}()
	e.handler(ctx, s)
}

// Subscribe registers handler for every signal matching m, in the dynamic
// order subscriptions were added. Returns an idempotent Subscription.
func (h *Hub) Subscribe(m signal.Matcher, handler Handler) Subscription {
	id := h.seq.Add(1)
	h.mu.Lock()
	h.subs[id] = &subEntry{matcher: m, handler: handler}
	h.mu.Unlock()
	return &subHandle{hub: h, id: id}
}

// SubscribePatterns is a convenience wrapper compiling the given glob
// patterns into a signal.Matcher before subscribing.
func (h *Hub) SubscribePatterns(handler Handler, patterns ...string) Subscription {
	return h.Subscribe(signal.NewPatternMatcher(patterns...), handler)
}

func (s *subHandle) Unsubscribe() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()
}

// Scoped pushes delta onto the scope carried by ctx for the dynamic extent
// of fn, then invokes fn with the resulting context. Because the pushed
// context.Context is never shared or mutated in place, two calls to Scoped
// made from sibling goroutines over the same parent ctx cannot observe each
// other's delta, satisfying the per-task isolation contract of §4.1 and §8
// property 2.
func (h *Hub) Scoped(ctx context.Context, delta scope.Delta, fn func(ctx context.Context)) {
	fn(scope.Push(ctx, delta))
}

// Metrics returns the telemetry.Metrics sink attached via WithMetrics (or the
// no-op default), letting other packages that hold only a *Hub instrument
// their own work on the same sink the bus reports subscriber panics to.
func (h *Hub) Metrics() telemetry.Metrics {
	return h.metrics
}

// History returns a snapshot copy of the retained Enriched entries, oldest
// first.
func (h *Hub) History() []Enriched {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Enriched, len(h.history))
	copy(out, h.history)
	return out
}
