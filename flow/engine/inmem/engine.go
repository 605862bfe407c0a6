// Package inmem provides a non-durable, in-process engine.Engine suitable
// for live and replay harness runs and for tests. Grounded directly on the
// teacher's runtime/agent/engine/inmem adapter: goroutine-per-workflow,
// buffered signal channels, reflect-based result assignment.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"goa.design/harness/flow/engine"
	"goa.design/harness/telemetry"
)

type (
	eng struct {
		mu         sync.RWMutex
		workflows  map[string]engine.WorkflowDefinition
		activities map[string]activityEntry
	}

	activityEntry struct {
		handler engine.ActivityFunc
		opts    engine.ActivityOptions
	}

	handle struct {
		mu     sync.Mutex
		done   chan struct{}
		err    error
		result any
		wfCtx  *wfCtx
	}

	wfCtx struct {
		ctx    context.Context
		id     string
		runID  string
		logger telemetry.Logger
		eng    *eng

		sigMu sync.Mutex
		sigs  map[string]*signalChan
	}

	future struct {
		mu     sync.Mutex
		ready  chan struct{}
		result any
		err    error
	}

	signalChan struct{ ch chan any }
)

// New constructs a non-durable in-memory engine.Engine.
func New() engine.Engine {
	return &eng{
		workflows:  make(map[string]engine.WorkflowDefinition),
		activities: make(map[string]activityEntry),
	}
}

func (e *eng) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.workflows[def.Name]; dup {
		return fmt.Errorf("inmem: workflow %q already registered", def.Name)
	}
	if def.Handler == nil || def.Name == "" {
		return errors.New("inmem: invalid workflow definition")
	}
	e.workflows[def.Name] = def
	return nil
}

func (e *eng) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.activities[def.Name]; dup {
		return fmt.Errorf("inmem: activity %q already registered", def.Name)
	}
	if def.Handler == nil || def.Name == "" {
		return errors.New("inmem: invalid activity definition")
	}
	e.activities[def.Name] = activityEntry{handler: def.Handler, opts: def.Options}
	return nil
}

func (e *eng) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	e.mu.RLock()
	def, ok := e.workflows[req.Workflow]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: workflow %q not registered", req.Workflow)
	}
	if req.ID == "" {
		return nil, errors.New("inmem: workflow id is required")
	}

	wctx := &wfCtx{
		ctx:    ctx,
		id:     req.ID,
		runID:  req.ID,
		logger: telemetry.NewNoopLogger(),
		eng:    e,
		sigs:   make(map[string]*signalChan),
	}
	h := &handle{done: make(chan struct{}), wfCtx: wctx}

	go func() {
		defer close(h.done)
		res, err := def.Handler(wctx, req.Input)
		h.mu.Lock()
		h.result, h.err = res, err
		h.mu.Unlock()
	}()

	return h, nil
}

func (h *handle) Wait(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		assignResult(result, h.result)
		return h.err
	}
}

func (h *handle) Signal(ctx context.Context, name string, payload any) error {
	ch := h.wfCtx.SignalChannel(name).(*signalChan)
	select {
	case ch.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return errors.New("inmem: workflow completed")
	}
}

// Cancel is a no-op: the in-memory adapter relies on the caller's ctx
// cancellation (propagated by the bus's Abort) rather than an engine-level
// cancel channel, since its workflow goroutine already observes ctx.
func (h *handle) Cancel(_ context.Context) error { return nil }

func (w *wfCtx) Context() context.Context { return w.ctx }
func (w *wfCtx) WorkflowID() string       { return w.id }
func (w *wfCtx) RunID() string            { return w.runID }
func (w *wfCtx) Logger() telemetry.Logger { return w.logger }
func (w *wfCtx) Now() time.Time { return time.Now() }

func (w *wfCtx) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (w *wfCtx) ExecuteActivityAsync(ctx context.Context, req engine.ActivityRequest) (engine.Future, error) {
	w.eng.mu.RLock()
	a, ok := w.eng.activities[req.Name]
	w.eng.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: activity %q not registered", req.Name)
	}
	f := &future{ready: make(chan struct{})}
	go func() {
		defer close(f.ready)
		res, err := a.handler(ctx, req.Input)
		f.mu.Lock()
		f.result, f.err = res, err
		f.mu.Unlock()
	}()
	return f, nil
}

func (f *future) Get(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.ready:
		f.mu.Lock()
		defer f.mu.Unlock()
		assignResult(result, f.result)
		return f.err
	}
}

func (f *future) IsReady() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

func (w *wfCtx) SignalChannel(name string) engine.SignalChannel {
	w.sigMu.Lock()
	defer w.sigMu.Unlock()
	ch, ok := w.sigs[name]
	if !ok {
		ch = &signalChan{ch: make(chan any, 1)}
		w.sigs[name] = ch
	}
	return ch
}

func (s *signalChan) Receive(ctx context.Context, dest any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case v := <-s.ch:
		assignResult(dest, v)
		return nil
	}
}

func (s *signalChan) ReceiveAsync(dest any) bool {
	select {
	case v := <-s.ch:
		assignResult(dest, v)
		return true
	default:
		return false
	}
}

func assignResult(dst, src any) {
	if dst == nil || src == nil {
		return
	}
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return
	}
	sv := reflect.ValueOf(src)
	if sv.IsValid() && sv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv)
		return
	}
	if dv.Elem().Kind() == reflect.Interface && sv.Type().Implements(dv.Elem().Type()) {
		dv.Elem().Set(sv)
	}
}
