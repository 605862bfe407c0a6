// Package temporal adapts goa.design/harness/flow/engine.Engine onto
// Temporal, the durable workflow engine option SPEC_FULL.md's domain stack
// names. Grounded directly on the teacher's
// runtime/agent/engine/temporal.Engine: a per-task-queue worker bundle,
// workflow/activity registration wrapped to inject the engine-neutral
// WorkflowContext, and OTEL instrumentation wired through
// go.temporal.io/sdk/contrib/opentelemetry. Narrowed to what the flow
// executor needs: no typed workflow variants, no child-workflow tracking.
package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"goa.design/harness/flow/engine"
	"goa.design/harness/telemetry"
)

// Options configures the Temporal engine adapter.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, ClientOptions
	// constructs a lazy client.
	Client client.Client
	// ClientOptions constructs the client when Client is nil.
	ClientOptions *client.Options
	// TaskQueue is the default queue for workflow/activity definitions that
	// omit one. Required.
	TaskQueue string
	// WorkerOptions is forwarded to worker.New for every queue this engine
	// manages.
	WorkerOptions worker.Options
	// DisableTracing skips the OTEL tracing interceptor.
	DisableTracing bool

	Logger telemetry.Logger
}

// Engine implements engine.Engine on top of a Temporal client and worker
// pool, one worker per unique task queue.
type Engine struct {
	client       client.Client
	closeClient  bool
	defaultQueue string
	workerOpts   worker.Options
	logger       telemetry.Logger

	mu      sync.Mutex
	workers map[string]worker.Worker
}

// New constructs a Temporal-backed Engine. TaskQueue must be set and either
// Client or ClientOptions must be provided.
func New(opts Options) (*Engine, error) {
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("temporal engine: a default task queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("temporal engine: client options are required when Client is nil")
		}
		clientOpts := *opts.ClientOptions
		if !opts.DisableTracing {
			ti, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
			if err != nil {
				return nil, fmt.Errorf("temporal engine: tracing interceptor: %w", err)
			}
			clientOpts.Interceptors = append(clientOpts.Interceptors, ti)
		}
		c, err := client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: create client: %w", err)
		}
		cli = c
		closeClient = true
	}

	return &Engine{
		client:       cli,
		closeClient:  closeClient,
		defaultQueue: opts.TaskQueue,
		workerOpts:   opts.WorkerOptions,
		logger:       logger,
		workers:      make(map[string]worker.Worker),
	}, nil
}

func (e *Engine) workerForQueue(queue string) worker.Worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.workers[queue]
	if !ok {
		w = worker.New(e.client, queue, e.workerOpts)
		e.workers[queue] = w
	}
	return w
}

// RegisterWorkflow registers def with the worker for its task queue
// (falling back to the engine's default queue), wrapping the handler so it
// receives the engine-neutral WorkflowContext.
func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid workflow definition")
	}
	queue := def.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}
	w := e.workerForQueue(queue)
	w.RegisterWorkflowWithOptions(func(tctx workflow.Context, input any) (any, error) {
		return def.Handler(newWorkflowContext(tctx, e.logger), input)
	}, workflow.RegisterOptions{Name: def.Name})
	return nil
}

// RegisterActivity registers def's handler as a Temporal activity on the
// engine's default queue (activities run on whichever worker the workflow
// schedules them to).
func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid activity definition")
	}
	w := e.workerForQueue(e.defaultQueue)
	w.RegisterActivityWithOptions(func(actx context.Context, input any) (any, error) {
		return def.Handler(actx, input)
	}, activity.RegisterOptions{Name: def.Name})
	return nil
}

// StartWorkflow starts its worker pool (idempotent) and executes def on the
// Temporal client.
func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	if req.Workflow == "" {
		return nil, fmt.Errorf("temporal engine: workflow name is required")
	}
	queue := req.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}
	e.startWorkers()

	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        req.ID,
		TaskQueue: queue,
	}, req.Workflow, req.Input)
	if err != nil {
		return nil, err
	}
	return &workflowHandle{run: run, client: e.client}, nil
}

func (e *Engine) startWorkers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.workers {
		_ = w.Start()
	}
}

// Close stops every managed worker and, if this engine created its own
// client, closes it.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.workers {
		w.Stop()
	}
	if e.closeClient {
		e.client.Close()
	}
}

type workflowHandle struct {
	run    client.WorkflowRun
	client client.Client
}

func (h *workflowHandle) Wait(ctx context.Context, result any) error {
	return h.client.GetWorkflow(ctx, h.run.GetID(), h.run.GetRunID()).Get(ctx, result)
}

func (h *workflowHandle) Signal(ctx context.Context, name string, payload any) error {
	return h.client.SignalWorkflow(ctx, h.run.GetID(), h.run.GetRunID(), name, payload)
}

func (h *workflowHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}

type wfCtx struct {
	tctx   workflow.Context
	logger telemetry.Logger
}

func newWorkflowContext(tctx workflow.Context, logger telemetry.Logger) *wfCtx {
	return &wfCtx{tctx: tctx, logger: logger}
}

func (w *wfCtx) Context() context.Context { return engineContext{w.tctx} }
func (w *wfCtx) WorkflowID() string       { return workflow.GetInfo(w.tctx).WorkflowExecution.ID }
func (w *wfCtx) RunID() string            { return workflow.GetInfo(w.tctx).WorkflowExecution.RunID }
func (w *wfCtx) Logger() telemetry.Logger { return w.logger }
func (w *wfCtx) Now() time.Time           { return workflow.Now(w.tctx) }

func (w *wfCtx) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (w *wfCtx) ExecuteActivityAsync(_ context.Context, req engine.ActivityRequest) (engine.Future, error) {
	actx := workflow.WithActivityOptions(w.tctx, workflow.ActivityOptions{
		StartToCloseTimeout: req.Timeout,
		RetryPolicy:         convertRetryPolicy(req.RetryPolicy),
	})
	f := workflow.ExecuteActivity(actx, req.Name, req.Input)
	return &future{f: f}, nil
}

func (w *wfCtx) SignalChannel(name string) engine.SignalChannel {
	return &signalChannel{tctx: w.tctx, ch: workflow.GetSignalChannel(w.tctx, name)}
}

type future struct{ f workflow.Future }

func (f *future) Get(_ context.Context, result any) error { return f.f.Get(nil, result) }
func (f *future) IsReady() bool                           { return f.f.IsReady() }

type signalChannel struct {
	tctx workflow.Context
	ch   workflow.ReceiveChannel
}

func (s *signalChannel) Receive(_ context.Context, dest any) error {
	s.ch.Receive(s.tctx, dest)
	return nil
}

func (s *signalChannel) ReceiveAsync(dest any) bool {
	_, ok := s.ch.ReceiveAsync(dest)
	return ok
}

// engineContext satisfies context.Context by delegating to a Temporal
// workflow.Context, so activity wrappers written against the standard
// library context interface work unmodified inside a deterministic
// workflow. Temporal explicitly forbids using workflow.Context as a
// context.Context directly; this thin adapter only forwards Done/Err/Value
// semantics a caller might read incidentally and must never be passed to
// blocking stdlib I/O.
type engineContext struct{ workflow.Context }

func (engineContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (c engineContext) Done() <-chan struct{}     { return c.Context.Done() }
func (c engineContext) Err() error                { return c.Context.Err() }

func convertRetryPolicy(rp engine.RetryPolicy) *temporal.RetryPolicy {
	if rp.MaxAttempts == 0 && rp.InitialInterval == 0 {
		return nil
	}
	coeff := rp.BackoffCoefficient
	if coeff < 1 {
		coeff = 1
	}
	return &temporal.RetryPolicy{
		MaximumAttempts:    int32(rp.MaxAttempts),
		InitialInterval:    rp.InitialInterval,
		BackoffCoefficient: coeff,
	}
}
