// Package engine abstracts durable workflow execution so a Definition can
// run in-process or on a durable backend (Temporal) without the executor
// caring which. Grounded directly on the teacher's
// runtime/agent/engine.Engine abstraction, narrowed to the operations the
// flow executor actually needs: starting a run as a workflow, executing a
// node as an activity, and delivering session control signals
// (pause/resume/abort) through the engine's signal-channel mechanism.
package engine

import (
	"context"
	"time"

	"goa.design/harness/telemetry"
)

type (
	// Engine registers workflow/activity definitions and starts runs.
	// Implementations translate these into backend-specific primitives
	// (goroutines for the in-memory adapter, Temporal workflows/activities
	// for the durable adapter).
	Engine interface {
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error
		RegisterActivity(ctx context.Context, def ActivityDefinition) error
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is the executor's run loop as seen by the engine: it
	// receives a WorkflowContext and the flow input, and returns the final
	// result or an error. Implementations must keep it deterministic when
	// run on a durable backend: no direct I/O, randomness, or wall-clock
	// reads outside of ctx.Now().
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to a running workflow.
	WorkflowContext interface {
		Context() context.Context
		WorkflowID() string
		RunID() string
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)
		SignalChannel(name string) SignalChannel
		Logger() telemetry.Logger
		Now() time.Time
	}

	// Future represents a pending activity result.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers a named activity handler, used by the
	// executor to run a single node's NodeType.Run as an activity so a
	// durable engine can retry/checkpoint it independently of the workflow.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc performs a node's side-effecting work.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout for an activity invocation.
	ActivityOptions struct {
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a run as a workflow.
	WorkflowStartRequest struct {
		ID        string
		Workflow  string
		TaskQueue string
		Input     any
	}

	// ActivityRequest describes a single activity invocation.
	ActivityRequest struct {
		Name        string
		Input       any
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets callers interact with a running workflow.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
	}

	// RetryPolicy mirrors flow.RetryPolicy in engine-neutral terms.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel delivers engine-native signals (pause/resume/abort
	// control messages) into a running workflow.
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}
)
