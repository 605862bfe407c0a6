package flow

import (
	"context"
	"fmt"
	"time"

	"goa.design/harness/binding"
	"goa.design/harness/signal"
)

// runNode applies a node's policy (retry, timeout, continueOnError) around
// a single invocation of its registered NodeType.Run, emitting the node
// lifecycle signals of §4.4 point 4. It returns the node's final output and
// whether the node should be treated as skipped (continueOnError) rather
// than failed.
func (e *Executor) runNode(ctx context.Context, n Node, input any) (output any, skipped bool, err error) {
	if n.SubFlow != nil {
		return e.runSubFlow(ctx, n, input)
	}

	nt, err := e.registry.Get(n.Type)
	if err != nil {
		return nil, false, err
	}

	e.hub.Emit(ctx, signal.New("node:start", map[string]any{"nodeId": n.ID, "runId": e.runID}))

	if err := e.registry.ValidateInput(n.Type, input); err != nil {
		return e.finishNodeFailure(ctx, n, fmt.Errorf("binding: node %s input validation: %w", n.ID, err))
	}

	attempts := n.Policy.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := time.Duration(n.Policy.Retry.BackoffMs) * time.Millisecond

	var out any
	var runErr error
	start := time.Now()
	for attempt := 1; attempt <= attempts; attempt++ {
		runCtx := ctx
		var cancel context.CancelFunc
		if n.Policy.TimeoutMs > 0 {
			runCtx, cancel = context.WithTimeout(ctx, time.Duration(n.Policy.TimeoutMs)*time.Millisecond)
		}
		out, runErr = nt.Run(runCtx, input)
		if cancel != nil {
			cancel()
		}
		if runErr == nil {
			break
		}
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		if attempt < attempts {
			if backoff > 0 {
				sleep := backoff
				for i := 1; i < attempt; i++ {
					sleep *= 2
					if sleep > 30*time.Second {
						sleep = 30 * time.Second
						break
					}
				}
				select {
				case <-time.After(sleep):
				case <-ctx.Done():
					runErr = ctx.Err()
					attempt = attempts
				}
			}
		}
	}

	if runErr != nil {
		return e.finishNodeFailure(ctx, n, runErr)
	}

	if err := e.registry.ValidateOutput(n.Type, out); err != nil {
		return e.finishNodeFailure(ctx, n, fmt.Errorf("binding: node %s output validation: %w", n.ID, err))
	}

	durationMs := time.Since(start).Milliseconds()
	e.hub.Emit(ctx, signal.New("node:complete", map[string]any{"nodeId": n.ID, "output": out, "durationMs": durationMs}))
	return out, false, nil
}

// runSubFlow drives n.SubFlow to completion via a fresh, independently-
// scheduled Executor sharing this Executor's registry/hub/opts, emitting a
// "recording:linked" signal that carries the parent/child run ids so the
// nested run's own signals can be correlated without flattening them into
// the parent trace. Mirrors the teacher's ChildRunLinked/RunStreamEnd pair.
func (e *Executor) runSubFlow(ctx context.Context, n Node, input any) (any, bool, error) {
	start := signal.New("node:start", map[string]any{"nodeId": n.ID, "runId": e.runID})
	e.hub.Emit(ctx, start)

	childRunID := e.runID + "/" + n.ID
	linked := signal.New("recording:linked", map[string]any{
		"parentRunId": e.runID,
		"childRunId":  childRunID,
		"nodeId":      n.ID,
	}).WithSource(signal.Source{Node: n.ID, Parent: start.ID})
	e.hub.Emit(ctx, linked)

	childInput, _ := input.(map[string]any)
	child := NewExecutor(e.registry, e.hub, e.opts)
	snap, err := child.Run(ctx, *n.SubFlow, childRunID, childInput)
	if err != nil {
		return e.finishNodeFailure(ctx, n, err)
	}
	if snap.Status == StatusPaused {
		// Run swallows a cancellation-triggered pause into a nil error; the
		// parent node is not done either, so surface the cancellation so the
		// parent's own loop pauses in turn instead of reporting success.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		return nil, false, fmt.Errorf("flow: sub-flow %s (node %s) paused", n.SubFlow.Name, n.ID)
	}
	if snap.Status == StatusFailed {
		return e.finishNodeFailure(ctx, n, fmt.Errorf("flow: sub-flow %s (node %s) failed", n.SubFlow.Name, n.ID))
	}

	e.hub.Emit(ctx, signal.New("node:complete", map[string]any{"nodeId": n.ID, "output": snap.Outputs}))
	return snap.Outputs, false, nil
}

func (e *Executor) finishNodeFailure(ctx context.Context, n Node, runErr error) (any, bool, error) {
	if n.Policy.ContinueOnError {
		e.hub.Emit(ctx, signal.New("node:skipped", map[string]any{"nodeId": n.ID, "reason": runErr.Error()}))
		return nil, true, nil
	}
	e.hub.Emit(ctx, signal.New("node:error", map[string]any{"nodeId": n.ID, "error": runErr.Error()}))
	return nil, false, runErr
}

// evaluateGuard resolves a node or edge's "when" condition against the
// flow's current binding context. The condition is evaluated as given; no
// {{ }} substitution is applied to it.
func evaluateGuard(when any, ctx binding.Context) (bool, error) {
	if when == nil {
		return true, nil
	}
	switch v := when.(type) {
	case string:
		return binding.Evaluate(v, ctx)
	case map[string]any:
		return binding.Evaluate(v, ctx)
	default:
		return false, fmt.Errorf("flow: unsupported guard type %T", when)
	}
}
