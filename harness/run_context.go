package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"goa.design/harness/bus"
	"goa.design/harness/scope"
	"goa.design/harness/signal"
)

type (
	// PhaseFunc is the body of a phase or task scope.
	PhaseFunc func(ctx context.Context) (any, error)

	// RetryOptions configures RunContext.Retry.
	RetryOptions struct {
		// MaxAttempts defaults to 1 (no retry) when zero.
		MaxAttempts int
		// BackoffMs is the base exponential backoff; zero disables sleeping
		// between attempts.
		BackoffMs int
		// ShouldRetry decides, given the error from the most recent attempt,
		// whether another attempt should be made. Nil means "always retry
		// until MaxAttempts is exhausted".
		ShouldRetry func(error) bool
	}

	// ParallelOptions configures RunContext.Parallel.
	ParallelOptions struct {
		// MaxConcurrency caps how many fns run at once. Zero means
		// unbounded.
		MaxConcurrency int
	}

	// RunContext is the handle §4.6 passes into a RunFunc, exposing
	// phase/task/retry/parallel/emit. Grounded on the teacher's
	// workflow_turn.go helper style (one function per lifecycle concern,
	// each emitting its own start/complete/failed signals around a user
	// callback), generalized from the fixed plan/tool/resume turn shape
	// into the four arbitrary scopes §4.6 names.
	RunContext struct {
		hub   *bus.Hub
		state map[string]any

		mu      sync.Mutex
		phases  int
		tasks   int
		retries int
	}
)

func newRunContext(hub *bus.Hub, state map[string]any) *RunContext {
	return &RunContext{hub: hub, state: state}
}

// State returns the shared state document RunFunc and its helpers see.
func (rc *RunContext) State() map[string]any { return rc.state }

// Emit is the escape hatch of §4.6: it publishes a signal verbatim.
func (rc *RunContext) Emit(ctx context.Context, name string, data any) {
	rc.hub.Emit(ctx, signal.New(name, data))
}

// Phase scopes fn inside a named phase: phase:start before, phase:complete
// {durationMs} after a successful return, phase:failed{error} if fn returns
// an error or panics (a panic is converted into the returned error).
func (rc *RunContext) Phase(ctx context.Context, name string, fn PhaseFunc) (any, error) {
	rc.mu.Lock()
	rc.phases++
	rc.mu.Unlock()
	scoped := scope.Push(ctx, scope.Delta{Phase: &scope.Phase{Name: name, StartedAt: time.Now().UnixNano()}})
	rc.hub.Emit(scoped, signal.New("phase:start", map[string]any{"phase": name}))
	start := time.Now()
	value, err := runScoped(scoped, fn)
	if err != nil {
		rc.hub.Emit(scoped, signal.New("phase:failed", map[string]any{"phase": name, "error": err.Error()}))
		return value, err
	}
	rc.hub.Emit(scoped, signal.New("phase:complete", map[string]any{"phase": name, "durationMs": sinceMS(start)}))
	return value, nil
}

// Task scopes fn inside a named task, mirroring Phase's signal pattern with
// task:start/task:complete/task:failed.
func (rc *RunContext) Task(ctx context.Context, id string, fn PhaseFunc) (any, error) {
	rc.mu.Lock()
	rc.tasks++
	rc.mu.Unlock()
	scoped := scope.Push(ctx, scope.Delta{Task: &scope.Task{ID: id, StartedAt: time.Now().UnixNano()}})
	rc.hub.Emit(scoped, signal.New("task:start", map[string]any{"task": id}))
	start := time.Now()
	value, err := runScoped(scoped, fn)
	if err != nil {
		rc.hub.Emit(scoped, signal.New("task:failed", map[string]any{"task": id, "error": err.Error()}))
		return value, err
	}
	rc.hub.Emit(scoped, signal.New("task:complete", map[string]any{"task": id, "durationMs": sinceMS(start)}))
	return value, nil
}

// Retry runs fn up to opts.MaxAttempts times, backing off exponentially from
// opts.BackoffMs between attempts (capped at 30s, matching the flow
// executor's node retry backoff), and stopping early when opts.ShouldRetry
// returns false for the latest error. Emits retry:start once, retry:attempt
// at the start of each attempt, retry:attempt:failed after each failed
// attempt (carrying that attempt's durationMs and an errorKind
// classification), retry:backoff before each sleep, and a terminal
// retry:success or retry:failure (itself carrying the total durationMs across
// every attempt and the final errorKind). Each attempt's duration and
// outcome are also reported to the hub's telemetry.Metrics sink as
// harness.retry.attempt/harness.retry.outcome, mirroring the teacher's
// per-tool-call ToolTelemetry instrumentation.
func (rc *RunContext) Retry(ctx context.Context, name string, fn PhaseFunc, opts RetryOptions) (any, error) {
	rc.mu.Lock()
	rc.retries++
	rc.mu.Unlock()
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := time.Duration(opts.BackoffMs) * time.Millisecond
	metrics := rc.hub.Metrics()

	rc.hub.Emit(ctx, signal.New("retry:start", map[string]any{"name": name, "maxAttempts": attempts}))

	totalStart := time.Now()
	var value any
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		rc.hub.Emit(ctx, signal.New("retry:attempt", map[string]any{"name": name, "attempt": attempt}))
		attemptStart := time.Now()
		value, err = runScoped(ctx, fn)
		durationMs := sinceMS(attemptStart)
		metrics.RecordTimer("harness.retry.attempt", time.Since(attemptStart), "name", name)
		if err == nil {
			metrics.IncCounter("harness.retry.outcome", 1, "name", name, "outcome", "success")
			rc.hub.Emit(ctx, signal.New("retry:success", map[string]any{"name": name, "attempt": attempt, "durationMs": durationMs}))
			return value, nil
		}
		kind := errorKind(err)
		metrics.IncCounter("harness.retry.outcome", 1, "name", name, "outcome", "failure", "errorKind", kind)
		rc.hub.Emit(ctx, signal.New("retry:attempt:failed", map[string]any{"name": name, "attempt": attempt, "durationMs": durationMs, "errorKind": kind, "error": err.Error()}))
		if opts.ShouldRetry != nil && !opts.ShouldRetry(err) {
			break
		}
		if attempt == attempts {
			break
		}
		if backoff > 0 {
			sleep := backoff
			for i := 1; i < attempt; i++ {
				sleep *= 2
				if sleep > 30*time.Second {
					sleep = 30 * time.Second
					break
				}
			}
			rc.hub.Emit(ctx, signal.New("retry:backoff", map[string]any{"name": name, "attempt": attempt, "sleepMs": sleep.Milliseconds()}))
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				err = ctx.Err()
				attempt = attempts
			}
		}
	}
	rc.hub.Emit(ctx, signal.New("retry:failure", map[string]any{"name": name, "error": err.Error(), "errorKind": errorKind(err), "durationMs": sinceMS(totalStart)}))
	return value, err
}

// errorKind classifies an error into the coarse buckets worth grouping
// retries by: a deadline/timeout, a cancellation, or an ordinary failure.
func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

// Parallel runs every fn concurrently, bounded by opts.MaxConcurrency, each
// under its own task scope so per-task isolation (§4.7's per-task scope
// isolation rule) holds: one fn's scope.Task never leaks into another's.
// Emits parallel:start, one parallel:item:complete per finished fn (success
// or failure), then parallel:complete. Returns the per-item results in input
// order; the first error encountered is also returned once every fn has
// finished.
func (rc *RunContext) Parallel(ctx context.Context, name string, fns []PhaseFunc, opts ParallelOptions) ([]any, error) {
	rc.hub.Emit(ctx, signal.New("parallel:start", map[string]any{"name": name, "count": len(fns)}))
	results := make([]any, len(fns))

	g, gctx := errgroup.WithContext(ctx)
	if opts.MaxConcurrency > 0 {
		g.SetLimit(opts.MaxConcurrency)
	}
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			itemCtx := scope.Push(gctx, scope.Delta{Task: &scope.Task{ID: fmt.Sprintf("%s[%d]", name, i), StartedAt: time.Now().UnixNano()}})
			value, err := runScoped(itemCtx, fn)
			results[i] = value
			if err != nil {
				rc.hub.Emit(itemCtx, signal.New("parallel:item:complete", map[string]any{"name": name, "index": i, "error": err.Error()}))
				return err
			}
			rc.hub.Emit(itemCtx, signal.New("parallel:item:complete", map[string]any{"name": name, "index": i}))
			return nil
		})
	}
	err := g.Wait()
	rc.hub.Emit(ctx, signal.New("parallel:complete", map[string]any{"name": name}))
	return results, err
}

// runScoped invokes fn, converting a panic into an error so Phase/Task/Retry
// can emit their *:failed/*:failure signal instead of crashing the run.
func runScoped(ctx context.Context, fn PhaseFunc) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("harness: panic: %v", r)
		}
	}()
	return fn(ctx)
}
