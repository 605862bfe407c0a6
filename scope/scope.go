// Package scope carries the ambient ScopedContext that travels alongside a
// context.Context through every suspension point of a run: run, turn,
// session, phase, task and agent identity. It adopts the teacher's
// run.Context three-layer identifier split (RunID/TurnID/SessionID) on top
// of the phase/task/agent nesting §4 requires, attached the idiomatic Go
// way — as an immutable value threaded through context.Context rather than
// ambient mutable state.
package scope

import "context"

type (
	// Context is the ambient, per-task structure propagated across
	// suspension points. It is immutable: Push returns a new context.Context
	// carrying a new Context value instead of mutating the current one, so
	// that two goroutines derived from sibling scopes never observe each
	// other's Phase/Task/Agent.
	Context struct {
		// RunID identifies one flow-execution attempt at the infrastructure
		// level. It is stable across a pause/resume cycle: resuming a run
		// re-invokes the executor with the same RunID.
		RunID string
		// TurnID identifies one drive of the scheduler loop from its current
		// point to the next yield (completion, failure or pause). A resumed
		// run gets a fresh TurnID even though its RunID is unchanged.
		TurnID string
		// SessionID identifies the conversation a run belongs to, at the
		// application level; several runs/turns can share one SessionID.
		SessionID string
		Phase     *Phase
		Task      *Task
		Agent     *Agent
	}

	// Phase names a named sub-section of a run (e.g. a harness.phase call).
	Phase struct {
		Name      string
		StartedAt int64 // unix nanoseconds; avoids importing time into hot paths
	}

	// Task identifies one concurrent unit of work within a run (e.g. a
	// harness.task call or one node execution).
	Task struct {
		ID        string
		StartedAt int64
	}

	// Agent identifies the reactive agent currently executing, if any.
	Agent struct {
		ID string
	}
)

type ctxKey struct{}

// New constructs a root Context for a freshly started session.
func New(sessionID string) Context {
	return Context{SessionID: sessionID}
}

// Into attaches c to ctx, returning a new context.Context. This is the
// entry point a bus uses when it constructs its root scope at construction
// time.
func Into(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// From extracts the current Context from ctx. Returns the zero Context if
// none was ever attached (e.g. a context never passed through a bus).
func From(ctx context.Context) Context {
	c, _ := ctx.Value(ctxKey{}).(Context)
	return c
}

// Delta describes a partial update applied by Push: fields left nil are
// inherited from the current scope unchanged.
type Delta struct {
	RunID  *string
	TurnID *string
	Phase  *Phase
	Task   *Task
	Agent  *Agent
}

// Push returns a new context.Context whose Context is the current one with
// Delta merged in. The returned context is only valid for the dynamic extent
// the caller chooses to use it in (typically the body of a bus.Scoped call,
// or one goroutine's lifetime) — it is never mutated in place, so pushing
// from two goroutines that share a parent ctx cannot race or leak into one
// another; each goroutine must receive its own derived context explicitly.
func Push(ctx context.Context, d Delta) context.Context {
	cur := From(ctx)
	next := cur
	if d.RunID != nil {
		next.RunID = *d.RunID
	}
	if d.TurnID != nil {
		next.TurnID = *d.TurnID
	}
	if d.Phase != nil {
		next.Phase = d.Phase
	}
	if d.Task != nil {
		next.Task = d.Task
	}
	if d.Agent != nil {
		next.Agent = d.Agent
	}
	return Into(ctx, next)
}
