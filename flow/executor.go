package flow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"goa.design/harness/binding"
	"goa.design/harness/bus"
	"goa.design/harness/scope"
	"goa.design/harness/signal"
)

type (
	// ExecutorOptions bounds the scheduler's concurrency and total work,
	// the policy-engine-style caps SPEC_FULL.md §4 adds on top of the
	// distilled scheduling algorithm.
	ExecutorOptions struct {
		// MaxConcurrentNodes caps how many ready peers run at once within a
		// single scheduling round. Zero means no cap.
		MaxConcurrentNodes int
		// MaxTotalNodeRuns caps the number of nodes the scheduling rounds
		// start across the whole run. forEach iterations and retry attempts
		// are not counted against it. Zero means no cap.
		MaxTotalNodeRuns int
	}

	// Executor drives a single Definition to completion, honoring guards,
	// gates, forEach fan-out, node policies and the bus's pause/resume/abort
	// state machine. Grounded on the teacher's workflow_loop round-based
	// dispatch loop, generalized from a single-agent tool-turn loop into a
	// multi-node dataflow scheduler.
	Executor struct {
		registry *binding.Registry
		hub      *bus.Hub
		opts     ExecutorOptions
		runID    string
		runs     int
	}
)

// NewExecutor constructs an Executor bound to a node type registry and a
// bus Hub, which owns the pause/resume/abort state machine the executor
// observes.
func NewExecutor(registry *binding.Registry, hub *bus.Hub, opts ExecutorOptions) *Executor {
	return &Executor{registry: registry, hub: hub, opts: opts}
}

// Run drives def to completion starting from input, returning the final
// Snapshot. If ctx is cancelled by a resumable abort, Run persists the
// executor's actual progress via hub.UpdatePausedState and returns a
// Snapshot with Status StatusPaused and a nil error.
func (e *Executor) Run(ctx context.Context, def Definition, runID string, input map[string]any) (*Snapshot, error) {
	if err := Validate(def); err != nil {
		return nil, err
	}
	e.runID = runID

	turnID := "turn-" + uuid.NewString()
	ctx = scope.Push(ctx, scope.Delta{RunID: &runID, TurnID: &turnID})

	snap := &Snapshot{
		RunID:        runID,
		Status:       StatusRunning,
		State:        cloneMap(def.State.Initial),
		Outputs:      map[string]any{},
		NodeStatus:   map[string]NodeStatus{},
		EdgeStatus:   map[string]bool{},
		LoopCounters: map[string]int{},
		StartedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	for _, n := range def.Nodes {
		snap.NodeStatus[n.ID] = NodePending
	}

	in := inbound(def)
	out := outbound(def)

	e.hub.Emit(ctx, signal.New("harness:start", map[string]any{"flow": def.Name, "runId": runID}))

	if err := e.loop(ctx, def, in, out, snap, input); err != nil {
		if ctx.Err() != nil {
			e.hub.UpdatePausedState(scope.From(ctx).SessionID, e.currentNodeIndex(def, snap), snap.Outputs, e.currentNodeID(snap), def.Name)
			snap.Status = StatusPaused
			return snap, nil
		}
		snap.Status = StatusFailed
		e.hub.Emit(ctx, signal.New("harness:end", map[string]any{"flow": def.Name, "runId": runID, "status": string(StatusFailed)}))
		return snap, err
	}

	e.finalizePending(ctx, def, snap)
	if snap.Status != StatusFailed {
		snap.Status = StatusComplete
	}
	e.hub.Emit(ctx, signal.New("harness:end", map[string]any{"flow": def.Name, "runId": runID, "status": string(snap.Status)}))
	return snap, nil
}

func (e *Executor) loop(ctx context.Context, def Definition, in, out map[string][]Edge, snap *Snapshot, input map[string]any) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		readyIDs := e.readyNodes(def, in, snap)
		if len(readyIDs) == 0 {
			return nil
		}

		progressed := false
		for _, nodeID := range readyIDs {
			n, _ := nodeByID(def, nodeID)
			bindCtx, err := e.bindingContext(def, snap, input)
			if err != nil {
				return err
			}
			guard, err := evaluateGuard(n.When, bindCtx)
			if err != nil {
				return err
			}
			if !guard {
				snap.NodeStatus[n.ID] = NodeSkipped
				e.hub.Emit(ctx, signal.New("node:skipped", map[string]any{"nodeId": n.ID, "reason": "guard"}))
				progressed = true
				continue
			}
			snap.NodeStatus[n.ID] = NodeRunning
		}

		runnable := make([]Node, 0, len(readyIDs))
		for _, nodeID := range readyIDs {
			if snap.NodeStatus[nodeID] == NodeRunning {
				n, _ := nodeByID(def, nodeID)
				runnable = append(runnable, n)
			}
		}

		results, err := e.runRound(ctx, def, runnable, snap, input)
		if err != nil {
			return err
		}

		for _, res := range results {
			progressed = true
			if res.skipped {
				snap.NodeStatus[res.node.ID] = NodeSkipped
				continue
			}
			if res.err != nil {
				snap.NodeStatus[res.node.ID] = NodeFailed
				return res.err
			}
			snap.NodeStatus[res.node.ID] = NodeDone
			snap.Outputs[res.node.ID] = res.output
			bindCtx, err := e.bindingContext(def, snap, input)
			if err != nil {
				return err
			}
			if err := e.fireOutboundEdges(ctx, def, res.node.ID, out, snap, bindCtx); err != nil {
				return err
			}
		}

		if !progressed {
			return nil
		}
	}
}

type nodeResult struct {
	node    Node
	output  any
	skipped bool
	err     error
}

// runRound executes every node in runnable concurrently, bounded by
// MaxConcurrentNodes, launching their goroutines in lexicographic node-id
// order (§4.4 point 3). Each node emits its own node:start from inside its
// goroutine, so when a round has more than one runnable node the order of
// their node:start signals is not fixed.
func (e *Executor) runRound(ctx context.Context, def Definition, runnable []Node, snap *Snapshot, input map[string]any) ([]nodeResult, error) {
	sort.Slice(runnable, func(i, j int) bool { return runnable[i].ID < runnable[j].ID })

	results := make([]nodeResult, len(runnable))
	g, gctx := errgroup.WithContext(ctx)
	if e.opts.MaxConcurrentNodes > 0 {
		g.SetLimit(e.opts.MaxConcurrentNodes)
	}

	for i, n := range runnable {
		i, n := i, n
		if e.opts.MaxTotalNodeRuns > 0 && e.runs >= e.opts.MaxTotalNodeRuns {
			results[i] = nodeResult{node: n, err: fmt.Errorf("flow: MaxTotalNodeRuns (%d) exceeded", e.opts.MaxTotalNodeRuns)}
			continue
		}
		e.runs++
		g.Go(func() error {
			bindCtx, err := e.bindingContext(def, snap, input)
			if err != nil {
				return err
			}
			nodeInput, err := e.substituteInput(gctx, n.Input, bindCtx)
			if err != nil {
				return err
			}
			output, skipped, err := e.runNode(gctx, n, nodeInput)
			results[i] = nodeResult{node: n, output: output, skipped: skipped, err: err}
			if err != nil && !skipped {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// readyNodes returns the ids of pending nodes whose inbound-edge gating is
// satisfied, sorted lexicographically (§4.4 point 3's tie-break).
func (e *Executor) readyNodes(def Definition, in map[string][]Edge, snap *Snapshot) []string {
	var ids []string
	for _, n := range def.Nodes {
		if snap.NodeStatus[n.ID] != NodePending {
			continue
		}
		if ready(n.ID, in, snap.EdgeStatus) {
			ids = append(ids, n.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// bindingContext assembles the §4.3 layered document: flow.input, one key
// per completed node's last output, and state.
func (e *Executor) bindingContext(def Definition, snap *Snapshot, input map[string]any) (binding.Context, error) {
	values := map[string]any{
		"flow":  map[string]any{"input": input},
		"state": snap.State,
	}
	for id, output := range snap.Outputs {
		values[id] = output
	}
	return binding.NewContext(values)
}

// finalizePending marks every node that never became ready (because an
// upstream edge guard never fired it) as skipped, satisfying scenario B's
// "unreached branch is skipped" expectation without ever emitting a
// node:start for it.
func (e *Executor) finalizePending(ctx context.Context, def Definition, snap *Snapshot) {
	for _, n := range def.Nodes {
		if snap.NodeStatus[n.ID] == NodePending {
			snap.NodeStatus[n.ID] = NodeSkipped
			e.hub.Emit(ctx, signal.New("node:skipped", map[string]any{"nodeId": n.ID, "reason": "unreached"}))
		}
	}
}

func (e *Executor) currentNodeIndex(def Definition, snap *Snapshot) int {
	for i, n := range def.Nodes {
		if snap.NodeStatus[n.ID] != NodeDone && snap.NodeStatus[n.ID] != NodeSkipped {
			return i
		}
	}
	return len(def.Nodes)
}

func (e *Executor) currentNodeID(snap *Snapshot) string {
	for id, st := range snap.NodeStatus {
		if st == NodeRunning {
			return id
		}
	}
	return ""
}
