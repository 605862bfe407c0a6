package flow

import (
	"context"
	"fmt"

	"goa.design/harness/binding"
	"goa.design/harness/signal"
)

func edgeKey(e Edge) string { return e.From + "->" + e.To }

// inbound groups a flow's edges by target node id, the shape the readiness
// check of §4.4 point 2 walks.
func inbound(def Definition) map[string][]Edge {
	m := make(map[string][]Edge, len(def.Nodes))
	for _, e := range def.Edges {
		m[e.To] = append(m[e.To], e)
	}
	return m
}

// outbound groups a flow's edges by source node id.
func outbound(def Definition) map[string][]Edge {
	m := make(map[string][]Edge, len(def.Nodes))
	for _, e := range def.Edges {
		m[e.From] = append(m[e.From], e)
	}
	return m
}

// ready reports whether nodeID's inbound edges satisfy the gating rule of
// §4.4 point 2: every "all"-gated inbound edge fired, and (if any
// "any"-gated inbound edges exist) at least one of them fired. A node with
// no inbound edges at all is ready at start.
func ready(nodeID string, in map[string][]Edge, fired map[string]bool) bool {
	edges := in[nodeID]
	if len(edges) == 0 {
		return true
	}
	var anyEdges, allEdges int
	var anyFired bool
	for _, e := range edges {
		if e.Gate == GateAll {
			allEdges++
			if !fired[edgeKey(e)] {
				return false
			}
			continue
		}
		anyEdges++
		if fired[edgeKey(e)] {
			anyFired = true
		}
	}
	if anyEdges > 0 && !anyFired {
		return false
	}
	return true
}

// fireOutboundEdges evaluates every outbound edge of a node that has just
// completed (status done), marking ordinary edges fired when their guard
// passes and expanding forEach edges into repeated downstream activations,
// per §4.4 points 5-6.
func (e *Executor) fireOutboundEdges(ctx context.Context, def Definition, nodeID string, out map[string][]Edge, snap *Snapshot, bindCtx binding.Context) error {
	for _, edge := range out[nodeID] {
		pass, err := evaluateGuard(edge.When, bindCtx)
		if err != nil {
			return fmt.Errorf("flow: edge %s guard: %w", edgeKey(edge), err)
		}
		if !pass {
			continue
		}
		if edge.ForEach == nil {
			snap.EdgeStatus[edgeKey(edge)] = true
			continue
		}
		if err := e.fireForEach(ctx, def, edge, snap, bindCtx); err != nil {
			return err
		}
		snap.EdgeStatus[edgeKey(edge)] = true

		// fireForEach runs its target node directly rather than through the
		// normal runRound/loop results path, so nothing else ever evaluates
		// the target's own outbound edges. Fire them here, layering the
		// target's freshly-set output onto bindCtx so any guard or forEach
		// source expression downstream can see it.
		targetCtx, err := bindCtx.With(edge.To, snap.Outputs[edge.To])
		if err != nil {
			return fmt.Errorf("flow: edge %s target binding: %w", edgeKey(edge), err)
		}
		if err := e.fireOutboundEdges(ctx, def, edge.To, out, snap, targetCtx); err != nil {
			return err
		}
	}
	return nil
}

// fireForEach resolves edge.ForEach.In against bindCtx, runs the edge's
// target node once per element (binding the loop variable edge.ForEach.As),
// and refuses further iterations once loopCounters[edgeKey] reaches
// MaxIterations, emitting edge:loop-capped for the elements it drops. When
// the source does not resolve to an array, the target is marked skipped
// and never runs.
func (e *Executor) fireForEach(ctx context.Context, def Definition, edge Edge, snap *Snapshot, bindCtx binding.Context) error {
	r, ok := bindCtx.Get(edge.ForEach.In)
	if !ok || !r.IsArray() {
		snap.NodeStatus[edge.To] = NodeSkipped
		e.hub.Emit(ctx, signal.New("node:skipped", map[string]any{"nodeId": edge.To, "reason": "forEach source is not an array"}))
		return nil
	}
	items := r.Array()

	target, err := nodeByID(def, edge.To)
	if err != nil {
		return err
	}

	key := edgeKey(edge)
	var outputs []any
	for _, item := range items {
		if snap.LoopCounters[key] >= edge.MaxIterations {
			e.hub.Emit(ctx, signal.New("edge:loop-capped", map[string]any{"edge": key, "maxIterations": edge.MaxIterations}))
			break
		}
		snap.LoopCounters[key]++

		loopCtx, err := bindCtx.With(edge.ForEach.As, item.Value())
		if err != nil {
			return err
		}
		input, err := e.substituteInput(ctx, target.Input, loopCtx)
		if err != nil {
			return err
		}
		output, _, err := e.runNode(ctx, target, input)
		if err != nil {
			return err
		}
		outputs = append(outputs, output)
	}
	snap.Outputs[target.ID] = outputs
	snap.NodeStatus[target.ID] = NodeDone
	return nil
}

func nodeByID(def Definition, id string) (Node, error) {
	for _, n := range def.Nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return Node{}, fmt.Errorf("flow: unknown node %q", id)
}

// substituteInput applies {{ path }} variable substitution to every string
// field of a node's input, emitting binding:missing for unresolved paths.
func (e *Executor) substituteInput(ctx context.Context, input map[string]any, bindCtx binding.Context) (map[string]any, error) {
	missing := func(path string) {
		e.hub.Emit(ctx, signal.New("binding:missing", map[string]any{"path": path}))
	}
	out := binding.Substitute(map[string]any(input), bindCtx, missing)
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("flow: substitution produced non-object input")
	}
	return m, nil
}
