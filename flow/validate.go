package flow

import "fmt"

// Validate checks the structural invariants of a flow definition before any
// node runs: unique node ids, edges that reference existing nodes, and
// cycles that are only reachable through a gated or capped forEach edge.
func Validate(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("flow: definition name is required")
	}
	ids := make(map[string]struct{}, len(def.Nodes))
	for _, n := range def.Nodes {
		if n.ID == "" {
			return fmt.Errorf("flow: node id is required")
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("flow: duplicate node id %q", n.ID)
		}
		ids[n.ID] = struct{}{}
	}
	for _, e := range def.Edges {
		if _, ok := ids[e.From]; !ok {
			return fmt.Errorf("flow: edge references unknown source node %q", e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return fmt.Errorf("flow: edge references unknown target node %q", e.To)
		}
		if e.ForEach != nil && e.MaxIterations <= 0 {
			return fmt.Errorf("flow: forEach edge %s->%s requires maxIterations", e.From, e.To)
		}
	}
	return detectUncappedCycles(def)
}

// detectUncappedCycles walks the graph looking for a cycle that contains no
// gated (all) edge and no capped forEach edge anywhere in the cycle; such a
// cycle can never terminate.
func detectUncappedCycles(def Definition) error {
	adj := make(map[string][]Edge, len(def.Nodes))
	for _, e := range def.Edges {
		adj[e.From] = append(adj[e.From], e)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(def.Nodes))
	for _, n := range def.Nodes {
		color[n.ID] = white
	}

	var path []string
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		path = append(path, id)
		for _, e := range adj[id] {
			switch color[e.To] {
			case white:
				if err := visit(e.To); err != nil {
					return err
				}
			case gray:
				if !cycleIsBounded(def, path, e.To) {
					return fmt.Errorf("flow: unbounded cycle detected through node %q", e.To)
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, n := range def.Nodes {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleIsBounded reports whether the cycle formed by closing path back to
// cycleStart contains a gated (all) edge or a capped forEach edge.
func cycleIsBounded(def Definition, path []string, cycleStart string) bool {
	start := -1
	for i, id := range path {
		if id == cycleStart {
			start = i
			break
		}
	}
	if start < 0 {
		return true
	}
	cycle := append(append([]string(nil), path[start:]...), cycleStart)
	for i := 0; i < len(cycle)-1; i++ {
		from, to := cycle[i], cycle[i+1]
		for _, e := range def.Edges {
			if e.From == from && e.To == to {
				if e.Gate == GateAll || e.ForEach != nil {
					return true
				}
			}
		}
	}
	return false
}
