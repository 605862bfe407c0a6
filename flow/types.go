// Package flow builds and executes directed flow graphs of nodes connected
// by conditional, gated, and fan-out edges, honoring the pause/resume/abort
// state machine owned by the bus.
package flow

import "time"

type (
	// Definition is a flow as loaded from a flow file: a name, optional
	// initial state, and the node/edge graph.
	Definition struct {
		Name    string
		Version int
		State   StateDef
		Nodes   []Node
		Edges   []Edge
	}

	// StateDef declares the flow's initial workflow state and an optional
	// validation schema.
	StateDef struct {
		Initial map[string]any
		Schema  []byte
	}

	// Node is one executable step of a flow. A node with a non-nil SubFlow
	// runs that nested Definition to completion in place of a registry-
	// looked-up NodeType, its own Outputs becoming this node's output;
	// Type is ignored for such nodes.
	Node struct {
		ID      string
		Type    string
		Input   map[string]any
		When    any
		Policy  Policy
		SubFlow *Definition
	}

	// Policy configures a node's retry/timeout/error-handling behavior.
	Policy struct {
		Retry           RetryPolicy
		TimeoutMs       int
		ContinueOnError bool
	}

	// RetryPolicy configures a node's retry attempts and backoff.
	RetryPolicy struct {
		MaxAttempts int
		BackoffMs   int
	}

	// Gate selects how inbound edges combine to determine node readiness.
	Gate string

	// Edge connects two nodes, optionally gated by a condition, readiness
	// rule, or fan-out over a collection.
	Edge struct {
		From          string
		To            string
		When          any
		Gate          Gate
		ForEach       *ForEach
		MaxIterations int
	}

	// ForEach fans an edge out once per element of the collection resolved
	// at path In, binding each element to the loop variable As.
	ForEach struct {
		In string
		As string
	}
)

const (
	// GateAny fires a node once any inbound edge with this gate has fired.
	// This is the default when Gate is the empty string.
	GateAny Gate = "any"
	// GateAll requires every inbound edge with this gate to have fired.
	GateAll Gate = "all"
)

type (
	// NodeStatus is the lifecycle status of a single node within a run.
	NodeStatus string

	// Status is the lifecycle status of an entire flow run.
	Status string
)

const (
	NodePending NodeStatus = "pending"
	NodeRunning NodeStatus = "running"
	NodeDone    NodeStatus = "done"
	NodeSkipped NodeStatus = "skipped"
	NodeFailed  NodeStatus = "failed"
)

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusComplete Status = "complete"
	StatusAborted  Status = "aborted"
	StatusFailed   Status = "failed"
)

// Snapshot is the single-writer run state mutated by the executor and
// copied out to readers at every lifecycle signal.
type Snapshot struct {
	RunID        string
	Status       Status
	State        map[string]any
	Outputs      map[string]any
	NodeStatus   map[string]NodeStatus
	EdgeStatus   map[string]bool
	LoopCounters map[string]int
	Inbox        []string
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep-enough copy of the snapshot suitable for handing to
// readers without risking a data race with the executor's single-writer
// mutations.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		RunID:     s.RunID,
		Status:    s.Status,
		StartedAt: s.StartedAt,
		UpdatedAt: s.UpdatedAt,
	}
	c.State = cloneMap(s.State)
	c.Outputs = cloneMap(s.Outputs)
	c.NodeStatus = make(map[string]NodeStatus, len(s.NodeStatus))
	for k, v := range s.NodeStatus {
		c.NodeStatus[k] = v
	}
	c.EdgeStatus = make(map[string]bool, len(s.EdgeStatus))
	for k, v := range s.EdgeStatus {
		c.EdgeStatus[k] = v
	}
	c.LoopCounters = make(map[string]int, len(s.LoopCounters))
	for k, v := range s.LoopCounters {
		c.LoopCounters[k] = v
	}
	c.Inbox = append([]string(nil), s.Inbox...)
	return c
}

func cloneMap(m map[string]any) map[string]any {
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
