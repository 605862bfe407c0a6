package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/harness/flow"
)

func TestSnapshotDocRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	snap := &flow.Snapshot{
		RunID:        "run-1",
		Status:       flow.StatusPaused,
		State:        map[string]any{"count": float64(3)},
		Outputs:      map[string]any{"a": "b"},
		NodeStatus:   map[string]flow.NodeStatus{"n1": flow.NodeDone, "n2": flow.NodePending},
		EdgeStatus:   map[string]bool{"n1->n2": true},
		LoopCounters: map[string]int{"loop1": 2},
		Inbox:        []string{"hello"},
		StartedAt:    now,
		UpdatedAt:    now,
	}

	doc := toSnapshotDoc(snap)
	require.Equal(t, "run-1", doc.RunID)
	require.Equal(t, "done", doc.NodeStatus["n1"])

	back := fromSnapshotDoc(doc)
	require.Equal(t, snap.RunID, back.RunID)
	require.Equal(t, snap.Status, back.Status)
	require.Equal(t, snap.NodeStatus, back.NodeStatus)
	require.Equal(t, snap.EdgeStatus, back.EdgeStatus)
	require.Equal(t, snap.LoopCounters, back.LoopCounters)
	require.Equal(t, snap.Inbox, back.Inbox)
	require.True(t, snap.StartedAt.Equal(back.StartedAt))
}

func TestOptionsCollectionRequiresClientAndDatabase(t *testing.T) {
	_, _, err := Options{}.collection(defaultSnapshotCollection)
	require.Error(t, err)
}
