package scope_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harness/scope"
)

func TestFromEmptyContext(t *testing.T) {
	require.Equal(t, scope.Context{}, scope.From(context.Background()))
}

func TestIntoFrom(t *testing.T) {
	ctx := scope.Into(context.Background(), scope.New("sess-1"))
	require.Equal(t, "sess-1", scope.From(ctx).SessionID)
}

func TestPushInheritsUnsetFields(t *testing.T) {
	ctx := scope.Into(context.Background(), scope.New("sess-1"))
	ctx = scope.Push(ctx, scope.Delta{Phase: &scope.Phase{Name: "ingest"}})
	ctx = scope.Push(ctx, scope.Delta{Task: &scope.Task{ID: "task-1"}})

	c := scope.From(ctx)
	require.Equal(t, "sess-1", c.SessionID)
	require.Equal(t, "ingest", c.Phase.Name)
	require.Equal(t, "task-1", c.Task.ID)
}

func TestPushIsolatesSiblingBranches(t *testing.T) {
	root := scope.Into(context.Background(), scope.New("sess-1"))

	a := scope.Push(root, scope.Delta{Task: &scope.Task{ID: "task-a"}})
	b := scope.Push(root, scope.Delta{Task: &scope.Task{ID: "task-b"}})

	require.Equal(t, "task-a", scope.From(a).Task.ID)
	require.Equal(t, "task-b", scope.From(b).Task.ID)
	require.Nil(t, scope.From(root).Task)
}

func TestPushOverridesAgent(t *testing.T) {
	root := scope.Into(context.Background(), scope.New("sess-1"))
	ctx := scope.Push(root, scope.Delta{Agent: &scope.Agent{ID: "agent-1"}})
	ctx = scope.Push(ctx, scope.Delta{Agent: &scope.Agent{ID: "agent-2"}})
	require.Equal(t, "agent-2", scope.From(ctx).Agent.ID)
}
