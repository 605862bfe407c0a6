package inmemstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harness/recording"
	"goa.design/harness/recording/inmemstore"
	"goa.design/harness/signal"
)

func TestAppendAndLoad(t *testing.T) {
	ctx := context.Background()
	s := inmemstore.New()

	id, err := s.Create(ctx, recording.CreateOptions{HarnessType: "chat"})
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, id, signal.New("node:start", nil)))
	require.NoError(t, s.AppendBatch(ctx, id, []signal.Signal{
		signal.New("node:complete", nil),
		signal.New("harness:end", nil),
	}))
	require.NoError(t, s.Checkpoint(ctx, id, "midpoint"))
	require.NoError(t, s.Finalize(ctx, id, 120))

	rec, err := s.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, rec.Signals, 3)
	require.Len(t, rec.Checkpoints, 1)
	require.Equal(t, "midpoint", rec.Checkpoints[0].Name)
	require.Equal(t, 3, rec.Checkpoints[0].Index)
	require.NotNil(t, rec.FinalizedAt)
	require.EqualValues(t, 120, rec.DurationMS)
}

func TestAppendUnknownIDFails(t *testing.T) {
	s := inmemstore.New()
	err := s.Append(context.Background(), "nope", signal.New("x", nil))
	require.ErrorIs(t, err, recording.ErrNotFound)
}

func TestAppendAfterFinalizeFails(t *testing.T) {
	ctx := context.Background()
	s := inmemstore.New()
	id, _ := s.Create(ctx, recording.CreateOptions{})
	require.NoError(t, s.Finalize(ctx, id, 0))
	err := s.Append(ctx, id, signal.New("x", nil))
	require.ErrorIs(t, err, recording.ErrFinalized)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := inmemstore.New()
	id1, _ := s.Create(ctx, recording.CreateOptions{HarnessType: "chat"})
	id2, _ := s.Create(ctx, recording.CreateOptions{HarnessType: "chat"})

	list, err := s.List(ctx, recording.ListFilter{HarnessType: "chat"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, id2, list[0].ID)
	require.Equal(t, id1, list[1].ID)
}

func TestLoadSignalsFiltersByPattern(t *testing.T) {
	ctx := context.Background()
	s := inmemstore.New()
	id, _ := s.Create(ctx, recording.CreateOptions{})
	require.NoError(t, s.AppendBatch(ctx, id, []signal.Signal{
		signal.New("node:start", nil),
		signal.New("node:complete", nil),
		signal.New("other:thing", nil),
	}))

	sigs, err := s.LoadSignals(ctx, id, recording.LoadSignalsOptions{Patterns: []string{"node:*"}})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
}

func TestDeleteAndExists(t *testing.T) {
	ctx := context.Background()
	s := inmemstore.New()
	id, _ := s.Create(ctx, recording.CreateOptions{})

	ok, _ := s.Exists(ctx, id)
	require.True(t, ok)

	require.NoError(t, s.Delete(ctx, id))
	ok, _ = s.Exists(ctx, id)
	require.False(t, ok)
}
