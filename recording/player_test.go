package recording_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harness/recording"
	"goa.design/harness/signal"
)

func sample() recording.Recording {
	return recording.Recording{
		ID: "rec-1",
		Signals: []signal.Signal{
			signal.New("node:start", nil),
			signal.New("harness:text:delta", map[string]any{"content": "Hel"}),
			signal.New("harness:text:delta", map[string]any{"content": "lo"}),
			signal.New("node:complete", nil),
			signal.New("harness:end", nil),
		},
		Checkpoints: []recording.Checkpoint{{Name: "after-node", Index: 4}},
	}
}

func TestStepAndPosition(t *testing.T) {
	p := recording.NewPlayer(sample())
	pos := p.Position()
	require.True(t, pos.AtStart)
	require.Equal(t, 5, pos.Total)

	s, ok := p.Step()
	require.True(t, ok)
	require.Equal(t, "node:start", s.Name)
	require.False(t, p.Position().AtStart)
}

func TestBackAndGoto(t *testing.T) {
	p := recording.NewPlayer(sample())
	p.Goto(3)
	require.Equal(t, 3, p.Position().Index)

	s, ok := p.Back()
	require.True(t, ok)
	require.Equal(t, "harness:text:delta", s.Name)
}

func TestGotoClamps(t *testing.T) {
	p := recording.NewPlayer(sample())
	p.Goto(-5)
	require.Equal(t, 0, p.Position().Index)
	p.Goto(999)
	require.Equal(t, 5, p.Position().Index)
}

func TestGotoCheckpoint(t *testing.T) {
	p := recording.NewPlayer(sample())
	require.True(t, p.GotoCheckpoint("after-node"))
	require.Equal(t, 4, p.Position().Index)
	require.False(t, p.GotoCheckpoint("nope"))
}

func TestGotoNextAndPrevious(t *testing.T) {
	p := recording.NewPlayer(sample())
	s, ok := p.GotoNext("node:*")
	require.True(t, ok)
	require.Equal(t, "node:start", s.Name)

	s, ok = p.GotoNext("node:*")
	require.True(t, ok)
	require.Equal(t, "node:complete", s.Name)

	s, ok = p.GotoPrevious("node:*")
	require.True(t, ok)
	require.Equal(t, "node:start", s.Name)
}

func TestFindAll(t *testing.T) {
	p := recording.NewPlayer(sample())
	found := p.FindAll("harness:text:delta")
	require.Len(t, found, 2)
	require.Equal(t, 1, found[0].Index)
	require.Equal(t, 2, found[1].Index)
}

func TestPeekAndPeekRange(t *testing.T) {
	p := recording.NewPlayer(sample())
	s, ok := p.Peek(0)
	require.True(t, ok)
	require.Equal(t, "node:start", s.Name)

	_, ok = p.Peek(100)
	require.False(t, ok)

	rng := p.PeekRange(1, 3)
	require.Len(t, rng, 2)
}

func TestSnapshotFoldsDeltasAndTracksRunning(t *testing.T) {
	p := recording.NewPlayer(sample())
	p.FastForward()
	snap := p.Snapshot()
	require.Equal(t, "Hello", snap.Text)
	require.False(t, snap.Running)
}

func TestSnapshotAtMidpointStillRunning(t *testing.T) {
	p := recording.NewPlayer(sample())
	snap := p.SnapshotAt(3)
	require.Equal(t, "Hello", snap.Text)
	require.True(t, snap.Running)
}

func TestRewind(t *testing.T) {
	p := recording.NewPlayer(sample())
	p.FastForward()
	p.Rewind()
	require.True(t, p.Position().AtStart)
}
