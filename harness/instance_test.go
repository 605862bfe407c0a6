package harness_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harness/bus"
	"goa.design/harness/harness"
	"goa.design/harness/recording/inmemstore"
	"goa.design/harness/signal"
)

func TestRunLiveReturnsResultStateAndSignals(t *testing.T) {
	in := harness.Create(harness.Input{
		InitialState: map[string]any{"count": 0},
		Run: func(ctx context.Context, rc *harness.RunContext) (any, error) {
			_, err := rc.Phase(ctx, "setup", func(ctx context.Context) (any, error) {
				rc.State()["count"] = 1
				return nil, nil
			})
			if err != nil {
				return nil, err
			}
			rc.Emit(ctx, "custom:note", "hello")
			return "done", nil
		},
	})

	result, err := in.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "done", result.Value)
	require.Equal(t, 1, result.State["count"])
	require.False(t, result.TerminatedEarly)
	require.Equal(t, 1, result.Metrics.Phases)

	var names []string
	for _, s := range result.Signals {
		names = append(names, s.Name)
	}
	require.Contains(t, names, "harness:start")
	require.Contains(t, names, "phase:start")
	require.Contains(t, names, "phase:complete")
	require.Contains(t, names, "custom:note")
	require.Contains(t, names, "harness:end")
}

func TestRunLivePropagatesRunFuncError(t *testing.T) {
	boom := errors.New("boom")
	in := harness.Create(harness.Input{
		Run: func(ctx context.Context, rc *harness.RunContext) (any, error) {
			return nil, boom
		},
	})
	result, err := in.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.True(t, result.TerminatedEarly)
}

func TestRetryStopsOnSuccessAndReportsAttempts(t *testing.T) {
	in := harness.Create(harness.Input{
		Run: func(ctx context.Context, rc *harness.RunContext) (any, error) {
			attempt := 0
			return rc.Retry(ctx, "flaky", func(ctx context.Context) (any, error) {
				attempt++
				if attempt < 3 {
					return nil, errors.New("not yet")
				}
				return attempt, nil
			}, harness.RetryOptions{MaxAttempts: 5})
		},
	})
	result, err := in.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, result.Value)

	var attempts int
	for _, s := range result.Signals {
		if s.Name == "retry:attempt" {
			attempts++
		}
	}
	require.Equal(t, 3, attempts)
}

func TestRetryGivesUpWhenShouldRetryReturnsFalse(t *testing.T) {
	permanent := errors.New("permanent")
	in := harness.Create(harness.Input{
		Run: func(ctx context.Context, rc *harness.RunContext) (any, error) {
			return rc.Retry(ctx, "doomed", func(ctx context.Context) (any, error) {
				return nil, permanent
			}, harness.RetryOptions{
				MaxAttempts: 5,
				ShouldRetry: func(error) bool { return false },
			})
		},
	})
	result, err := in.Run(context.Background())
	require.ErrorIs(t, err, permanent)
	require.True(t, result.TerminatedEarly)
}

func TestParallelRunsAllItemsAndReportsResults(t *testing.T) {
	in := harness.Create(harness.Input{
		Run: func(ctx context.Context, rc *harness.RunContext) (any, error) {
			fns := []harness.PhaseFunc{
				func(ctx context.Context) (any, error) { return 1, nil },
				func(ctx context.Context) (any, error) { return 2, nil },
				func(ctx context.Context) (any, error) { return 3, nil },
			}
			return rc.Parallel(ctx, "fanout", fns, harness.ParallelOptions{})
		},
	})
	result, err := in.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []any{1, 2, 3}, result.Value)

	var completes int
	for _, s := range result.Signals {
		if s.Name == "parallel:item:complete" {
			completes++
		}
	}
	require.Equal(t, 3, completes)
}

func TestAttachObservesSignalsAndCleansUpAfterRun(t *testing.T) {
	var seen []string
	cleaned := false
	in := harness.Create(harness.Input{
		Run: func(ctx context.Context, rc *harness.RunContext) (any, error) {
			rc.Emit(ctx, "custom:ping", nil)
			return nil, nil
		},
	}).Attach(func(h *bus.Hub) func() {
		sub := h.SubscribePatterns(func(_ context.Context, s signal.Signal) {
			seen = append(seen, s.Name)
		}, "**")
		return func() {
			sub.Unsubscribe()
			cleaned = true
		}
	})

	_, err := in.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, seen, "custom:ping")
	require.True(t, cleaned)
}

func TestRecordThenReplayReproducesSignalSequence(t *testing.T) {
	store := inmemstore.New()
	ctx := context.Background()

	recorded := harness.Create(harness.Input{
		Run: func(ctx context.Context, rc *harness.RunContext) (any, error) {
			rc.Emit(ctx, "custom:a", 1)
			rc.Emit(ctx, "custom:b", 2)
			return "ok", nil
		},
		Recording: harness.RecordingOptions{Mode: harness.ModeRecord, Store: store, HarnessType: "test"},
	})
	first, err := recorded.Run(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first.RecordingID)

	var replayedNames []string
	replayed := harness.Create(harness.Input{
		Recording: harness.RecordingOptions{Mode: harness.ModeReplay, Store: store, RecordingID: first.RecordingID},
	}).On("**", func(_ context.Context, s signal.Signal) {
		replayedNames = append(replayedNames, s.Name)
	})
	result, err := replayed.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, first.RecordingID, result.RecordingID)
	require.Contains(t, replayedNames, "custom:a")
	require.Contains(t, replayedNames, "custom:b")
}
