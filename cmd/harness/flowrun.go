package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"goa.design/harness/flow"
	"goa.design/harness/harness"
	"goa.design/harness/internal/config"
	"goa.design/harness/recording"
)

// executeFlow loads flowPath, builds the node registry and executor from
// cfg, and drives the flow to completion (or pause) inside a
// harness.Instance configured per rec. runID defaults to a generated UUID
// when empty.
func executeFlow(ctx context.Context, cfg *config.Config, flowPath, inputJSON, runID string, rec harness.RecordingOptions) (*harness.Result, error) {
	def, err := flow.Load(flowPath)
	if err != nil {
		return nil, usageErrorf("%w", err)
	}

	input, err := parseInput(inputJSON)
	if err != nil {
		return nil, usageErrorf("%w", err)
	}

	if runID == "" {
		runID = fmt.Sprintf("run-%s", uuid.NewString())
	}

	hub := buildHub()
	registry, err := buildRegistry(hub, cfg)
	if err != nil {
		return nil, err
	}
	executor := flow.NewExecutor(registry, hub, flow.ExecutorOptions{})

	in := harness.Create(harness.Input{
		Hub:       hub,
		Recording: rec,
		Run: func(ctx context.Context, _ *harness.RunContext) (any, error) {
			return executor.Run(ctx, def, runID, input)
		},
	})

	result, err := in.Run(ctx)
	if err != nil {
		return result, fmt.Errorf("execute flow: %w", err)
	}

	if snap, ok := result.Value.(*flow.Snapshot); ok && snap.Status == flow.StatusPaused {
		if perr := persistPausedSnapshot(context.WithoutCancel(ctx), cfg, snap); perr != nil {
			return result, fmt.Errorf("persist paused snapshot: %w", perr)
		}
	}

	// Executor.Run swallows a pause triggered by context cancellation into a
	// nil error (a paused Snapshot is not itself a failure), so SIGINT's
	// exit code 130 has to be recovered here from ctx rather than err.
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if snap, ok := result.Value.(*flow.Snapshot); ok && snap.Status == flow.StatusFailed {
		return result, fmt.Errorf("flow %s failed", def.Name)
	}
	return result, nil
}

// persistPausedSnapshot saves snap via a Mongo-backed persistence.SnapshotStore
// when cfg.Persistence is configured, so a paused run survives a process
// restart; it is a no-op when no persistence backend is configured.
func persistPausedSnapshot(ctx context.Context, cfg *config.Config, snap *flow.Snapshot) error {
	store, err := buildSnapshotStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	return store.Save(ctx, snap)
}

// executeReplay drives a recorded run back through a harness.Instance in
// ModeReplay; providers are never invoked and no flow file is read, per
// §4.6's replay contract.
func executeReplay(ctx context.Context, store recording.Store, recordingID string, pacing harness.Pacing) (*harness.Result, error) {
	hub := buildHub()
	in := harness.Create(harness.Input{
		Hub: hub,
		Recording: harness.RecordingOptions{
			Mode:        harness.ModeReplay,
			Store:       store,
			RecordingID: recordingID,
			Pacing:      pacing,
		},
	})
	result, err := in.Run(ctx)
	if err != nil {
		return result, fmt.Errorf("replay recording %s: %w", recordingID, err)
	}
	return result, nil
}

func parseInput(inputJSON string) (map[string]any, error) {
	if inputJSON == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(inputJSON), &m); err != nil {
		return nil, fmt.Errorf("parse --input: %w", err)
	}
	return m, nil
}

func printResult(result *harness.Result) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}
