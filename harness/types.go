// Package harness is the composition root §4.6 describes: it binds a bus,
// an initial state, a recording mode and a set of attachments around one
// user-supplied run function, and exposes phase/task/retry/parallel/emit
// helpers to that function so ad hoc orchestration code gets the same
// lifecycle signals a flow-file-driven run gets for free. Grounded on the
// teacher's Runtime (runtime/agent/runtime/runtime.go), generalized from a
// Temporal-workflow-and-planner-registry composition root into one that
// wires bus.Hub, recording.Store and reactive.Runtime instead.
package harness

import (
	"context"
	"time"

	"goa.design/harness/bus"
	"goa.design/harness/recording"
	"goa.design/harness/signal"
)

type (
	// RunFunc is user orchestration code run inside an Instance. rc exposes
	// the phase/task/retry/parallel/emit helpers of §4.6.
	RunFunc func(ctx context.Context, rc *RunContext) (any, error)

	// Attachment is the transport protocol of §4.7: a function taking the
	// instance's bus and returning a cleanup. It may subscribe, emit, and
	// keep attach-local state.
	Attachment func(h *bus.Hub) func()

	// Mode selects how an Instance's signal emissions relate to a
	// recording.Store, per §4.6.
	Mode string

	// RecordingOptions configures an Instance's recording mode.
	RecordingOptions struct {
		// Mode defaults to ModeLive.
		Mode Mode
		// Store is required for ModeRecord and ModeReplay.
		Store recording.Store
		// RecordingID is required for ModeReplay; it is ignored for the
		// other modes.
		RecordingID string
		// HarnessType and Tags annotate a ModeRecord recording at creation.
		HarnessType string
		Tags        []string
		// Pacing controls how replay spaces out signal delivery. The zero
		// value behaves like PacingFast and replays as fast as the Player
		// can step.
		Pacing Pacing
	}

	// Pacing selects the cadence a ModeReplay Instance re-emits signals at.
	Pacing string

	// Input configures Create.
	Input struct {
		// InitialState seeds the Instance's state document.
		InitialState map[string]any
		// Run is the user orchestration function Run invokes. Required
		// for ModeLive and ModeRecord; ignored for ModeReplay, which
		// drives playback instead of calling Run.
		Run RunFunc
		// Hub, when non-nil, is used instead of a freshly constructed one.
		// Lets callers share a single bus across an Instance and a
		// reactive.Runtime.
		Hub *bus.Hub
		// Recording configures record/replay/live behavior.
		Recording RecordingOptions
	}

	// Metrics summarizes one Run invocation.
	Metrics struct {
		DurationMS  int64
		Activations int
		Phases      int
		Tasks       int
		Retries     int
		Signals     int
	}

	// Result is what Run returns, matching §4.6's {result, state, signals[],
	// metrics, terminatedEarly, recordingId?} contract.
	Result struct {
		Value           any
		State           map[string]any
		Signals         []signal.Signal
		Metrics         Metrics
		TerminatedEarly bool
		RecordingID     string
	}
)

const (
	ModeLive   Mode = "live"
	ModeRecord Mode = "record"
	ModeReplay Mode = "replay"

	// PacingFast replays as fast as the Player can step (the default).
	PacingFast Pacing = "fast"
	// PacingRecorded honors the recorded signals' original timestamp deltas.
	PacingRecorded Pacing = "recorded"
)

// sinceMS returns the whole milliseconds elapsed since start.
func sinceMS(start time.Time) int64 { return time.Since(start).Milliseconds() }
