// Package recording defines the append-only signal log contract (§4.2):
// pluggable Store backends capture every signal a run emits, and a Player
// replays or folds a stored recording back into view. The Store interface
// is grounded on the teacher's runlog.Store append/list contract, widened
// from "append events, list by run" to the richer create/append/checkpoint/
// finalize/load lifecycle spec.md's recording substrate requires.
package recording

import (
	"context"
	"errors"
	"time"

	"goa.design/harness/signal"
)

var (
	// ErrNotFound is returned by operations addressing an unknown recording id.
	ErrNotFound = errors.New("recording: not found")
	// ErrFinalized is returned by Append/AppendBatch/Checkpoint/Finalize
	// against a recording that has already been finalized.
	ErrFinalized = errors.New("recording: already finalized")
)

type (
	// CreateOptions configures a new recording.
	CreateOptions struct {
		HarnessType string
		Tags        []string
		Metadata    map[string]any
	}

	// Checkpoint marks a named position within a recording's signal log.
	Checkpoint struct {
		Name  string
		Index int
	}

	// Recording is the durable record of one run: its signals and any
	// checkpoints named during execution.
	Recording struct {
		ID          string
		HarnessType string
		Tags        []string
		Metadata    map[string]any
		CreatedAt   time.Time
		FinalizedAt *time.Time
		DurationMS  int64
		Signals     []signal.Signal
		Checkpoints []Checkpoint
	}

	// LoadSignalsOptions restricts loadSignals to a sub-range and/or a
	// pattern filter, evaluated with the same matcher the bus itself uses.
	LoadSignalsOptions struct {
		FromIndex int
		ToIndex   int // 0 means "to the end"
		Patterns  []string
	}

	// ListFilter narrows List results.
	ListFilter struct {
		HarnessType string
		Tags        []string
		Limit       int
		Offset      int
	}

	// Store is an append-only signal recorder with checkpoint and
	// finalization support. Implementations must return ErrNotFound for
	// operations against an unknown id, and ErrFinalized for mutations
	// against a finalized recording.
	Store interface {
		// Create starts a new recording and returns its id.
		Create(ctx context.Context, opts CreateOptions) (string, error)
		// Append adds one signal to the recording's log.
		Append(ctx context.Context, id string, s signal.Signal) error
		// AppendBatch adds multiple signals in one call, preserving order.
		AppendBatch(ctx context.Context, id string, signals []signal.Signal) error
		// Checkpoint names the current end of the log.
		Checkpoint(ctx context.Context, id string, name string) error
		// Finalize marks a recording complete; durationMs is optional (0
		// means "not recorded").
		Finalize(ctx context.Context, id string, durationMS int64) error
		// Load returns the full recording, or ErrNotFound.
		Load(ctx context.Context, id string) (Recording, error)
		// LoadSignals returns a (possibly filtered, possibly ranged) view
		// of a recording's signals without loading checkpoints/metadata.
		LoadSignals(ctx context.Context, id string, opts LoadSignalsOptions) ([]signal.Signal, error)
		// List returns recordings matching filter, newest-first by
		// creation timestamp.
		List(ctx context.Context, filter ListFilter) ([]Recording, error)
		// Delete removes a recording. Deleting an unknown id is a no-op.
		Delete(ctx context.Context, id string) error
		// Exists reports whether id names a recording.
		Exists(ctx context.Context, id string) (bool, error)
		// Clear removes every recording the store holds.
		Clear(ctx context.Context) error
	}
)

// FilterSignals applies opts to signals, shared by every Store
// implementation's LoadSignals so filtering semantics stay identical
// across backends.
func FilterSignals(signals []signal.Signal, opts LoadSignalsOptions) []signal.Signal {
	from := opts.FromIndex
	if from < 0 {
		from = 0
	}
	to := opts.ToIndex
	if to <= 0 || to > len(signals) {
		to = len(signals)
	}
	if from > to {
		from = to
	}
	ranged := signals[from:to]

	if len(opts.Patterns) == 0 {
		out := make([]signal.Signal, len(ranged))
		copy(out, ranged)
		return out
	}
	matcher := signal.NewPatternMatcher(opts.Patterns...)
	out := make([]signal.Signal, 0, len(ranged))
	for _, s := range ranged {
		if matcher.Match(s) {
			out = append(out, s)
		}
	}
	return out
}
