package harness

import (
	"context"
	"fmt"
	"sort"
	"time"

	"goa.design/harness/bus"
	"goa.design/harness/recording"
	"goa.design/harness/signal"
)

// Instance is one composition-root binding of a bus, state, recording mode
// and attachment set around a RunFunc. Construct with Create.
type Instance struct {
	hub   *bus.Hub
	state map[string]any
	run   RunFunc
	rec   RecordingOptions

	attachments []Attachment
	cleanups    []func()

	signals []signal.Signal
	sig     bus.Subscription
}

// Create builds an Instance bound to a fresh bus.Hub (or input.Hub, when
// provided) and input.InitialState. The returned Instance is not yet
// running: call Attach/On to register attachments and handlers, then Run.
func Create(input Input) *Instance {
	h := input.Hub
	if h == nil {
		h = bus.New()
	}
	state := input.InitialState
	if state == nil {
		state = map[string]any{}
	}
	rec := input.Recording
	if rec.Mode == "" {
		rec.Mode = ModeLive
	}
	in := &Instance{
		hub:   h,
		state: state,
		run:   input.Run,
		rec:   rec,
	}
	in.sig = h.SubscribePatterns(func(_ context.Context, s signal.Signal) {
		in.signals = append(in.signals, s)
	}, "**")
	return in
}

// Hub returns the bus.Hub this Instance is bound to, so callers can wire a
// reactive.Runtime or flow.Executor onto the same bus.
func (in *Instance) Hub() *bus.Hub { return in.hub }

// State returns the Instance's current state document.
func (in *Instance) State() map[string]any { return in.state }

// Attach registers attachment and returns in for chaining, per §4.7.
// Attachments are invoked in registration order; Run calls each one's
// cleanup (in reverse order) once the run function returns.
func (in *Instance) Attach(a Attachment) *Instance {
	in.attachments = append(in.attachments, a)
	return in
}

// On is a convenience subscription: handler fires for every signal whose
// name matches pattern. Returns in for chaining.
func (in *Instance) On(pattern string, handler bus.Handler) *Instance {
	in.hub.SubscribePatterns(handler, pattern)
	return in
}

// Run executes the Instance according to its recording mode and returns the
// §4.6 result shape. ModeLive and ModeRecord invoke the configured RunFunc;
// ModeReplay ignores RunFunc entirely and drives playback of the recorded
// signal log instead.
func (in *Instance) Run(ctx context.Context) (*Result, error) {
	for _, a := range in.attachments {
		cleanup := a(in.hub)
		if cleanup != nil {
			in.cleanups = append(in.cleanups, cleanup)
		}
	}
	defer in.runCleanups()

	switch in.rec.Mode {
	case ModeReplay:
		return in.runReplay(ctx)
	case ModeRecord:
		return in.runRecord(ctx)
	default:
		return in.runLive(ctx)
	}
}

func (in *Instance) runCleanups() {
	for i := len(in.cleanups) - 1; i >= 0; i-- {
		in.cleanups[i]()
	}
}

func (in *Instance) runLive(ctx context.Context) (*Result, error) {
	start := time.Now()
	rc := newRunContext(in.hub, in.state)
	value, err := in.callRun(ctx, rc)
	return in.finish(value, err, start, rc, ""), err
}

func (in *Instance) runRecord(ctx context.Context) (*Result, error) {
	if in.rec.Store == nil {
		return nil, fmt.Errorf("harness: record mode requires a Store")
	}
	recID, err := in.rec.Store.Create(ctx, recording.CreateOptions{
		HarnessType: in.rec.HarnessType,
		Tags:        in.rec.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("harness: create recording: %w", err)
	}
	appendSub := in.hub.SubscribePatterns(func(c context.Context, s signal.Signal) {
		_ = in.rec.Store.Append(c, recID, s)
	}, "**")
	defer appendSub.Unsubscribe()

	start := time.Now()
	rc := newRunContext(in.hub, in.state)
	value, err := in.callRun(ctx, rc)
	_ = in.rec.Store.Finalize(ctx, recID, sinceMS(start))
	return in.finish(value, err, start, rc, recID), err
}

func (in *Instance) callRun(ctx context.Context, rc *RunContext) (value any, err error) {
	if in.run == nil {
		return nil, fmt.Errorf("harness: no Run function configured")
	}
	in.hub.Emit(ctx, signal.New("harness:start", map[string]any{}))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("harness: run panicked: %v", r)
		}
		status := "complete"
		if err != nil {
			status = "failed"
		}
		in.hub.Emit(ctx, signal.New("harness:end", map[string]any{"status": status}))
	}()
	value, err = in.run(ctx, rc)
	return value, err
}

// runReplay loads in.rec.RecordingID from the Store and steps a Player
// through it, re-emitting every signal on the bus (so attachments still
// observe the run) at a cadence governed by in.rec.Pacing, and suppressing
// any provider invocation entirely per §4.6's "replay suppresses providers"
// rule: nothing in this path ever calls in.run.
func (in *Instance) runReplay(ctx context.Context) (*Result, error) {
	if in.rec.Store == nil {
		return nil, fmt.Errorf("harness: replay mode requires a Store")
	}
	if in.rec.RecordingID == "" {
		return nil, fmt.Errorf("harness: replay mode requires a RecordingID")
	}
	rec, err := in.rec.Store.Load(ctx, in.rec.RecordingID)
	if err != nil {
		return nil, fmt.Errorf("harness: load recording: %w", err)
	}

	start := time.Now()
	player := recording.NewPlayer(rec)
	var prev time.Time
	for {
		if err := ctx.Err(); err != nil {
			return in.finish(nil, err, start, nil, in.rec.RecordingID), err
		}
		s, ok := player.Step()
		if !ok {
			break
		}
		if in.rec.Pacing == PacingRecorded && !prev.IsZero() {
			if d := s.Timestamp.Sub(prev); d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
					return in.finish(nil, ctx.Err(), start, nil, in.rec.RecordingID), ctx.Err()
				}
			}
		}
		prev = s.Timestamp
		in.hub.Emit(ctx, s)
	}
	snap := player.Snapshot()
	return &Result{
		Value:       snap.Text,
		State:       in.state,
		Signals:     in.signals,
		Metrics:     Metrics{DurationMS: sinceMS(start), Signals: len(in.signals)},
		RecordingID: in.rec.RecordingID,
	}, nil
}

func (in *Instance) finish(value any, err error, start time.Time, rc *RunContext, recID string) *Result {
	metrics := Metrics{DurationMS: sinceMS(start), Signals: len(in.signals)}
	if rc != nil {
		metrics.Phases = rc.phases
		metrics.Tasks = rc.tasks
		metrics.Retries = rc.retries
	}
	sort.SliceStable(in.signals, func(i, j int) bool { return in.signals[i].Timestamp.Before(in.signals[j].Timestamp) })
	return &Result{
		Value:           value,
		State:           in.state,
		Signals:         in.signals,
		Metrics:         metrics,
		TerminatedEarly: err != nil,
		RecordingID:     recID,
	}
}
