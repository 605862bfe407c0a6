package recording

import (
	"strings"

	"goa.design/harness/signal"
)

type (
	// Position describes where a Player currently sits within a recording.
	Position struct {
		Index   int
		Total   int
		AtStart bool
		AtEnd   bool
		Current *signal.Signal
	}

	// Found pairs a matched signal with its index, as returned by FindAll.
	Found struct {
		Index  int
		Signal signal.Signal
	}

	// Snapshot is the derived view Player.Snapshot computes by folding
	// signals 0..index into a reducer, grounded on the teacher's
	// newRunSnapshot fold-by-replaying-events pattern
	// (runtime/agent/runtime/run_snapshot.go): walk the signals in order,
	// update running state incrementally, never look ahead.
	Snapshot struct {
		Running bool
		Text    string
	}

	// Player provides VCR-style navigation over a Recording's signal log:
	// step/back/goto/checkpoint-seek/pattern-seek, plus a folded Snapshot
	// at any position.
	Player struct {
		rec Recording
		idx int // next signal to play is at rec.Signals[idx]; idx-1 is "current"
	}
)

// NewPlayer constructs a Player positioned at the start of rec (before its
// first signal).
func NewPlayer(rec Recording) *Player {
	return &Player{rec: rec, idx: 0}
}

// Position reports the player's current location.
func (p *Player) Position() Position {
	pos := Position{
		Index:   p.idx,
		Total:   len(p.rec.Signals),
		AtStart: p.idx == 0,
		AtEnd:   p.idx >= len(p.rec.Signals),
	}
	if p.idx > 0 && p.idx <= len(p.rec.Signals) {
		s := p.rec.Signals[p.idx-1]
		pos.Current = &s
	}
	return pos
}

// Step advances one signal and returns it, or false at end of recording.
func (p *Player) Step() (signal.Signal, bool) {
	if p.idx >= len(p.rec.Signals) {
		return signal.Signal{}, false
	}
	s := p.rec.Signals[p.idx]
	p.idx++
	return s, true
}

// Back retreats one signal and returns the signal now current, or false at
// the start of the recording.
func (p *Player) Back() (signal.Signal, bool) {
	if p.idx <= 0 {
		return signal.Signal{}, false
	}
	p.idx--
	if p.idx == 0 {
		return signal.Signal{}, false
	}
	return p.rec.Signals[p.idx-1], true
}

// Goto jumps to index, clamped to [0, total].
func (p *Player) Goto(index int) {
	if index < 0 {
		index = 0
	}
	if index > len(p.rec.Signals) {
		index = len(p.rec.Signals)
	}
	p.idx = index
}

// GotoCheckpoint jumps to the position named by a checkpoint. Returns false
// if no checkpoint with that name exists; the player does not move in that
// case.
func (p *Player) GotoCheckpoint(name string) bool {
	for _, c := range p.rec.Checkpoints {
		if c.Name == name {
			p.Goto(c.Index)
			return true
		}
	}
	return false
}

// Rewind jumps to the start of the recording.
func (p *Player) Rewind() { p.Goto(0) }

// FastForward jumps to the end of the recording.
func (p *Player) FastForward() { p.Goto(len(p.rec.Signals)) }

// GotoNext advances to the next signal (strictly after the current
// position) whose name matches pattern. Returns false, leaving the
// position unchanged, if none is found.
func (p *Player) GotoNext(pattern string) (signal.Signal, bool) {
	compiled := signal.Compile(pattern)
	for i := p.idx; i < len(p.rec.Signals); i++ {
		if compiled.Match(p.rec.Signals[i].Name) {
			p.idx = i + 1
			return p.rec.Signals[i], true
		}
	}
	return signal.Signal{}, false
}

// GotoPrevious retreats to the previous signal (strictly before the current
// position) whose name matches pattern. Returns false, leaving the
// position unchanged, if none is found.
func (p *Player) GotoPrevious(pattern string) (signal.Signal, bool) {
	compiled := signal.Compile(pattern)
	for i := p.idx - 2; i >= 0; i-- {
		if compiled.Match(p.rec.Signals[i].Name) {
			p.idx = i + 1
			return p.rec.Signals[i], true
		}
	}
	return signal.Signal{}, false
}

// FindAll returns every (index, signal) pair whose name matches pattern,
// regardless of the player's current position.
func (p *Player) FindAll(pattern string) []Found {
	compiled := signal.Compile(pattern)
	var out []Found
	for i, s := range p.rec.Signals {
		if compiled.Match(s.Name) {
			out = append(out, Found{Index: i, Signal: s})
		}
	}
	return out
}

// Peek returns the signal at index without moving the player.
func (p *Player) Peek(index int) (signal.Signal, bool) {
	if index < 0 || index >= len(p.rec.Signals) {
		return signal.Signal{}, false
	}
	return p.rec.Signals[index], true
}

// PeekRange returns signals in [from, to) without moving the player.
func (p *Player) PeekRange(from, to int) []signal.Signal {
	return FilterSignals(p.rec.Signals, LoadSignalsOptions{FromIndex: from, ToIndex: to})
}

// Snapshot folds signals 0..index (exclusive of index, i.e. everything
// played so far) into a Snapshot: it accumulates harness.text.content by
// concatenating "*:delta"-suffixed content payloads and tracks whether the
// run is still "running" (true until harness:end, or a "harness:"-prefixed
// signal ending in ":complete" or ":error", is observed; node:complete and
// other non-harness signals leave it running).
func (p *Player) Snapshot() Snapshot {
	snap := Snapshot{Running: true}
	for _, s := range p.rec.Signals[:p.idx] {
		foldInto(&snap, s)
	}
	return snap
}

// SnapshotAt is equivalent to Goto(index) followed by Snapshot, without
// moving the player.
func (p *Player) SnapshotAt(index int) Snapshot {
	if index < 0 {
		index = 0
	}
	if index > len(p.rec.Signals) {
		index = len(p.rec.Signals)
	}
	snap := Snapshot{Running: true}
	for _, s := range p.rec.Signals[:index] {
		foldInto(&snap, s)
	}
	return snap
}

func foldInto(snap *Snapshot, s signal.Signal) {
	switch {
	case strings.HasSuffix(s.Name, ":delta"):
		if text, ok := s.Payload.(string); ok {
			snap.Text += text
		} else if m, ok := s.Payload.(map[string]any); ok {
			if c, ok := m["content"].(string); ok {
				snap.Text += c
			}
		}
	case s.Name == "harness:end" || strings.HasPrefix(s.Name, "harness:") && (strings.HasSuffix(s.Name, ":complete") || strings.HasSuffix(s.Name, ":error")):
		snap.Running = false
	}
}
