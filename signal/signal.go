// Package signal defines the immutable event record exchanged across the bus,
// the scheduler and the recording store. A Signal name is a colon-segmented
// hierarchical identifier (e.g. "node:complete", "harness:start"); the
// pattern matcher in this package compiles glob-style subscription filters
// against that naming scheme.
package signal

import (
	"time"

	"github.com/google/uuid"
)

type (
	// Signal is an immutable record emitted on the bus. Once constructed via
	// New, a Signal's fields must not be mutated; emitters that need to vary
	// a payload must construct a new Signal.
	Signal struct {
		// ID is an opaque, time-ordered unique identifier within a bus instance.
		ID string
		// Name is a non-empty colon-segmented identifier, e.g. "node:complete".
		Name string
		// Payload carries arbitrary, serializable-when-recorded data.
		Payload any
		// Timestamp is the monotonic instant the signal was stamped at emission.
		Timestamp time.Time
		// Source identifies the producer and causal parent, when known.
		Source *Source
		// Display carries UI rendering hints, inferred from Name when absent.
		Display *Display
	}

	// Source identifies what produced a signal and, optionally, which signal
	// caused it (its causal parent, by ID).
	Source struct {
		Agent  string
		Node   string
		Parent string
	}

	// Display carries hints a transport/channel can use to render a signal
	// without understanding its payload shape.
	Display struct {
		Type     DisplayType
		Status   DisplayStatus
		Title    string
		Subtitle string
		// Progress is a percentage in [0, 100]. Zero value means "not set"
		// unless Type is DisplayProgress, in which case 0 is a valid value.
		Progress int
	}

	// DisplayType classifies the rendering surface a signal targets.
	DisplayType string

	// DisplayStatus classifies the lifecycle status a status-type display hint carries.
	DisplayStatus string
)

const (
	DisplayStatusKind  DisplayType = "status"
	DisplayNotification DisplayType = "notification"
	DisplayStream       DisplayType = "stream"
	DisplayProgress     DisplayType = "progress"
	DisplayLog          DisplayType = "log"

	StatusPending DisplayStatus = "pending"
	StatusActive  DisplayStatus = "active"
	StatusSuccess DisplayStatus = "success"
	StatusError   DisplayStatus = "error"
	StatusWarning DisplayStatus = "warning"
)

// New constructs a Signal, stamping an ID and timestamp if the caller leaves
// them zero-valued. This is the path the bus uses for emissions that did not
// already carry an ID (see bus.Hub.Emit).
func New(name string, payload any) Signal {
	return Signal{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// WithSource returns a copy of the signal with Source set.
func (s Signal) WithSource(src Source) Signal {
	s.Source = &src
	return s
}

// WithDisplay returns a copy of the signal with an explicit Display hint,
// overriding suffix-based inference.
func (s Signal) WithDisplay(d Display) Signal {
	s.Display = &d
	return s
}

// EffectiveDisplay returns the signal's explicit Display hint, or the hint
// inferred from the name suffix per the well-known naming convention
// (":start" -> pending, ":complete" -> success, ":error"/":failed" -> error,
// ":skipped" -> warning, ":delta" -> stream, ":progress" -> progress).
func (s Signal) EffectiveDisplay() Display {
	if s.Display != nil {
		return *s.Display
	}
	return InferDisplay(s.Name)
}

// InferDisplay derives a Display hint from a signal name's suffix. It never
// fails: an unrecognized suffix yields a zero-value Display, which transports
// treat as "no hint".
func InferDisplay(name string) Display {
	switch {
	case hasSuffix(name, ":start"):
		return Display{Type: DisplayStatusKind, Status: StatusPending}
	case hasSuffix(name, ":complete"), hasSuffix(name, ":success"):
		return Display{Type: DisplayStatusKind, Status: StatusSuccess}
	case hasSuffix(name, ":error"), hasSuffix(name, ":failed"), hasSuffix(name, ":failure"):
		return Display{Type: DisplayStatusKind, Status: StatusError}
	case hasSuffix(name, ":skipped"):
		return Display{Type: DisplayNotification, Status: StatusWarning}
	case hasSuffix(name, ":delta"):
		return Display{Type: DisplayStream}
	case hasSuffix(name, ":progress"):
		return Display{Type: DisplayProgress}
	default:
		return Display{}
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
