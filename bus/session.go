package bus

import (
	"context"
	"errors"
	"sync"

	"goa.design/harness/scope"
	"goa.design/harness/signal"
)

// Status is the lifecycle state of the session a Hub drives. Transitions
// are the ones named in §4.4: idle -> running -> (paused | complete |
// aborted | failed); paused -> running (resume); paused -> aborted
// (terminal abort).
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusComplete Status = "complete"
	StatusAborted  Status = "aborted"
	StatusFailed   Status = "failed"
)

var (
	// ErrSessionNotFound is returned by Resume when sessionID names no
	// paused session.
	ErrSessionNotFound = errors.New("bus: session not found")
	// ErrSessionAlreadyRunning is returned by Resume when the named session
	// is not currently paused.
	ErrSessionAlreadyRunning = errors.New("bus: session already running")
	// ErrResumeMessageRequired is returned by Resume when message is empty.
	ErrResumeMessageRequired = errors.New("bus: resume requires a non-empty message")
)

// PausedSession is the durable record a resumable abort persists, and the
// state a matching Resume call restores.
type PausedSession struct {
	SessionID         string
	FlowName          string
	CurrentNodeID     string
	CurrentNodeIndex  int
	Outputs           map[string]any
	PendingMessages   []string
	Reason            string
}

// AbortOptions configures Abort. The zero value aborts terminally.
type AbortOptions struct {
	// Resumable, when true, pauses the run instead of terminating it.
	Resumable bool
	Reason    string
}

type sessionState struct {
	mu           sync.Mutex
	status       Status
	sessionID    string
	flowName     string
	cancel       context.CancelFunc
	paused       map[string]*PausedSession
	shuttingDown bool
}

// StartSession transitions the bus from idle to running for sessionID and
// returns a context carrying a fresh run-level cancellation: the context
// Abort cancels when pausing or aborting. Starting a session that is not
// idle is a programmer error and panics, mirroring the teacher's posture
// that workflow-loop misuse is a bug, not a runtime condition to recover
// from.
func (h *Hub) StartSession(ctx context.Context, sessionID, flowName string) context.Context {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()
	if h.session.status != StatusIdle && h.session.status != "" {
		panic("bus: StartSession called while a session is already active")
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.session.status = StatusRunning
	h.session.sessionID = sessionID
	h.session.flowName = flowName
	h.session.cancel = cancel
	return scope.Into(runCtx, scope.New(sessionID))
}

// Status returns the bus's current session status.
func (h *Hub) Status() Status {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()
	return h.session.status
}

// Abort implements the transitions of §4.4. From running, a resumable abort
// pauses the session: it cancels the run-level context, persists a
// placeholder PausedSession (currentNodeIndex 0, empty outputs, to be
// corrected by the executor's UpdatePausedState call before it yields), and
// emits flow:paused. Any other abort (non-resumable, or an abort of an
// already-paused session) is terminal: it clears the paused record, emits
// session:abort, and cancels. Aborting outside an active session is a
// documented no-op.
func (h *Hub) Abort(ctx context.Context, opts AbortOptions) {
	h.session.mu.Lock()
	status := h.session.status
	sessionID := h.session.sessionID
	flowName := h.session.flowName
	cancel := h.session.cancel
	if status != StatusRunning && status != StatusPaused {
		h.session.mu.Unlock()
		return
	}

	if status == StatusRunning && opts.Resumable {
		h.session.status = StatusPaused
		h.session.paused[sessionID] = &PausedSession{
			SessionID:        sessionID,
			FlowName:         flowName,
			CurrentNodeIndex: 0,
			Outputs:          map[string]any{},
			Reason:           opts.Reason,
		}
		h.session.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		h.Emit(ctx, signal.New("flow:paused", map[string]any{"sessionId": sessionID, "reason": opts.Reason}))
		return
	}

	h.session.status = StatusAborted
	delete(h.session.paused, sessionID)
	h.session.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.Emit(ctx, signal.New("session:abort", map[string]any{"reason": opts.Reason}))
	h.session.mu.Lock()
	h.session.shuttingDown = true
	h.session.mu.Unlock()
}

// UpdatePausedState corrects the placeholder PausedSession Abort persisted,
// with the executor's actual progress at the moment it observed the
// cancellation. It must be called before the executor's goroutine yields.
func (h *Hub) UpdatePausedState(sessionID string, currentNodeIndex int, outputs map[string]any, currentNodeID, flowName string) {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()
	ps, ok := h.session.paused[sessionID]
	if !ok {
		return
	}
	ps.CurrentNodeIndex = currentNodeIndex
	ps.Outputs = outputs
	ps.CurrentNodeID = currentNodeID
	ps.FlowName = flowName
}

// Resume implements the `paused -> running` transition of §4.4: it requires
// a non-empty message, rejects an unknown sessionID with
// ErrSessionNotFound, and rejects a session that is not currently paused
// with ErrSessionAlreadyRunning. On success it creates a fresh run-level
// cancellation, enqueues message as a session:message, emits flow:resumed
// and returns the context the executor should resume under; the executor
// restarts from the PausedSession's CurrentNodeIndex with its Outputs
// already populated.
func (h *Hub) Resume(ctx context.Context, sessionID, message string) (context.Context, *PausedSession, error) {
	if message == "" {
		return nil, nil, ErrResumeMessageRequired
	}
	h.session.mu.Lock()
	ps, ok := h.session.paused[sessionID]
	if !ok {
		running := sessionID == h.session.sessionID && h.session.status == StatusRunning
		h.session.mu.Unlock()
		if running {
			return nil, nil, ErrSessionAlreadyRunning
		}
		return nil, nil, ErrSessionNotFound
	}
	if h.session.status != StatusPaused {
		h.session.mu.Unlock()
		return nil, nil, ErrSessionAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.session.status = StatusRunning
	h.session.sessionID = sessionID
	h.session.cancel = cancel
	ps.PendingMessages = append(ps.PendingMessages, message)
	h.session.mu.Unlock()

	scoped := scope.Into(runCtx, scope.New(sessionID))
	h.Emit(scoped, signal.New("session:message", map[string]any{"sessionId": sessionID, "message": message}))
	h.Emit(scoped, signal.New("flow:resumed", map[string]any{"sessionId": sessionID, "injectedMessages": 1}))
	return scoped, ps, nil
}

// Complete transitions running -> complete, or running -> failed when err
// is non-nil.
func (h *Hub) Complete(err error) {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()
	if h.session.status != StatusRunning {
		return
	}
	if err != nil {
		h.session.status = StatusFailed
		return
	}
	h.session.status = StatusComplete
}

// Reply emits a well-known session signal answering a pending prompt.
func (h *Hub) Reply(ctx context.Context, promptID, response string) {
	h.Emit(ctx, signal.New("session:reply", map[string]any{"promptId": promptID, "response": response}))
}

// Send emits a session:message signal on behalf of the current user/caller.
func (h *Hub) Send(ctx context.Context, msg string) {
	h.Emit(ctx, signal.New("session:message", map[string]any{"message": msg}))
}

// SendTo emits a session:message addressed to a specific agent's inbox.
func (h *Hub) SendTo(ctx context.Context, agent, msg string) {
	h.Emit(ctx, signal.New("session:message", map[string]any{"agent": agent, "message": msg}).WithSource(signal.Source{Agent: agent}))
}

// SendToRun emits a session:message addressed to a specific run, pushed
// into any matching agent inbox the reactive layer maintains for runID.
func (h *Hub) SendToRun(ctx context.Context, runID, msg string) {
	h.Emit(ctx, signal.New("session:message", map[string]any{"runId": runID, "message": msg}).WithSource(signal.Source{Parent: runID}))
}
