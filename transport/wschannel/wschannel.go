// Package wschannel adapts a bus.Hub to a websocket: every signal the hub
// emits is forwarded to every connected client as a Frame, and every Frame a
// client sends is applied back to the hub as a control instruction. Grounded
// on the teacher's pack-sibling gateway/websocket package (Handler/Client
// hub registration, ReadPump/WritePump goroutine split), generalized from a
// gin-bound, action-dispatching client into a bus.Hub-bound one speaking
// transport.Frame.
package wschannel

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"goa.design/harness/bus"
	"goa.design/harness/telemetry"
)

// Handler upgrades incoming HTTP requests to websocket connections and
// bridges each one to the bus.Hub it is bound to. The zero value is not
// usable; construct with New.
type Handler struct {
	upgrader websocket.Upgrader
	log      telemetry.Logger

	mu    sync.Mutex
	hub   *bus.Hub
	conns map[string]*conn
}

// Option configures a Handler at construction time.
type Option func(*Handler)

// WithLogger attaches a telemetry.Logger for connection lifecycle and
// framing errors. Defaults to a no-op logger.
func WithLogger(l telemetry.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithCheckOrigin overrides the upgrader's origin check. Defaults to
// accepting every origin, matching the teacher's development posture; callers
// serving untrusted clients should supply a real check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = fn }
}

// New constructs a Handler with no hub bound yet. Bind it to a run via
// Instance.Attach before serving requests.
func New(opts ...Option) *Handler {
	h := &Handler{
		log:   telemetry.NewNoopLogger(),
		conns: make(map[string]*conn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Bind is a harness.Attachment: it wires h to hub for the run's duration and
// returns a cleanup that closes every connection still open when the run
// ends.
func (h *Handler) Bind(hub *bus.Hub) func() {
	h.mu.Lock()
	h.hub = hub
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		conns := h.conns
		h.conns = make(map[string]*conn)
		h.hub = nil
		h.mu.Unlock()
		for _, c := range conns {
			c.close()
		}
	}
}

// ServeHTTP upgrades the request to a websocket and bridges it to the bound
// hub until the client disconnects or the hub's cleanup closes it. It
// answers 503 if no run has bound a hub yet.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	hub := h.hub
	h.mu.Unlock()
	if hub == nil {
		http.Error(w, "wschannel: no run attached", http.StatusServiceUnavailable)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "wschannel: upgrade failed", "error", err)
		return
	}

	c := newConn(fmt.Sprintf("ws-%d", connSeq.next()), wsConn, hub, h.log)
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump(r.Context())
}

func (h *Handler) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns != nil {
		h.conns[c.id] = c
	}
}

func (h *Handler) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.id)
}
