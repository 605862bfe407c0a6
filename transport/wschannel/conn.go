package wschannel

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"goa.design/harness/bus"
	"goa.design/harness/signal"
	"goa.design/harness/telemetry"
	"goa.design/harness/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

var connSeq atomicCounter

type atomicCounter struct{ n atomic.Uint64 }

func (c *atomicCounter) next() uint64 { return c.n.Add(1) }

// conn bridges one websocket connection to hub: a subscription forwards
// hub signals out over conn's send channel, and readPump decodes inbound
// Frames back into hub calls.
type conn struct {
	id   string
	ws   *websocket.Conn
	hub  *bus.Hub
	log  telemetry.Logger
	send chan []byte

	mu     sync.Mutex
	closed bool
	sub    bus.Subscription
}

func newConn(id string, ws *websocket.Conn, hub *bus.Hub, log telemetry.Logger) *conn {
	c := &conn{id: id, ws: ws, hub: hub, log: log, send: make(chan []byte, 256)}
	c.sub = hub.SubscribePatterns(func(_ context.Context, s signal.Signal) {
		data, err := json.Marshal(transport.EncodeSignal(s))
		if err != nil {
			c.log.Warn(context.Background(), "wschannel: encode signal failed", "conn", c.id, "error", err)
			return
		}
		c.enqueue(data)
	}, "**")
	return c
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	close(c.send)
	_ = c.ws.Close()
}

func (c *conn) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn(context.Background(), "wschannel: send buffer full, dropping frame", "conn", c.id)
	}
}

// readPump decodes inbound Frames from the websocket and applies them to
// hub until the connection errors or closes.
func (c *conn) readPump(ctx context.Context) {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.log.Warn(ctx, "wschannel: read error", "conn", c.id, "error", err)
			}
			return
		}
		var f transport.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn(ctx, "wschannel: malformed frame", "conn", c.id, "error", err)
			continue
		}
		transport.HandleInbound(ctx, c.hub, f)
	}
}

// writePump drains c.send to the websocket connection and keeps it alive
// with periodic pings, mirroring the teacher's batching write pump.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
