// Package transport defines the wire envelope and inbound-control dispatch
// shared by every outward-facing channel (wschannel, grpcchannel): a channel
// forwards bus signals out as Frames and turns inbound Frames back into bus
// calls. Grounded on the teacher's runtime/agent/stream.Subscriber bridge
// (bus events to an outward sink) and, for inbound control, its bus.Hub
// session methods directly — generalized from a single Temporal-stream sink
// into a protocol-agnostic envelope a websocket or gRPC channel can both
// speak.
package transport

import (
	"context"
	"time"

	"goa.design/harness/bus"
	"goa.design/harness/signal"
)

type (
	// FrameType discriminates a Frame's purpose.
	FrameType string

	// SignalWire is signal.Signal flattened for wire transfer.
	SignalWire struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Payload   any             `json:"payload,omitempty"`
		Timestamp time.Time       `json:"timestamp"`
		Source    *signal.Source  `json:"source,omitempty"`
		Display   *signal.Display `json:"display,omitempty"`
	}

	// Frame is the single envelope type every channel marshals and
	// unmarshals. An outbound Frame always carries a Signal; an inbound
	// Frame carries whichever of the remaining fields its Type requires.
	Frame struct {
		Type      FrameType   `json:"type"`
		Signal    *SignalWire `json:"signal,omitempty"`
		SessionID string      `json:"sessionId,omitempty"`
		Agent     string      `json:"agent,omitempty"`
		Message   string      `json:"message,omitempty"`
		PromptID  string      `json:"promptId,omitempty"`
		Response  string      `json:"response,omitempty"`
		Reason    string      `json:"reason,omitempty"`
		Resumable bool        `json:"resumable,omitempty"`
	}
)

const (
	// FrameSignal is an outbound frame carrying a bus signal.
	FrameSignal FrameType = "signal"
	// FrameSend injects a session:message, addressed to Agent when set.
	FrameSend FrameType = "send"
	// FramePause requests a resumable Abort.
	FramePause FrameType = "pause"
	// FrameResume requests Resume for SessionID with Message as the
	// injected reply.
	FrameResume FrameType = "resume"
	// FrameAbort requests a terminal Abort.
	FrameAbort FrameType = "abort"
	// FrameReply answers a pending prompt identified by PromptID.
	FrameReply FrameType = "reply"
)

// EncodeSignal builds the outbound Frame for s.
func EncodeSignal(s signal.Signal) Frame {
	return Frame{
		Type: FrameSignal,
		Signal: &SignalWire{
			ID:        s.ID,
			Name:      s.Name,
			Payload:   s.Payload,
			Timestamp: s.Timestamp,
			Source:    s.Source,
			Display:   s.Display,
		},
	}
}

// HandleInbound applies f to hub. Unknown frame types and frames missing
// their required fields are silently ignored: a channel isolates the bus
// from a misbehaving client rather than failing the run over it, mirroring
// the isolation bus.Hub.Emit already gives outbound dispatch.
func HandleInbound(ctx context.Context, hub *bus.Hub, f Frame) {
	switch f.Type {
	case FrameSend:
		if f.Message == "" {
			return
		}
		if f.Agent != "" {
			hub.SendTo(ctx, f.Agent, f.Message)
			return
		}
		hub.Send(ctx, f.Message)
	case FramePause:
		hub.Abort(ctx, bus.AbortOptions{Resumable: true, Reason: f.Reason})
	case FrameAbort:
		hub.Abort(ctx, bus.AbortOptions{Reason: f.Reason})
	case FrameResume:
		if f.SessionID == "" || f.Message == "" {
			return
		}
		_, _, _ = hub.Resume(ctx, f.SessionID, f.Message)
	case FrameReply:
		if f.PromptID == "" {
			return
		}
		hub.Reply(ctx, f.PromptID, f.Response)
	}
}
