// Package grpcchannel adapts a bus.Hub to a bidirectional gRPC stream, the
// gRPC counterpart of transport/wschannel. Grounded on the teacher's
// registry.Registry.Run (grpc.NewServer, RegisterXServer wiring), generalized
// here to a hand-registered grpc.ServiceDesc carrying transport.Frame values
// as google.golang.org/protobuf's structpb.Struct, since no codegen step (the
// teacher normally compiles its service from a goa design package) runs in
// this build; see the design ledger for why that substitution was necessary.
package grpcchannel

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"goa.design/harness/bus"
	"goa.design/harness/signal"
	"goa.design/harness/telemetry"
	"goa.design/harness/transport"
)

// ServiceName is the gRPC service name Register exposes.
const ServiceName = "goa.design.harness.transport.Channel"

// Handler implements a bidirectional Stream method: it forwards bus signals
// out as structpb.Struct-encoded Frames, and decodes inbound ones back into
// bus calls. The zero value is not usable; construct with New.
type Handler struct {
	log telemetry.Logger

	mu     sync.Mutex
	hub    *bus.Hub
	cancel []func()
}

// Option configures a Handler at construction time.
type Option func(*Handler)

// WithLogger attaches a telemetry.Logger for stream lifecycle errors.
// Defaults to a no-op logger.
func WithLogger(l telemetry.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// New constructs a Handler with no hub bound yet.
func New(opts ...Option) *Handler {
	h := &Handler{log: telemetry.NewNoopLogger()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Bind is a harness.Attachment: it wires h to hub for the run's duration and
// returns a cleanup that unsubscribes every stream still open when the run
// ends.
func (h *Handler) Bind(hub *bus.Hub) func() {
	h.mu.Lock()
	h.hub = hub
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		cancels := h.cancel
		h.cancel = nil
		h.hub = nil
		h.mu.Unlock()
		for _, c := range cancels {
			c()
		}
	}
}

// Register attaches h's Stream method to s under ServiceName.
func Register(s *grpc.Server, h *Handler) {
	s.RegisterService(&serviceDesc, h)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       streamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*Handler).handleStream(stream)
}

func (h *Handler) handleStream(stream grpc.ServerStream) error {
	h.mu.Lock()
	hub := h.hub
	h.mu.Unlock()
	if hub == nil {
		return grpc.ErrServerStopped
	}

	ctx, cancel := context.WithCancel(stream.Context())
	h.mu.Lock()
	h.cancel = append(h.cancel, cancel)
	h.mu.Unlock()
	defer cancel()

	sub := hub.SubscribePatterns(func(_ context.Context, s signal.Signal) {
		out, err := encodeFrame(transport.EncodeSignal(s))
		if err != nil {
			h.log.Warn(ctx, "grpcchannel: encode signal failed", "error", err)
			return
		}
		if err := stream.SendMsg(out); err != nil {
			h.log.Warn(ctx, "grpcchannel: send failed", "error", err)
		}
	}, "**")
	defer sub.Unsubscribe()
	h.mu.Lock()
	h.cancel = append(h.cancel, sub.Unsubscribe)
	h.mu.Unlock()

	for {
		in := &structpb.Struct{}
		if err := stream.RecvMsg(in); err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}
		f, err := decodeFrame(in)
		if err != nil {
			h.log.Warn(ctx, "grpcchannel: malformed frame", "error", err)
			continue
		}
		transport.HandleInbound(ctx, hub, f)
	}
}

// encodeFrame round-trips f through JSON into a structpb.Struct, since
// transport.Frame carries arbitrary signal payloads that do not map onto a
// fixed set of proto fields.
func encodeFrame(f transport.Frame) (*structpb.Struct, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewStruct(generic)
}

func decodeFrame(s *structpb.Struct) (transport.Frame, error) {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return transport.Frame{}, err
	}
	var f transport.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return transport.Frame{}, err
	}
	return f, nil
}
