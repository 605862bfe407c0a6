package bus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harness/bus"
	"goa.design/harness/signal"
)

type recordingChannel struct {
	starts, completes int
	handled           []string
	failNext          bool
}

func (c *recordingChannel) Patterns() []string { return []string{"node:*"} }

func (c *recordingChannel) Handle(_ context.Context, _ *bus.Hub, s signal.Signal) error {
	c.handled = append(c.handled, s.Name)
	if c.failNext {
		c.failNext = false
		return errors.New("handler failed")
	}
	return nil
}

func (c *recordingChannel) OnStart(_ context.Context, _ *bus.Hub) error {
	c.starts++
	return nil
}

func (c *recordingChannel) OnComplete(_ context.Context, _ *bus.Hub) error {
	c.completes++
	return nil
}

func TestChannelLifecycleFreshStatePerStart(t *testing.T) {
	var built []*recordingChannel
	h := bus.New()
	err := h.RegisterChannel(context.Background(), bus.ChannelDef{
		Name: "ui",
		New: func() bus.Channel {
			c := &recordingChannel{}
			built = append(built, c)
			return c
		},
	})
	require.NoError(t, err)

	h.Start(context.Background())
	h.Emit(context.Background(), signal.New("node:start", nil))
	h.Stop(context.Background())

	h.Start(context.Background())
	h.Emit(context.Background(), signal.New("node:complete", nil))
	h.Stop(context.Background())

	require.Len(t, built, 2)
	require.Equal(t, []string{"node:start"}, built[0].handled)
	require.Equal(t, 1, built[0].starts)
	require.Equal(t, 1, built[0].completes)
	require.Equal(t, []string{"node:complete"}, built[1].handled)
}

func TestRegisterChannelDuplicateNameFails(t *testing.T) {
	h := bus.New()
	def := bus.ChannelDef{Name: "dup", New: func() bus.Channel { return &recordingChannel{} }}
	require.NoError(t, h.RegisterChannel(context.Background(), def))
	err := h.RegisterChannel(context.Background(), def)
	require.ErrorIs(t, err, bus.ErrChannelExists)
}

func TestRegisterChannelAfterStartActivatesImmediately(t *testing.T) {
	h := bus.New()
	h.Start(context.Background())

	c := &recordingChannel{}
	err := h.RegisterChannel(context.Background(), bus.ChannelDef{Name: "late", New: func() bus.Channel { return c }})
	require.NoError(t, err)
	require.Equal(t, 1, c.starts)
}

func TestChannelHandlerErrorEmitsChannelError(t *testing.T) {
	h := bus.New()
	c := &recordingChannel{failNext: true}
	require.NoError(t, h.RegisterChannel(context.Background(), bus.ChannelDef{
		Name: "flaky",
		New:  func() bus.Channel { return c },
	}))
	h.Start(context.Background())

	var sawError bool
	h.SubscribePatterns(func(_ context.Context, s signal.Signal) {
		if s.Name == "channel:error" {
			sawError = true
		}
	}, "channel:error")

	h.Emit(context.Background(), signal.New("node:start", nil))
	require.True(t, sawError)
}

func TestStopIsIdempotent(t *testing.T) {
	h := bus.New()
	require.NotPanics(t, func() {
		h.Stop(context.Background())
		h.Stop(context.Background())
	})
}
