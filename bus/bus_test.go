package bus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harness/bus"
	"goa.design/harness/scope"
	"goa.design/harness/signal"
)

func TestEmitDispatchesToMatchingSubscribers(t *testing.T) {
	h := bus.New()
	var got []string
	h.SubscribePatterns(func(_ context.Context, s signal.Signal) {
		got = append(got, s.Name)
	}, "node:*")

	h.Emit(context.Background(), signal.New("node:start", nil))
	h.Emit(context.Background(), signal.New("other:start", nil))

	require.Equal(t, []string{"node:start"}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := bus.New()
	count := 0
	sub := h.SubscribePatterns(func(_ context.Context, _ signal.Signal) { count++ }, "*")
	h.Emit(context.Background(), signal.New("a", nil))
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	h.Emit(context.Background(), signal.New("b", nil))
	require.Equal(t, 1, count)
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	h := bus.New()
	h.SubscribePatterns(func(_ context.Context, _ signal.Signal) { panic("boom") }, "*")
	var reached bool
	h.SubscribePatterns(func(_ context.Context, _ signal.Signal) { reached = true }, "*")

	require.NotPanics(t, func() {
		h.Emit(context.Background(), signal.New("x", nil))
	})
	require.True(t, reached)
}

func TestHistoryBounded(t *testing.T) {
	h := bus.New(bus.WithMaxHistory(2))
	h.Emit(context.Background(), signal.New("a", nil))
	h.Emit(context.Background(), signal.New("b", nil))
	h.Emit(context.Background(), signal.New("c", nil))

	hist := h.History()
	require.Len(t, hist, 2)
	require.Equal(t, "b", hist[0].Signal.Name)
	require.Equal(t, "c", hist[1].Signal.Name)
}

func TestHandlerObservesEmissionTimeScope(t *testing.T) {
	h := bus.New()
	var observed scope.Context
	h.SubscribePatterns(func(ctx context.Context, _ signal.Signal) {
		observed = scope.From(ctx)
	}, "*")

	root := scope.Into(context.Background(), scope.New("sess-1"))
	emitCtx := scope.Push(root, scope.Delta{Task: &scope.Task{ID: "task-a"}})
	h.Emit(emitCtx, signal.New("x", nil))

	require.Equal(t, "sess-1", observed.SessionID)
	require.Equal(t, "task-a", observed.Task.ID)
}

func TestScopedIsolatesSiblingEmissions(t *testing.T) {
	h := bus.New()
	seen := make(map[string]string)
	h.SubscribePatterns(func(ctx context.Context, s signal.Signal) {
		seen[s.Name] = scope.From(ctx).Task.ID
	}, "*")

	root := scope.Into(context.Background(), scope.New("sess-1"))
	done := make(chan struct{}, 2)
	go h.Scoped(root, scope.Delta{Task: &scope.Task{ID: "task-a"}}, func(ctx context.Context) {
		h.Emit(ctx, signal.New("from-a", nil))
		done <- struct{}{}
	})
	go h.Scoped(root, scope.Delta{Task: &scope.Task{ID: "task-b"}}, func(ctx context.Context) {
		h.Emit(ctx, signal.New("from-b", nil))
		done <- struct{}{}
	})
	<-done
	<-done

	require.Equal(t, "task-a", seen["from-a"])
	require.Equal(t, "task-b", seen["from-b"])
}
