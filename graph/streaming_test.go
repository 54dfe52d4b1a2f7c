package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_EventsAndFinalStateFromSameRun(t *testing.T) {
	calls := 0
	g := newQuietGraph[counterState]()
	g.AddNode("a", "", func(ctx context.Context, s counterState) (counterState, error) {
		calls++
		return visit("a")(ctx, s)
	})
	g.AddNode("b", "", visit("b"))
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", END)

	app, err := g.Compile()
	require.NoError(t, err)

	exec := app.Stream(context.Background(), counterState{})

	var events []StreamEvent
	for ev := range exec.Events() {
		events = append(events, ev)
	}
	final, err := exec.Wait()
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, final.Count)

	kinds := make([]NodeEvent, len(events))
	for i, ev := range events {
		kinds[i] = ev.Event
	}
	assert.Equal(t, []NodeEvent{
		EventChainStart,
		NodeEventStart, NodeEventComplete,
		NodeEventStart, NodeEventComplete,
		EventChainEnd,
	}, kinds)
	assert.Equal(t, "a", events[1].NodeName)
	assert.Equal(t, 1, events[1].Step)
	assert.Equal(t, "a", events[2].NodeName)
	assert.Equal(t, 1, events[2].Step)
	assert.Equal(t, "b", events[4].NodeName)
	assert.Equal(t, 2, events[4].Step)

	runID := events[0].RunID
	assert.NotEmpty(t, runID)
	for _, ev := range events {
		assert.Equal(t, runID, ev.RunID)
	}

	last, ok := events[4].State.(counterState)
	require.True(t, ok)
	assert.Equal(t, final, last)
}

func TestStream_WaitWithoutDraining(t *testing.T) {
	g := newQuietGraph[counterState]()
	g.AddNode("work", "", visit("work"))
	g.SetEntryPoint("work")
	g.AddConditionalEdge("work", func(ctx context.Context, s counterState) string {
		if s.Count == 10 {
			return END
		}
		return "work"
	})
	g.SetMaxSteps(10)

	app, err := g.Compile()
	require.NoError(t, err)

	exec := app.Stream(context.Background(), counterState{})
	select {
	case <-exec.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run stalled waiting for a reader")
	}
	final, err := exec.Wait()
	require.NoError(t, err)
	assert.Equal(t, 10, final.Count)
}

func TestStream_ErrorEvent(t *testing.T) {
	g := newQuietGraph[counterState]()
	g.AddNode("loop", "", visit("loop"))
	g.SetEntryPoint("loop")
	g.AddConditionalEdge("loop", func(ctx context.Context, s counterState) string { return "loop" })
	g.SetMaxSteps(3)

	app, err := g.Compile()
	require.NoError(t, err)

	exec := app.Stream(context.Background(), counterState{})
	var last StreamEvent
	n := 0
	for ev := range exec.Events() {
		last = ev
		n++
	}
	_, err = exec.Wait()
	assert.ErrorIs(t, err, ErrGraphDidNotConverge)

	// run start, three start/complete pairs, error
	assert.Equal(t, 8, n)
	assert.Equal(t, NodeEventError, last.Event)
	assert.True(t, errors.Is(last.Error, ErrGraphDidNotConverge))
}

func TestStream_Cancel(t *testing.T) {
	started := make(chan struct{})
	g := newQuietGraph[int]()
	g.AddNode("block", "", func(ctx context.Context, s int) (int, error) {
		close(started)
		<-ctx.Done()
		return s, ctx.Err()
	})
	g.SetEntryPoint("block")
	g.AddEdge("block", END)

	app, err := g.Compile()
	require.NoError(t, err)

	exec := app.Stream(context.Background(), 0)
	<-started
	exec.Cancel()

	_, err = exec.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_RetryEvents(t *testing.T) {
	attempts := 0
	g := newQuietGraph[counterState]()
	g.AddNode("flaky", "", func(ctx context.Context, s counterState) (counterState, error) {
		attempts++
		if attempts < 3 {
			return s, &NodeTimeoutError{Node: "flaky", Timeout: time.Millisecond}
		}
		return visit("flaky")(ctx, s)
	})
	g.SetEntryPoint("flaky")
	g.AddEdge("flaky", END)
	g.SetRetryPolicy(&RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond})
	g.SetMaxSteps(1)

	app, err := g.Compile()
	require.NoError(t, err)

	exec := app.Stream(context.Background(), counterState{})
	final, err := exec.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, final.Count)

	var kinds []NodeEvent
	for ev := range exec.Events() {
		kinds = append(kinds, ev.Event)
		if ev.Event == NodeEventRetry {
			assert.Equal(t, "flaky", ev.NodeName)
			assert.Equal(t, 1, ev.Step)
			var timeout *NodeTimeoutError
			assert.ErrorAs(t, ev.Error, &timeout)
		}
	}
	assert.Equal(t, []NodeEvent{
		EventChainStart,
		NodeEventStart,
		NodeEventRetry, NodeEventRetry,
		NodeEventComplete,
		EventChainEnd,
	}, kinds)
}
